package workenv

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
)

// Manifest describes a cartridge image
type Manifest struct {
	Created    time.Time `json:"created"`
	Name       string    `json:"name"`
	LaunchSlot uint16    `json:"launch_slot"`
	FlashFile  string    `json:"flash_file"`
	SRAMFile   string    `json:"sram_file"`
}

// NewManifest returns a manifest with the default file names
func NewManifest(name string, launchSlot uint16) Manifest {
	return Manifest{
		Created:    time.Now().UTC(),
		Name:       name,
		LaunchSlot: launchSlot,
		FlashFile:  FlashFile,
		SRAMFile:   SRAMFile,
	}
}

// Validate checks the manifest describes a usable image
func (m Manifest) Validate() error {
	if m.LaunchSlot >= cart.GameSlots && m.LaunchSlot != cart.NoSlot {
		return fmt.Errorf("launch slot %d: %w", m.LaunchSlot, cferrors.ErrInvalidManifest)
	}
	for _, f := range []string{m.FlashFile, m.SRAMFile} {
		if f == "" || f != filepath.Base(f) || strings.HasPrefix(f, ".") {
			return fmt.Errorf("file name %q: %w", f, cferrors.ErrInvalidManifest)
		}
	}
	if m.FlashFile == m.SRAMFile {
		return fmt.Errorf("flash and sram share %q: %w", m.FlashFile, cferrors.ErrInvalidManifest)
	}
	return nil
}

// ReadManifest loads and validates the manifest of an image directory
func ReadManifest(fs afero.Fs, path string) (Manifest, error) {
	var m Manifest

	data, err := afero.ReadFile(fs, filepath.Join(path, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}

	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %v: %w", err, cferrors.ErrInvalidManifest)
	}

	return m, m.Validate()
}

// WriteManifest stores the manifest of an image directory
func WriteManifest(fs afero.Fs, path string, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	return afero.WriteFile(fs, filepath.Join(path, ManifestFile), data, 0644)
}
