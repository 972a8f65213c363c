// Package workenv manages the host directories holding cartridge images
package workenv

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
)

// EnvHome overrides the image root directory.
const EnvHome = "CARTFRIEND_HOME"

// Files inside an image directory.
const (
	ManifestFile = "cartridge.json"
	LockFile     = ".cartridge.lock"
	FlashFile    = "flash.img.bz2"
	SRAMFile     = "sram.bin"
)

// GetImageRoot returns the directory image directories live in
func GetImageRoot() string {
	// Check environment variable first
	if home := os.Getenv(EnvHome); home != "" {
		return home
	}

	// Use platform-specific defaults
	switch runtime.GOOS {
	case "darwin":
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, "Library", "Application Support", "cartfriend")
		}
	case "linux":
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "cartfriend")
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".local", "share", "cartfriend")
		}
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "cartfriend")
		}
	}

	// Fallback to temp directory
	return filepath.Join(os.TempDir(), "cartfriend")
}

// GetImagePath returns the directory of a named image
func GetImagePath(root, name string) string {
	if name == "" {
		name = "default"
	}
	return filepath.Join(root, name)
}

// CreateImageDir creates an image directory and records its manifest. An
// existing manifest is never overwritten.
func CreateImageDir(fs afero.Fs, path string, m Manifest) error {
	if err := fs.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	exists, err := afero.Exists(fs, filepath.Join(path, ManifestFile))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("image already initialized at %s", path)
	}

	return WriteManifest(fs, path, m)
}

// Clean removes the image lock file of the image directory at path. A
// missing lock is not an error.
func Clean(fs afero.Fs, path string) error {
	err := fs.Remove(filepath.Join(path, LockFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
