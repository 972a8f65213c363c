package cart

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

// Host flash image container. Only banks that are not fully erased are
// stored, each as a bank record.
var imageMagic = []byte{'C', 'F', 'I', 'M'}

const (
	imageVersion    = 1
	imageHeaderSize = 8 // magic (4) + version (2) + record count (2)
	bankHeaderSize  = 4 // slot (2) + bank (2)
	imagePerms      = 0o644
)

// CompressedSuffix marks flash image paths that are stored bzip2-compressed.
const CompressedSuffix = ".bz2"

// Image is a Driver backed by host files: a sparse flash image and a raw
// SRAM dump. Changes stay in memory until Flush.
type Image struct {
	*MemoryFlash
	SRAM *MemorySRAM

	fs        afero.Fs
	flashPath string
	sramPath  string
	logger    hclog.Logger
}

// OpenImage loads the flash and SRAM images at the given paths. Missing files
// start out erased (flash) or blank (SRAM).
func OpenImage(fs afero.Fs, flashPath, sramPath string, launchSlot uint16, logger hclog.Logger) (*Image, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	flash := NewMemoryFlash(launchSlot)
	flash.RecordReads = false
	flash.SetLogger(logger)

	im := &Image{
		MemoryFlash: flash,
		SRAM:        NewMemorySRAM(),
		fs:          fs,
		flashPath:   flashPath,
		sramPath:    sramPath,
		logger:      logger,
	}

	if err := im.loadFlash(); err != nil {
		return nil, fmt.Errorf("load flash image: %w", err)
	}
	if err := im.loadSRAM(); err != nil {
		return nil, fmt.Errorf("load sram image: %w", err)
	}
	return im, nil
}

func (im *Image) loadFlash() error {
	f, err := im.fs.Open(im.flashPath)
	if err != nil {
		if os.IsNotExist(err) {
			im.logger.Debug("📂 No flash image yet, starting erased", "path", im.flashPath)
			return nil
		}
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(im.flashPath, CompressedSuffix) {
		br, err := bzip2.NewReader(f, &bzip2.ReaderConfig{})
		if err != nil {
			return fmt.Errorf("creating bzip2 reader: %w", err)
		}
		defer br.Close()
		r = br
	}

	return im.decodeFlash(r)
}

func (im *Image) decodeFlash(r io.Reader) error {
	header := make([]byte, imageHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header[0:4], imageMagic) {
		return fmt.Errorf("invalid flash image magic %q", header[0:4])
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != imageVersion {
		return fmt.Errorf("unsupported flash image version %d", v)
	}
	count := int(binary.LittleEndian.Uint16(header[6:8]))

	record := make([]byte, bankHeaderSize+BankSize)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, record); err != nil {
			return fmt.Errorf("reading bank record %d: %w", i, err)
		}
		slot := binary.LittleEndian.Uint16(record[0:2])
		bank := binary.LittleEndian.Uint16(record[2:4])
		if bank >= BankCount {
			return fmt.Errorf("bank record %d: bank 0x%X out of range", i, bank)
		}
		im.SetBankData(slot, bank, record[bankHeaderSize:])
	}

	im.logger.Debug("📖 Loaded flash image", "path", im.flashPath, "banks", count)
	return nil
}

func (im *Image) loadSRAM() error {
	data, err := afero.ReadFile(im.fs, im.sramPath)
	if err != nil {
		if os.IsNotExist(err) {
			im.logger.Debug("📂 No SRAM image yet, starting blank", "path", im.sramPath)
			return nil
		}
		return err
	}
	if len(data) != SRAMSize {
		im.logger.Warn("⚠️ SRAM image has unexpected size", "path", im.sramPath, "size", len(data), "expected", SRAMSize)
	}
	im.SRAM.Load(data)
	return nil
}

// Flush writes both images back to the host filesystem.
func (im *Image) Flush() error {
	if err := im.flushFlash(); err != nil {
		return fmt.Errorf("write flash image: %w", err)
	}
	if err := afero.WriteFile(im.fs, im.sramPath, im.SRAM.Bytes(), imagePerms); err != nil {
		return fmt.Errorf("write sram image: %w", err)
	}
	im.logger.Debug("💾 Flushed images", "flash", im.flashPath, "sram", im.sramPath)
	return nil
}

func (im *Image) flushFlash() error {
	var buf bytes.Buffer
	if err := im.encodeFlash(&buf); err != nil {
		return err
	}

	data := buf.Bytes()
	if strings.HasSuffix(im.flashPath, CompressedSuffix) {
		var compressed bytes.Buffer
		bw, err := bzip2.NewWriter(&compressed, &bzip2.WriterConfig{Level: 9})
		if err != nil {
			return fmt.Errorf("creating bzip2 writer: %w", err)
		}
		if _, err := bw.Write(data); err != nil {
			bw.Close()
			return fmt.Errorf("writing bzip2 data: %w", err)
		}
		if err := bw.Close(); err != nil {
			return fmt.Errorf("closing bzip2 writer: %w", err)
		}
		data = compressed.Bytes()
	}

	return afero.WriteFile(im.fs, im.flashPath, data, imagePerms)
}

func (im *Image) encodeFlash(w io.Writer) error {
	used := im.UsedBanks()

	header := make([]byte, imageHeaderSize)
	copy(header[0:4], imageMagic)
	binary.LittleEndian.PutUint16(header[4:6], imageVersion)
	binary.LittleEndian.PutUint16(header[6:8], uint16(len(used)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	record := make([]byte, bankHeaderSize)
	for _, ref := range used {
		binary.LittleEndian.PutUint16(record[0:2], ref.Slot)
		binary.LittleEndian.PutUint16(record[2:4], ref.Bank)
		if _, err := w.Write(record); err != nil {
			return err
		}
		if _, err := w.Write(im.BankData(ref.Slot, ref.Bank)); err != nil {
			return err
		}
	}
	return nil
}
