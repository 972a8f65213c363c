// Package settings persists the device configuration in a wear-levelling ring
// of flash slots.
//
// Every save goes to the slot after the last one written; the ring's banks
// are only erased when the cursor wraps. Loading scans the ring from the top,
// accepting the first slot whose magic matches and whose CRC (from format
// version 4 on) validates. When nothing valid is found the legacy ring of
// older firmware is scanned, and failing that a default record is
// synthesised.
package settings

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/crc16"
	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/fatal"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/progress"
)

// TooNewMessage is acknowledged by the user before defaults replace a record
// written by newer firmware.
const TooNewMessage = "Settings were saved by a newer firmware version and cannot be read. Defaults will be used."

// Display is the part of the user interface the store drives directly.
type Display interface {
	// ApplyTheme re-applies the colour theme and display flags.
	ApplyTheme(theme uint8, flags Flags1)
	// Acknowledge shows a message and blocks until the user dismisses it.
	Acknowledge(message string)
}

// NopDisplay ignores everything.
type NopDisplay struct{}

func (NopDisplay) ApplyTheme(uint8, Flags1) {}
func (NopDisplay) Acknowledge(string)       {}

// Relocator physically moves SRAM backups from the legacy bank layout to the
// current one. The store calls it while Legacy still reports true.
type Relocator interface {
	RelocateLegacyBanks()
}

// Source says where Load found the record.
type Source int

const (
	SourceDefaults Source = iota
	SourceRing
	SourceLegacy
)

func (s Source) String() string {
	switch s {
	case SourceRing:
		return "ring"
	case SourceLegacy:
		return "legacy"
	default:
		return "defaults"
	}
}

// LoadResult describes the outcome of Load.
type LoadResult struct {
	Source Source

	// Slot is the ring slot the record came from, or -1.
	Slot int

	// StoredVersion is the version found on flash before migration.
	StoredVersion uint16

	// FirstBoot is set when defaults were synthesised.
	FirstBoot bool

	// TooNew is set when the record was written by newer firmware and
	// defaults were used instead.
	TooNew bool

	// Err explains why defaults were used, if there was a reason beyond an
	// empty ring.
	Err error
}

// Store owns the in-memory settings record, its dirty flag and the ring
// cursor.
type Store struct {
	driver    cart.Driver
	display   Display
	indicator progress.Indicator
	relocator Relocator
	logger    hclog.Logger

	record  Record
	changed bool
	cursor  int
	ring    Ring
	legacy  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDisplay sets the display collaborator.
func WithDisplay(d Display) Option {
	return func(s *Store) {
		s.display = d
	}
}

// WithIndicator sets the progress indicator stepped while saving.
func WithIndicator(ind progress.Indicator) Option {
	return func(s *Store) {
		s.indicator = ind
	}
}

// New creates a Store holding a default record. Call Load before use.
func New(driver cart.Driver, opts ...Option) *Store {
	s := &Store{
		driver:    driver,
		display:   NopDisplay{},
		indicator: progress.Nop{},
		logger:    hclog.NewNullLogger(),
		ring:      CurrentRing,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	s.changed = false
	return s
}

// SetRelocator installs the collaborator used when migrating from the legacy
// location.
func (s *Store) SetRelocator(r Relocator) {
	s.relocator = r
}

// Record returns the live record. Callers that modify it must MarkChanged.
func (s *Store) Record() *Record {
	return &s.record
}

// Changed reports whether the record has unsaved modifications.
func (s *Store) Changed() bool {
	return s.changed
}

// MarkChanged flags the record for the next Save.
func (s *Store) MarkChanged() {
	s.changed = true
}

// Legacy reports whether the record currently lives in the legacy location,
// and thus whether SRAM backups still use the legacy bank layout.
func (s *Store) Legacy() bool {
	return s.legacy
}

// Cursor returns the ring slot written last.
func (s *Store) Cursor() int {
	return s.cursor
}

// Ring returns the ring Save writes to.
func (s *Store) Ring() Ring {
	return s.ring
}

// Refresh re-applies the theme and display flags.
func (s *Store) Refresh() {
	s.display.ApplyTheme(s.record.ColorTheme, s.record.Flags1)
}

func (s *Store) reset() {
	s.record = Defaults(s.driver.LaunchSlot())
	s.changed = true
	s.cursor = s.ring.MaxSlot()
}

// Load reads the newest valid record, falling back to the legacy location
// and then to defaults.
func (s *Store) Load() LoadResult {
	s.changed = false
	s.legacy = false
	s.ring = CurrentRing

	result := LoadResult{Source: SourceDefaults, Slot: -1}

	launch := s.driver.LaunchSlot()
	if launch == cart.NoSlot {
		s.logger.Debug("📂 No launch slot, using default settings")
		s.reset()
		result.FirstBoot = true
		result.Err = cferrors.ErrNoLaunchSlot
		return result
	}

	s.driver.Unlock()
	slot, rec, found := s.scan(CurrentRing)
	if found {
		result.Source = SourceRing
	} else {
		s.logger.Debug("🔍 No settings in ring, trying legacy location")
		slot, rec, found = s.scan(LegacyRing)
		if found {
			result.Source = SourceLegacy
		}
	}
	s.driver.Lock()

	if !found {
		s.logger.Info("🆕 No valid settings found, first boot")
		s.reset()
		result.FirstBoot = true
		return result
	}

	result.Slot = slot
	result.StoredVersion = rec.Version

	if rec.Version > Version {
		s.logger.Warn("⚠️ Settings written by newer firmware", "version", rec.Version, "supported", Version)
		s.display.Acknowledge(TooNewMessage)
		s.reset()
		result.Source = SourceDefaults
		result.Slot = -1
		result.TooNew = true
		result.Err = fmt.Errorf("version %d: %w", rec.Version, cferrors.ErrVersionTooNew)
		return result
	}

	if steps := Migrate(rec); steps > 0 {
		s.logger.Info("🔄 Migrated settings", "from", result.StoredVersion, "to", Version, "steps", steps)
	}

	s.record = *rec
	s.cursor = slot

	if result.Source == SourceLegacy {
		s.migrateLegacy()
	}

	s.logger.Debug("✅ Loaded settings", "source", result.Source, "slot", slot, "active_sram", s.record.ActiveSRAMSlot)
	return result
}

// scan walks the ring from the newest slot down.
func (s *Store) scan(ring Ring) (int, *Record, bool) {
	launch := s.driver.LaunchSlot()
	buf := make([]byte, CRCOffset)

	for i := ring.MaxSlot(); i >= 0; i-- {
		bank, offset := ring.Locate(i)

		header := buf[:HeaderSize]
		if err := s.driver.Read(header, launch, bank, offset); err != nil {
			s.logger.Debug("⚠️ Settings slot unreadable", "slot", i, "error", err)
			continue
		}
		version, err := parseHeader(header)
		if err != nil {
			continue
		}

		rec, err := s.readSlot(buf, launch, bank, offset, version)
		if err != nil {
			s.logger.Debug("❌ Rejected settings slot", "bank", fmt.Sprintf("0x%02X", bank), "slot", i, "error", err)
			continue
		}
		return i, rec, true
	}
	return -1, nil, false
}

// parseHeader checks the magic and returns the format version.
func parseHeader(header []byte) (uint16, error) {
	if !bytes.Equal(header[:4], Magic[:]) {
		return 0, cferrors.ErrInvalidMagic
	}
	return binary.LittleEndian.Uint16(header[4:6]), nil
}

func (s *Store) readSlot(buf []byte, launch, bank, offset uint16, version uint16) (*Record, error) {
	// With a CRC the whole checksummed region is read, so records written by
	// newer firmware with a longer body still validate.
	n := RecordSize
	if HasCRC(version) {
		n = CRCPadLen
	}
	if err := s.driver.Read(buf[HeaderSize:n], launch, bank, offset+HeaderSize); err != nil {
		return nil, err
	}

	if HasCRC(version) {
		stored := make([]byte, 2)
		if err := s.driver.Read(stored, launch, bank, offset+CRCOffset); err != nil {
			return nil, err
		}
		want := binary.LittleEndian.Uint16(stored)
		d := crc16.New()
		d.Write(buf[:n])
		if got := d.Sum16(CRCPadLen); got != want {
			return nil, fmt.Errorf("stored 0x%04X, computed 0x%04X: %w", want, got, cferrors.ErrChecksumMismatch)
		}
	}

	return Unpack(buf[:n])
}

// migrateLegacy moves SRAM backups to the current layout and rewrites the
// record into the current ring, forcing the ring to start over.
func (s *Store) migrateLegacy() {
	s.logger.Info("📦 Migrating settings from legacy location")

	s.legacy = true
	if s.relocator != nil {
		s.relocator.RelocateLegacyBanks()
	} else {
		s.logger.Warn("⚠️ No relocator installed, SRAM backups stay in the legacy layout")
	}
	s.legacy = false

	s.ring = CurrentRing
	s.cursor = s.ring.MaxSlot()
	s.changed = true
	s.Save()
}

// Save writes the record to the next ring slot if it changed. Driver write
// failures are logged and otherwise ignored; the dirty flag is cleared
// regardless.
func (s *Store) Save() {
	if !s.changed {
		return
	}
	launch := s.driver.LaunchSlot()
	if launch == cart.NoSlot {
		return
	}

	s.indicator.Step()
	s.driver.Unlock()

	if s.cursor >= s.ring.MaxSlot() {
		for b := 0; b < s.ring.Banks; b++ {
			bank := s.ring.FirstBank + uint16(b)
			s.logger.Debug("🧹 Erasing settings bank", "bank", fmt.Sprintf("0x%02X", bank))
			if err := s.driver.EraseBank(launch, bank); err != nil {
				s.logger.Warn("⚠️ Settings bank erase failed", "bank", fmt.Sprintf("0x%02X", bank), "error", err)
			}
		}
		s.cursor = 0
	} else {
		s.cursor++
	}
	if s.cursor < 0 || s.cursor > s.ring.MaxSlot() {
		fatal.Critical(fatal.CodeSettingsSlotOverflow, uint16(s.cursor))
	}

	// FirstBoot only means "this session has not decided yet"; it must not
	// survive a reboot.
	active := s.record.ActiveSRAMSlot
	if active == FirstBoot {
		s.record.ActiveSRAMSlot = None
	}
	data := s.record.Pack()
	s.record.ActiveSRAMSlot = active

	bank, offset := s.ring.Locate(s.cursor)
	if err := s.driver.Write(data, launch, bank, offset); err != nil {
		s.logger.Warn("⚠️ Settings write failed", "slot", s.cursor, "error", err)
	}
	if HasCRC(s.record.Version) {
		crc := make([]byte, 2)
		binary.LittleEndian.PutUint16(crc, crc16.Checksum(data, CRCPadLen))
		if err := s.driver.Write(crc, launch, bank, offset+CRCOffset); err != nil {
			s.logger.Warn("⚠️ Settings CRC write failed", "slot", s.cursor, "error", err)
		}
	}

	s.driver.Lock()
	s.indicator.Clear()
	s.changed = false

	s.logger.Debug("💾 Saved settings", "slot", s.cursor, "bank", fmt.Sprintf("0x%02X", bank), "offset", fmt.Sprintf("0x%04X", offset))
}
