package settings

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/crc16"
	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/progress"
)

const testLaunchSlot = 3

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "settings_test",
		Level: hclog.Trace,
	})
}

type recordingDisplay struct {
	themes   []uint8
	flags    []Flags1
	messages []string
}

func (d *recordingDisplay) ApplyTheme(theme uint8, flags Flags1) {
	d.themes = append(d.themes, theme)
	d.flags = append(d.flags, flags)
}

func (d *recordingDisplay) Acknowledge(message string) {
	d.messages = append(d.messages, message)
}

type recordingRelocator struct {
	store  *Store
	calls  int
	legacy []bool
}

func (r *recordingRelocator) RelocateLegacyBanks() {
	r.calls++
	r.legacy = append(r.legacy, r.store.Legacy())
}

// putRecord places a packed record into a ring slot, bypassing the lock.
func putRecord(t *testing.T, f *cart.MemoryFlash, ring Ring, slot int, r *Record, withCRC bool) {
	t.Helper()

	bank, offset := ring.Locate(slot)
	data := f.BankData(testLaunchSlot, bank)
	for i := int(offset); i < int(offset)+SlotSize; i++ {
		data[i] = cart.ErasedByte
	}
	packed := r.Pack()
	copy(data[offset:], packed)
	if withCRC {
		binary.LittleEndian.PutUint16(data[int(offset)+CRCOffset:], crc16.Checksum(packed, CRCPadLen))
	}
	f.SetBankData(testLaunchSlot, bank, data)
}

func sampleRecord(version uint16) *Record {
	r := Defaults(testLaunchSlot)
	r.Version = version
	r.ActiveSRAMSlot = Index(4)
	r.ColorTheme = 7
	r.SetName(0, "Tetris")
	r.Flags1 = FlagHideSlotIDs | FlagWideScreen
	r.Language = 2
	return &r
}

func newTestStore(f *cart.MemoryFlash, opts ...Option) *Store {
	return New(f, append([]Option{WithLogger(testLogger())}, opts...)...)
}

func TestLoadColdStart(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	s := newTestStore(f)

	res := s.Load()
	if !res.FirstBoot || res.Source != SourceDefaults {
		t.Fatalf("Load() = %+v, want first boot defaults", res)
	}
	if !s.Changed() {
		t.Error("Changed() = false after cold start")
	}
	if s.Cursor() != CurrentRing.MaxSlot() {
		t.Errorf("Cursor() = %d, want %d", s.Cursor(), CurrentRing.MaxSlot())
	}
	if s.Record().ActiveSRAMSlot != FirstBoot {
		t.Errorf("ActiveSRAMSlot = %v, want first-boot", s.Record().ActiveSRAMSlot)
	}
	if s.Record().LauncherSlot() != testLaunchSlot {
		t.Errorf("LauncherSlot() = %d, want %d", s.Record().LauncherSlot(), testLaunchSlot)
	}
	if !f.Locked() {
		t.Error("flash left unlocked after Load")
	}

	f.ResetOps()
	s.Save()

	// the first save after defaults wipes the ring and starts at slot 0
	erases := f.OpsOf(cart.OpErase)
	if len(erases) != CurrentRing.Banks {
		t.Fatalf("erases = %d, want %d", len(erases), CurrentRing.Banks)
	}
	for i, op := range erases {
		if op.Bank != CurrentRing.FirstBank+uint16(i) {
			t.Errorf("erase %d bank = 0x%02X", i, op.Bank)
		}
	}
	if s.Cursor() != 0 {
		t.Errorf("Cursor() = %d after first save, want 0", s.Cursor())
	}

	data := f.BankData(testLaunchSlot, CurrentRing.FirstBank)
	if !bytes.Equal(data[:4], Magic[:]) {
		t.Errorf("slot 0 magic = %q", data[:4])
	}
	if data[offActiveSRAM] != 0xFF {
		t.Errorf("persisted active slot = 0x%02X, want 0xFF", data[offActiveSRAM])
	}
	if s.Record().ActiveSRAMSlot != FirstBoot {
		t.Error("in-memory first-boot state lost by Save")
	}
	if s.Changed() {
		t.Error("Changed() = true after Save")
	}
	if !f.Locked() {
		t.Error("flash left unlocked after Save")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	s := newTestStore(f)
	s.Load()

	rec := s.Record()
	rec.ColorTheme = 9
	rec.Flags1 = FlagSerialBaud38400
	rec.Language = 1
	rec.SetName(5, "Klonoa")
	rec.SlotTypes[15] = SlotTypeUnused
	rec.ActiveSRAMSlot = Index(6)
	s.MarkChanged()
	s.Save()

	want := *rec

	s2 := newTestStore(f)
	res := s2.Load()
	if res.Source != SourceRing || res.Slot != 0 {
		t.Fatalf("Load() = %+v, want ring slot 0", res)
	}
	if *s2.Record() != want {
		t.Errorf("loaded record differs:\n got %+v\nwant %+v", *s2.Record(), want)
	}
	if s2.Changed() {
		t.Error("Changed() = true after loading a current record")
	}
}

func TestSaveFirstBootPersistsAsNone(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	s := newTestStore(f)
	s.Load()
	s.Save()

	s2 := newTestStore(f)
	s2.Load()
	if s2.Record().ActiveSRAMSlot != None {
		t.Errorf("ActiveSRAMSlot = %v, want none", s2.Record().ActiveSRAMSlot)
	}
}

func TestSaveWearLevelling(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	s := newTestStore(f)
	s.Load()

	slots := CurrentRing.Slots()
	for i := 0; i < slots+1; i++ {
		s.Record().Language = uint8(i)
		s.MarkChanged()
		s.Save()
	}

	// one erase per ring bank on the first save and again at the wrap
	if got := f.Count(cart.OpErase); got != 2*CurrentRing.Banks {
		t.Errorf("erases = %d, want %d", got, 2*CurrentRing.Banks)
	}

	var positions []int
	for _, op := range f.OpsOf(cart.OpWrite) {
		if op.Len != RecordSize {
			continue
		}
		pos := int(op.Bank-CurrentRing.FirstBank)*(cart.BankSize/SlotSize) + int(op.Offset)/SlotSize
		positions = append(positions, pos)
	}
	if len(positions) != slots+1 {
		t.Fatalf("record writes = %d, want %d", len(positions), slots+1)
	}
	for i := 0; i < slots; i++ {
		if positions[i] != i {
			t.Fatalf("write %d went to slot %d", i, positions[i])
		}
	}
	if positions[slots] != 0 {
		t.Errorf("write after wrap went to slot %d, want 0", positions[slots])
	}

	s2 := newTestStore(f)
	res := s2.Load()
	if res.Slot != 0 || s2.Record().Language != uint8(slots) {
		t.Errorf("Load() = slot %d language %d, want slot 0 language %d", res.Slot, s2.Record().Language, slots)
	}
}

func TestLoadPicksNewestSlot(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	s := newTestStore(f)
	s.Load()
	for i := 0; i < 70; i++ {
		s.Record().ColorTheme = uint8(i)
		s.MarkChanged()
		s.Save()
	}

	s2 := newTestStore(f)
	res := s2.Load()
	if res.Slot != 69 {
		t.Errorf("Load() slot = %d, want 69", res.Slot)
	}
	if s2.Record().ColorTheme != 69 {
		t.Errorf("ColorTheme = %d, want 69", s2.Record().ColorTheme)
	}
	if s2.Cursor() != 69 {
		t.Errorf("Cursor() = %d, want 69", s2.Cursor())
	}
}

func TestLoadRejectsCorruptSlot(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)

	older := sampleRecord(Version)
	older.ColorTheme = 1
	putRecord(t, f, CurrentRing, 10, older, true)

	newer := sampleRecord(Version)
	newer.ColorTheme = 2
	putRecord(t, f, CurrentRing, 11, newer, true)

	bank, offset := CurrentRing.Locate(11)
	data := f.BankData(testLaunchSlot, bank)
	data[int(offset)+offSlotNames] ^= 0x04
	f.SetBankData(testLaunchSlot, bank, data)

	s := newTestStore(f)
	res := s.Load()
	if res.Slot != 10 {
		t.Fatalf("Load() slot = %d, want 10", res.Slot)
	}
	if s.Record().ColorTheme != 1 {
		t.Errorf("ColorTheme = %d, want 1", s.Record().ColorTheme)
	}
}

func TestLoadRejectsFlippedPadding(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	putRecord(t, f, CurrentRing, 0, sampleRecord(Version), true)

	// bytes past the record but before the CRC are covered too
	bank, offset := CurrentRing.Locate(0)
	data := f.BankData(testLaunchSlot, bank)
	data[int(offset)+RecordSize+100] = 0x7F
	f.SetBankData(testLaunchSlot, bank, data)

	s := newTestStore(f)
	if res := s.Load(); !res.FirstBoot {
		t.Errorf("Load() = %+v, want defaults", res)
	}
}

func TestLoadAcceptsLongerRecord(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)

	// a newer minor layout appending a field still validates
	r := sampleRecord(Version)
	packed := append(r.Pack(), 0x42, 0x43)
	bank, offset := CurrentRing.Locate(3)
	data := f.BankData(testLaunchSlot, bank)
	copy(data[offset:], packed)
	binary.LittleEndian.PutUint16(data[int(offset)+CRCOffset:], crc16.Checksum(packed, CRCPadLen))
	f.SetBankData(testLaunchSlot, bank, data)

	s := newTestStore(f)
	res := s.Load()
	if res.Source != SourceRing || res.Slot != 3 {
		t.Fatalf("Load() = %+v, want ring slot 3", res)
	}
	if s.Record().ColorTheme != r.ColorTheme {
		t.Errorf("ColorTheme = %d, want %d", s.Record().ColorTheme, r.ColorTheme)
	}
}

func TestLoadMigratesOlderVersions(t *testing.T) {
	tests := []struct {
		version  uint16
		theme    uint8
		named    bool
		flags    Flags1
		language uint8
	}{
		{version: 0, theme: 0, named: false, flags: 0, language: 0},
		{version: 1, theme: 7, named: false, flags: 0, language: 0},
		{version: 2, theme: 7, named: true, flags: 0, language: 0},
		{version: 3, theme: 7, named: true, flags: FlagHideSlotIDs | FlagWideScreen, language: 0},
		{version: 4, theme: 7, named: true, flags: FlagHideSlotIDs | FlagWideScreen, language: 0},
		{version: 5, theme: 7, named: true, flags: FlagHideSlotIDs | FlagWideScreen, language: 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("v%d", tt.version), func(t *testing.T) {
			f := cart.NewMemoryFlash(testLaunchSlot)
			putRecord(t, f, CurrentRing, 20, sampleRecord(tt.version), HasCRC(tt.version))

			s := newTestStore(f)
			res := s.Load()
			if res.Source != SourceRing || res.StoredVersion != tt.version {
				t.Fatalf("Load() = %+v", res)
			}

			r := s.Record()
			if r.Version != Version {
				t.Errorf("Version = %d, want %d", r.Version, Version)
			}
			if r.ColorTheme != tt.theme {
				t.Errorf("ColorTheme = %d, want %d", r.ColorTheme, tt.theme)
			}
			if _, ok := r.Name(0); ok != tt.named {
				t.Errorf("name present = %v, want %v", ok, tt.named)
			}
			if r.Flags1 != tt.flags {
				t.Errorf("Flags1 = %v, want %v", r.Flags1, tt.flags)
			}
			if r.Language != tt.language {
				t.Errorf("Language = %d, want %d", r.Language, tt.language)
			}
			if r.ActiveSRAMSlot != Index(4) {
				t.Errorf("ActiveSRAMSlot = %v, want 4", r.ActiveSRAMSlot)
			}
		})
	}
}

func TestLoadTooNew(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	putRecord(t, f, CurrentRing, 5, sampleRecord(Version+1), true)

	display := &recordingDisplay{}
	s := newTestStore(f, WithDisplay(display))
	res := s.Load()

	if !res.TooNew || res.Source != SourceDefaults {
		t.Fatalf("Load() = %+v, want too new", res)
	}
	if !errors.Is(res.Err, cferrors.ErrVersionTooNew) {
		t.Errorf("Err = %v, want ErrVersionTooNew", res.Err)
	}
	if len(display.messages) != 1 || display.messages[0] != TooNewMessage {
		t.Errorf("Acknowledge calls = %q", display.messages)
	}
	if s.Record().Version != Version || s.Record().ColorTheme != DefaultColorTheme {
		t.Errorf("record is not the defaults: %+v", *s.Record())
	}
	if !s.Changed() {
		t.Error("Changed() = false after falling back to defaults")
	}
}

func TestLoadLegacyLocation(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	legacy := sampleRecord(3)
	putRecord(t, f, LegacyRing, LegacyRing.MaxSlot(), legacy, false)

	s := newTestStore(f)
	reloc := &recordingRelocator{store: s}
	s.SetRelocator(reloc)

	res := s.Load()
	if res.Source != SourceLegacy || res.StoredVersion != 3 {
		t.Fatalf("Load() = %+v, want legacy version 3", res)
	}
	if reloc.calls != 1 || !reloc.legacy[0] {
		t.Errorf("relocator calls = %d legacy = %v, want one call in legacy mode", reloc.calls, reloc.legacy)
	}
	if s.Legacy() {
		t.Error("Legacy() = true after migration")
	}
	if s.Changed() {
		t.Error("migrated record was not saved")
	}
	if s.Cursor() != 0 {
		t.Errorf("Cursor() = %d, want 0", s.Cursor())
	}

	s2 := newTestStore(f)
	res2 := s2.Load()
	if res2.Source != SourceRing || res2.Slot != 0 {
		t.Fatalf("reload = %+v, want ring slot 0", res2)
	}
	if s2.Record().ColorTheme != legacy.ColorTheme || s2.Record().Flags1 != legacy.Flags1 {
		t.Errorf("migrated record = %+v", *s2.Record())
	}
}

func TestLoadLegacyWithoutRelocator(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	putRecord(t, f, LegacyRing, 0, sampleRecord(Version), true)

	s := newTestStore(f)
	res := s.Load()
	if res.Source != SourceLegacy {
		t.Fatalf("Load() = %+v, want legacy", res)
	}
	if s.Legacy() {
		t.Error("Legacy() = true after migration")
	}
}

func TestLoadPrefersCurrentRing(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)

	old := sampleRecord(Version)
	old.ColorTheme = 1
	putRecord(t, f, LegacyRing, 50, old, true)

	cur := sampleRecord(Version)
	cur.ColorTheme = 2
	putRecord(t, f, CurrentRing, 0, cur, true)

	s := newTestStore(f)
	s.SetRelocator(&recordingRelocator{store: s})
	res := s.Load()
	if res.Source != SourceRing || s.Record().ColorTheme != 2 {
		t.Errorf("Load() = %+v theme %d, want current ring theme 2", res, s.Record().ColorTheme)
	}
}

func TestNoLaunchSlot(t *testing.T) {
	f := cart.NewMemoryFlash(cart.NoSlot)
	s := newTestStore(f)

	res := s.Load()
	if !res.FirstBoot || !errors.Is(res.Err, cferrors.ErrNoLaunchSlot) {
		t.Errorf("Load() = %+v, want defaults without launch slot", res)
	}
	s.Record().ColorTheme = 4
	s.MarkChanged()
	s.Save()

	if len(f.Ops) != 0 {
		t.Errorf("flash ops = %v, want none", f.Ops)
	}
}

func TestSaveUnchangedIsNoop(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	putRecord(t, f, CurrentRing, 0, sampleRecord(Version), true)

	s := newTestStore(f)
	s.Load()
	f.ResetOps()

	s.Save()
	if len(f.Ops) != 0 {
		t.Errorf("flash ops = %v, want none", f.Ops)
	}
}

func TestSaveIgnoresDriverFailures(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	s := newTestStore(f)
	s.Load()

	f.FailWrites = true
	f.FailErases = true
	s.Save()

	if s.Changed() {
		t.Error("Changed() = true after failed Save")
	}
	if !f.Locked() {
		t.Error("flash left unlocked after failed Save")
	}
	if s.Cursor() != 0 {
		t.Errorf("Cursor() = %d, want 0", s.Cursor())
	}
}

func TestSaveDrivesIndicator(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	rec := &progress.Recorder{}
	s := newTestStore(f, WithIndicator(rec))
	s.Load()
	s.Save()

	if rec.Steps != 1 || rec.Clears != 1 {
		t.Errorf("indicator steps = %d clears = %d, want 1 and 1", rec.Steps, rec.Clears)
	}
}

func TestSaveWritesChecksum(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	s := newTestStore(f)
	s.Load()
	s.Save()

	data := f.BankData(testLaunchSlot, CurrentRing.FirstBank)
	got := binary.LittleEndian.Uint16(data[CRCOffset:])
	want := crc16.Checksum(data[:CRCOffset], CRCPadLen)
	if got != want {
		t.Errorf("stored CRC = 0x%04X, want 0x%04X", got, want)
	}
}

func TestRefresh(t *testing.T) {
	f := cart.NewMemoryFlash(testLaunchSlot)
	display := &recordingDisplay{}
	s := newTestStore(f, WithDisplay(display))
	s.Load()
	s.Record().ColorTheme = 5
	s.Record().Flags1 = FlagWideScreen
	s.Refresh()

	if len(display.themes) != 1 || display.themes[0] != 5 || display.flags[0] != FlagWideScreen {
		t.Errorf("ApplyTheme calls = %v %v", display.themes, display.flags)
	}
}
