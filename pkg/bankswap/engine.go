// Package bankswap keeps at most one logical SRAM slot resident in the
// cartridge's battery-backed SRAM, moving save data between the SRAM window
// and the slot's flash backing store when the resident slot changes.
//
// Each logical slot is backed by SlotBanks consecutive flash banks of the
// launch slot, starting at BaseBank. The current layout shifts every bank up
// by the size of the settings ring carved out of the start of that area;
// while the settings record still lives in the legacy location the shift is
// not applied.
package bankswap

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/hashicorp/go-hclog"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/fatal"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/progress"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/settings"
)

// Layout of the SRAM backing store.
const (
	BaseBank  = 0x80
	SlotBanks = cart.SRAMBankSize * cart.SRAMBankCount / cart.BankSize

	// CarveOut is the number of banks reserved for the settings ring at
	// BaseBank in the current layout.
	CarveOut = 2

	// LastBank and LegacyLastBank are the highest banks SRAM backups may
	// occupy in the current and legacy layouts.
	LastBank       = 0xF9
	LegacyLastBank = 0xF7
)

// Transfer granularity.
const (
	BackupPageSize  = 256
	RestorePageSize = 2048
	ClearPageSize   = 4096

	backupPages  = cart.SRAMSize / BackupPageSize
	restorePages = cart.SRAMSize / RestorePageSize
	clearPages   = cart.SRAMSize / ClearPageSize
)

// Settings is the part of the settings store the engine works with.
type Settings interface {
	Record() *settings.Record
	MarkChanged()
	Legacy() bool
}

// Swapper is implemented by Engine and Stub.
type Swapper interface {
	SwitchToSlot(target settings.SRAMSlot)
	Erase(target settings.SRAMSlot)
	Capable() bool
}

// Engine is the bank-swap engine for cartridges with a slot system.
type Engine struct {
	driver    cart.Driver
	sram      cart.SRAM
	store     Settings
	indicator progress.Indicator
	logger    hclog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithIndicator sets the progress indicator.
func WithIndicator(ind progress.Indicator) Option {
	return func(e *Engine) {
		e.indicator = ind
	}
}

// New creates an Engine.
func New(driver cart.Driver, sram cart.SRAM, store Settings, opts ...Option) *Engine {
	e := &Engine{
		driver:    driver,
		sram:      sram,
		store:     store,
		indicator: progress.Nop{},
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Capable reports true: the engine moves data to and from flash.
func (e *Engine) Capable() bool {
	return true
}

// SlotBank returns the first flash bank backing logical slot n. A slot whose
// banks would leave the SRAM area halts.
func (e *Engine) SlotBank(n int) uint16 {
	return slotBank(n, e.store.Legacy())
}

func slotBank(n int, legacy bool) uint16 {
	bank := BaseBank + n*SlotBanks
	limit := LegacyLastBank
	if !legacy {
		if bank >= BaseBank {
			bank += CarveOut
		}
		limit = LastBank
	}
	if n < 0 || bank+SlotBanks-1 > limit {
		fatal.Critical(fatal.CodeSRAMSlotOverflowUnknown, uint16(n))
	}
	return uint16(bank)
}

// reserved reports whether bank belongs to the settings ring of the active
// layout.
func (e *Engine) reserved(bank uint16) bool {
	if e.store.Legacy() {
		return settings.LegacyRing.Contains(bank)
	}
	return settings.CurrentRing.Contains(bank)
}

// SwitchToSlot makes target the resident SRAM slot. The outgoing slot is
// backed up first and marked inactive before the incoming one is restored,
// so an interruption never leaves two slots claiming the SRAM contents. The
// caller saves settings when durability matters.
func (e *Engine) SwitchToSlot(target settings.SRAMSlot) {
	rec := e.store.Record()
	active := rec.ActiveSRAMSlot
	if active == target {
		return
	}

	if target != settings.None && (!target.IsIndex() || !target.Valid()) {
		fatal.Critical(fatal.CodeSRAMSlotOverflowSwitch, uint16(target.Byte()))
	}

	if active == settings.FirstBoot {
		// SRAM content of unknown origin is adopted by the first slot asked for
		if target != settings.None {
			e.logger.Info("📥 Adopting SRAM contents on first boot", "slot", target)
			rec.ActiveSRAMSlot = target
			e.store.MarkChanged()
		}
		return
	}

	unlocked := false
	unlock := func() {
		if !unlocked {
			e.driver.Unlock()
			unlocked = true
		}
	}
	defer func() {
		if unlocked {
			e.driver.Lock()
		}
	}()

	if n, ok := active.Index(); ok && active.Valid() {
		unlock()
		e.backup(n)
		rec.ActiveSRAMSlot = settings.None
		e.store.MarkChanged()
	} else if ok {
		// an out-of-range record value owns nothing in flash
		e.logger.Warn("⚠️ Active SRAM slot out of range, treating SRAM as not resident", "slot", active)
		rec.ActiveSRAMSlot = settings.None
		e.store.MarkChanged()
	}

	if n, ok := target.Index(); ok {
		unlock()
		e.restore(n)
		rec.ActiveSRAMSlot = target
		e.store.MarkChanged()
	}

	e.logger.Debug("🔄 Switched SRAM slot", "from", active, "to", target)
}

// backup copies the SRAM window to the flash banks of slot n. Pages that are
// entirely blank are not programmed.
func (e *Engine) backup(n int) {
	first := e.SlotBank(n)
	launch := e.driver.LaunchSlot()
	e.logger.Info("💾 Backing up SRAM", "slot", n, "bank", fmt.Sprintf("0x%02X", first))

	for i := uint16(0); i < SlotBanks; i++ {
		e.indicator.Step()
		if err := e.driver.EraseBank(launch, first+i); err != nil {
			e.logger.Warn("⚠️ SRAM backup erase failed", "bank", fmt.Sprintf("0x%02X", first+i), "error", err)
		}
	}

	p := progress.Progress{Phase: progress.PhaseBackup, Total: backupPages}
	e.indicator.Init(p)

	page := make([]byte, BackupPageSize)
	digest := xxhash.New()
	skipped := 0
	for i := 0; i < backupPages; i++ {
		p.Current = i
		e.indicator.Draw(p)
		e.indicator.Step()

		e.sram.SelectBank(uint8(i >> 8))
		offset := uint16(i << 8)
		e.sram.ReadAt(page, offset)
		digest.Write(page)

		if isBlank(page) {
			skipped++
			continue
		}
		bank := first + uint16(i>>8)
		if err := e.driver.Write(page, launch, bank, offset); err != nil {
			e.logger.Warn("⚠️ SRAM backup write failed", "bank", fmt.Sprintf("0x%02X", bank), "offset", fmt.Sprintf("0x%04X", offset), "error", err)
		}
	}

	e.indicator.Clear()
	e.logger.Debug("✅ SRAM backed up", "slot", n, "skipped_pages", skipped, "xxhash", fmt.Sprintf("%016x", digest.Sum64()))
}

// restore copies the flash banks of slot n into the SRAM window.
func (e *Engine) restore(n int) {
	first := e.SlotBank(n)
	launch := e.driver.LaunchSlot()
	e.logger.Info("📤 Restoring SRAM", "slot", n, "bank", fmt.Sprintf("0x%02X", first))

	p := progress.Progress{Phase: progress.PhaseRestore, Total: restorePages}
	e.indicator.Init(p)

	page := make([]byte, RestorePageSize)
	digest := xxhash.New()
	for i := 0; i < restorePages; i++ {
		p.Current = i
		e.indicator.Draw(p)
		e.indicator.Step()

		e.sram.SelectBank(uint8(i >> 5))
		bank := first + uint16(i>>5)
		offset := uint16(i << 11)
		for j := range page {
			page[j] = cart.ErasedByte
		}
		if err := e.driver.Read(page, launch, bank, offset); err != nil {
			e.logger.Warn("⚠️ SRAM restore read failed", "bank", fmt.Sprintf("0x%02X", bank), "offset", fmt.Sprintf("0x%04X", offset), "error", err)
		}
		e.sram.WriteAt(page, offset)
		digest.Write(page)
	}

	e.indicator.Clear()
	e.logger.Debug("✅ SRAM restored", "slot", n, "xxhash", fmt.Sprintf("%016x", digest.Sum64()))
}

// Erase clears save data. None clears the SRAM window itself without
// touching flash, All erases the backing banks of every slot and an index
// erases one slot's banks. The resident slot is not changed.
func (e *Engine) Erase(target settings.SRAMSlot) {
	switch target.Kind() {
	case settings.KindNone:
		e.clearSRAM()
	case settings.KindAll:
		e.eraseSlots(0, cart.SRAMSlots)
	default:
		n, ok := target.Index()
		if !ok || !target.Valid() {
			fatal.Critical(fatal.CodeSRAMSlotOverflowErase, uint16(target.Byte()))
		}
		e.eraseSlots(n, n+1)
	}
}

func (e *Engine) clearSRAM() {
	e.logger.Info("🧹 Clearing SRAM window")

	p := progress.Progress{Phase: progress.PhaseEraseSRAM, Total: clearPages}
	e.indicator.Init(p)

	blank := bytes.Repeat([]byte{cart.SRAMBlankByte}, ClearPageSize)
	for i := 0; i < clearPages; i++ {
		p.Current = i
		e.indicator.Draw(p)
		e.indicator.Step()

		e.sram.SelectBank(uint8(i >> 4))
		e.sram.WriteAt(blank, uint16(i<<12))
	}

	e.indicator.Clear()
}

// eraseSlots erases the backing banks of slots [from, to), skipping banks
// that hold settings.
func (e *Engine) eraseSlots(from, to int) {
	launch := e.driver.LaunchSlot()
	e.logger.Info("🧹 Erasing SRAM backups", "from", from, "to", to-1)

	e.driver.Unlock()
	defer e.driver.Lock()

	p := progress.Progress{Phase: progress.PhaseErase, Total: (to - from) * SlotBanks}
	e.indicator.Init(p)

	for i := 0; i < p.Total; i++ {
		p.Current = i
		e.indicator.Draw(p)
		e.indicator.Step()

		bank := e.SlotBank(from+i/SlotBanks) + uint16(i%SlotBanks)
		if e.reserved(bank) {
			e.logger.Debug("⏭️ Skipping settings bank", "bank", fmt.Sprintf("0x%02X", bank))
			continue
		}
		if err := e.driver.EraseBank(launch, bank); err != nil {
			e.logger.Warn("⚠️ SRAM backup erase failed", "bank", fmt.Sprintf("0x%02X", bank), "error", err)
		}
	}

	e.indicator.Clear()
}

func isBlank(page []byte) bool {
	for _, v := range page {
		if v != cart.ErasedByte {
			return false
		}
	}
	return true
}
