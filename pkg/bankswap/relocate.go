package bankswap

import (
	"fmt"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/progress"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/settings"
)

// RelocateLegacyBanks moves every SRAM backup from the legacy layout to the
// current one by copying banks BaseBank..LegacyLastBank up by CarveOut.
// Banks are copied from the top down so that no source is overwritten before
// it has been read. The vacated banks become the settings ring and are left
// erased.
func (e *Engine) RelocateLegacyBanks() {
	launch := e.driver.LaunchSlot()
	e.logger.Info("📦 Relocating SRAM backups to the current layout")

	e.driver.Unlock()
	defer e.driver.Lock()

	total := LegacyLastBank - BaseBank + 1
	p := progress.Progress{Phase: progress.PhaseRelocate, Total: total}
	e.indicator.Init(p)

	data := make([]byte, cart.BankSize)
	moved := 0
	for i := 0; i < total; i++ {
		p.Current = i
		e.indicator.Draw(p)
		e.indicator.Step()

		src := uint16(LegacyLastBank - i)
		dst := src + CarveOut

		if err := e.driver.EraseBank(launch, dst); err != nil {
			e.logger.Warn("⚠️ Bank erase failed", "bank", fmt.Sprintf("0x%02X", dst), "error", err)
		}
		if err := e.driver.Read(data, launch, src, 0); err != nil {
			e.logger.Warn("⚠️ Legacy bank read failed", "bank", fmt.Sprintf("0x%02X", src), "error", err)
			continue
		}
		if isBlank(data) {
			continue
		}
		for off := 0; off < cart.BankSize; off += BackupPageSize {
			page := data[off : off+BackupPageSize]
			if isBlank(page) {
				continue
			}
			if err := e.driver.Write(page, launch, dst, uint16(off)); err != nil {
				e.logger.Warn("⚠️ Bank write failed", "bank", fmt.Sprintf("0x%02X", dst), "offset", fmt.Sprintf("0x%04X", off), "error", err)
			}
		}
		moved++
	}

	for b := 0; b < settings.CurrentRing.Banks; b++ {
		bank := settings.CurrentRing.FirstBank + uint16(b)
		if err := e.driver.EraseBank(launch, bank); err != nil {
			e.logger.Warn("⚠️ Settings bank erase failed", "bank", fmt.Sprintf("0x%02X", bank), "error", err)
		}
	}

	e.indicator.Clear()
	e.logger.Info("✅ Relocated SRAM backups", "banks", total, "non_blank", moved)
}
