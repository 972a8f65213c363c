package bankswap

import (
	"github.com/hashicorp/go-hclog"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/settings"
)

// Stub stands in for the engine on cartridges without a slot system. There
// is no flash backing store, so slot switches and flash erases do nothing;
// clearing the SRAM window still works.
type Stub struct {
	sram   cart.SRAM
	logger hclog.Logger
}

// NewStub creates a Stub. logger may be nil.
func NewStub(sram cart.SRAM, logger hclog.Logger) *Stub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Stub{sram: sram, logger: logger}
}

// Capable reports false.
func (s *Stub) Capable() bool {
	return false
}

func (s *Stub) SwitchToSlot(target settings.SRAMSlot) {
	s.logger.Debug("⏭️ No slot system, ignoring SRAM switch", "slot", target)
}

func (s *Stub) Erase(target settings.SRAMSlot) {
	if target != settings.None {
		s.logger.Debug("⏭️ No slot system, ignoring SRAM erase", "slot", target)
		return
	}
	blank := make([]byte, ClearPageSize)
	for i := range blank {
		blank[i] = cart.SRAMBlankByte
	}
	for i := 0; i < clearPages; i++ {
		s.sram.SelectBank(uint8(i >> 4))
		s.sram.WriteAt(blank, uint16(i<<12))
	}
}
