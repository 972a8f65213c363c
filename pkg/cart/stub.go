package cart

import cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"

// StubDriver stands in for cartridges without a slot system. Reads return
// erased flash, everything that would modify flash is refused, and the launch
// slot is always NoSlot so the settings store never persists.
type StubDriver struct{}

func (StubDriver) Read(p []byte, slot, bank, offset uint16) error {
	for i := range p {
		p[i] = ErasedByte
	}
	return nil
}

func (StubDriver) Write(p []byte, slot, bank, offset uint16) error {
	return cferrors.ErrNotSupported
}

func (StubDriver) EraseBank(slot, bank uint16) error {
	return cferrors.ErrNotSupported
}

func (StubDriver) Lock()   {}
func (StubDriver) Unlock() {}

func (StubDriver) LaunchSlot() uint16 { return NoSlot }

func (StubDriver) SupportsSlots() bool { return false }

func (StubDriver) Launch(slot, bank uint16) error {
	return cferrors.ErrNotSupported
}
