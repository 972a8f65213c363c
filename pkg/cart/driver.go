// Package cart describes the cartridge hardware the slot management core runs
// against: a bank-addressed NOR flash behind a lock/unlock gate, and a
// battery-backed SRAM window selected one bank at a time.
//
// The real flash driver is vendor specific. This package only defines the
// contract, plus in-memory and host-image implementations used by tests and
// by the cartfriend command.
package cart

// Flash geometry.
const (
	BankSize  = 0x10000 // bytes per flash bank
	BankCount = 0x100   // banks addressable within one physical slot
	GameSlots = 16      // physical game slots on the cartridge
	SRAMSlots = 15      // logical SRAM slots backed by flash

	// ErasedByte is the value every byte of an erased bank reads back as.
	ErasedByte = 0xFF
)

// NoSlot is returned by LaunchSlot when the firmware was not started from a
// flash slot (for example when running from RAM).
const NoSlot = 0xFF

// Driver is the storage driver contract consumed by the settings store and
// the bank-swap engine. Slots are physical flash slots, banks are BankSize
// units inside a slot and offsets are relative to the start of the bank. An
// access must not cross a bank boundary.
//
// Write and EraseBank are only valid between Unlock and Lock. Write programs
// flash and may only clear bits, so the target must have been erased first.
type Driver interface {
	Read(p []byte, slot, bank, offset uint16) error
	Write(p []byte, slot, bank, offset uint16) error
	EraseBank(slot, bank uint16) error

	Lock()
	Unlock()

	// LaunchSlot identifies the physical slot this firmware booted from, or
	// NoSlot.
	LaunchSlot() uint16

	// SupportsSlots reports whether the cartridge has a slot system at all.
	SupportsSlots() bool

	// Launch hands control to another program image. Callers unlock first;
	// the driver locks again before the handover.
	Launch(slot, bank uint16) error
}

// SRAM is the battery-backed save RAM as seen by the CPU: a BankSize window
// whose contents depend on the bank-select register. Accesses are plain
// memory copies and cannot fail.
type SRAM interface {
	SelectBank(bank uint8)
	ReadAt(p []byte, offset uint16)
	WriteAt(p []byte, offset uint16)
}

// SRAM geometry.
const (
	SRAMBankSize  = 0x10000
	SRAMBankCount = 8
	SRAMSize      = SRAMBankSize * SRAMBankCount

	// SRAMBlankByte is what an erased SRAM window is filled with.
	SRAMBlankByte = 0xFF
)
