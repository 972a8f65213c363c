package settings

import "github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"

// Magic identifies a settings record.
var Magic = [4]byte{'w', 'f', 'C', 'F'}

const (
	// Version is the record format written by this firmware.
	Version = 5

	// CRCVersion is the first format version carrying a CRC16.
	CRCVersion = 4
)

// Record geometry. See Record.Pack for the field layout.
const (
	SlotNameSize = 24
	HeaderSize   = 6 // magic + version, probed before the rest is read
	RecordSize   = 426

	// SlotSize is the size of one ring slot.
	SlotSize = 1024

	// CRCOffset is where the CRC16 lives inside a ring slot. The CRC covers
	// every byte before it, unwritten bytes reading as erased flash.
	CRCOffset = SlotSize - 2
	CRCPadLen = CRCOffset
)

// Unbound marks an SRAM slot mapping entry that points at no game slot.
const Unbound = 0xFF

// DefaultColorTheme is the theme of a freshly synthesised record.
const DefaultColorTheme = 0x02

// Ring is a wear-levelling ring of fixed-size slots spanning consecutive
// flash banks of the launch slot.
type Ring struct {
	FirstBank uint16
	Banks     int
}

var (
	// CurrentRing is carved out of the start of the SRAM backup area.
	CurrentRing = Ring{FirstBank: 0x80, Banks: 2}

	// LegacyRing is where earlier firmware kept its settings.
	LegacyRing = Ring{FirstBank: 0xF8, Banks: 2}
)

// Slots returns the number of slots in the ring.
func (r Ring) Slots() int {
	return r.Banks * (cart.BankSize / SlotSize)
}

// MaxSlot returns the highest slot index.
func (r Ring) MaxSlot() int {
	return r.Slots() - 1
}

// Locate returns the bank and offset of slot i. Callers keep i within
// [0, MaxSlot].
func (r Ring) Locate(i int) (bank, offset uint16) {
	perBank := cart.BankSize / SlotSize
	return r.FirstBank + uint16(i/perBank), uint16((i % perBank) * SlotSize)
}

// Contains reports whether bank belongs to the ring.
func (r Ring) Contains(bank uint16) bool {
	return bank >= r.FirstBank && int(bank) < int(r.FirstBank)+r.Banks
}
