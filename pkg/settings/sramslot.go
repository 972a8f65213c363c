package settings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
)

// SlotKind tells the variants of SRAMSlot apart.
type SlotKind uint8

const (
	KindNone SlotKind = iota
	KindIndex
	KindFirstBoot
	KindAll
)

// Wire encodings of the sentinels.
const (
	wireAll       = 0xFD
	wireFirstBoot = 0xFE
	wireNone      = 0xFF
)

// SRAMSlot names a logical SRAM slot or one of the sentinels:
//
//   - None: nothing is resident in SRAM.
//   - FirstBoot: ownership of the SRAM contents has not been established
//     yet. Never persisted.
//   - All: every logical slot, only meaningful as an erase target.
//
// The zero value is None.
type SRAMSlot struct {
	kind  SlotKind
	index uint8
}

var (
	None      = SRAMSlot{kind: KindNone}
	FirstBoot = SRAMSlot{kind: KindFirstBoot}
	All       = SRAMSlot{kind: KindAll}
)

// Index returns the SRAMSlot for logical slot n. Range checks belong to the
// code that turns slots into flash banks.
func Index(n int) SRAMSlot {
	return SRAMSlot{kind: KindIndex, index: uint8(n)}
}

// SRAMSlotFromByte decodes the persisted encoding.
func SRAMSlotFromByte(b uint8) SRAMSlot {
	switch b {
	case wireNone:
		return None
	case wireFirstBoot:
		return FirstBoot
	case wireAll:
		return All
	default:
		return Index(int(b))
	}
}

// Byte returns the persisted encoding.
func (s SRAMSlot) Byte() uint8 {
	switch s.kind {
	case KindIndex:
		return s.index
	case KindFirstBoot:
		return wireFirstBoot
	case KindAll:
		return wireAll
	default:
		return wireNone
	}
}

// Kind returns the variant.
func (s SRAMSlot) Kind() SlotKind {
	return s.kind
}

// Index returns the logical slot number and whether s is an index at all.
func (s SRAMSlot) Index() (int, bool) {
	return int(s.index), s.kind == KindIndex
}

// IsIndex reports whether s names a logical slot.
func (s SRAMSlot) IsIndex() bool {
	return s.kind == KindIndex
}

// Valid reports whether s is a sentinel or an index below cart.SRAMSlots.
func (s SRAMSlot) Valid() bool {
	return s.kind != KindIndex || int(s.index) < cart.SRAMSlots
}

func (s SRAMSlot) String() string {
	switch s.kind {
	case KindIndex:
		return strconv.Itoa(int(s.index))
	case KindFirstBoot:
		return "first-boot"
	case KindAll:
		return "all"
	default:
		return "none"
	}
}

// ParseSRAMSlot parses the forms produced by String.
func ParseSRAMSlot(s string) (SRAMSlot, error) {
	switch strings.ToLower(s) {
	case "none":
		return None, nil
	case "first-boot":
		return FirstBoot, nil
	case "all":
		return All, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= wireAll {
		return None, fmt.Errorf("invalid sram slot %q", s)
	}
	return Index(n), nil
}
