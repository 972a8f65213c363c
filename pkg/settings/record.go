package settings

import (
	"fmt"
	"strings"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
)

// SlotType is the role of a physical game slot.
type SlotType uint8

const (
	SlotTypeSoft            SlotType = 0x00
	SlotTypeLauncher        SlotType = 0x01
	SlotTypeMultilinearSoft SlotType = 0x02
	SlotTypeAppendedFiles   SlotType = 0x03
	SlotTypeUnused          SlotType = 0xFF
)

// SlotTypeGame is the older name of SlotTypeSoft.
const SlotTypeGame = SlotTypeSoft

func (t SlotType) String() string {
	switch t {
	case SlotTypeSoft:
		return "soft"
	case SlotTypeLauncher:
		return "launcher"
	case SlotTypeMultilinearSoft:
		return "multilinear-soft"
	case SlotTypeAppendedFiles:
		return "appended-files"
	case SlotTypeUnused:
		return "unused"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(t))
	}
}

// ParseSlotType parses the names produced by SlotType.String.
func ParseSlotType(s string) (SlotType, error) {
	for _, t := range []SlotType{SlotTypeSoft, SlotTypeLauncher, SlotTypeMultilinearSoft, SlotTypeAppendedFiles, SlotTypeUnused} {
		if t.String() == s {
			return t, nil
		}
	}
	if s == "game" {
		return SlotTypeGame, nil
	}
	return 0, fmt.Errorf("unknown slot type %q", s)
}

// Bootable reports whether the slot holds a program that owns save data.
func (t SlotType) Bootable() bool {
	return t == SlotTypeSoft || t == SlotTypeMultilinearSoft
}

// Flags1 is the first settings flag byte.
type Flags1 uint8

const (
	FlagHideSlotIDs           Flags1 = 0x01
	FlagDisableBufferedWrites Flags1 = 0x02
	FlagUnlockIEEPNextBoot    Flags1 = 0x04
	FlagSerialBaud38400       Flags1 = 0x08
	FlagWideScreen            Flags1 = 0x10
	FlagForceFastSRAM         Flags1 = 0x20
)

var flagNames = []struct {
	flag Flags1
	name string
}{
	{FlagHideSlotIDs, "hide-slot-ids"},
	{FlagDisableBufferedWrites, "disable-buffered-writes"},
	{FlagUnlockIEEPNextBoot, "unlock-ieep-next-boot"},
	{FlagSerialBaud38400, "serial-38400"},
	{FlagWideScreen, "wide-screen"},
	{FlagForceFastSRAM, "force-fast-sram"},
}

// ParseFlag looks up a flag by name.
func ParseFlag(name string) (Flags1, error) {
	for _, f := range flagNames {
		if f.name == name {
			return f.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown flag %q", name)
}

func (f Flags1) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Record is the persisted device configuration.
type Record struct {
	Magic   [4]byte
	Version uint16

	SlotTypes      [cart.GameSlots]SlotType
	ActiveSRAMSlot SRAMSlot

	// SRAMSlotMapping binds logical SRAM slot i to a game slot index, or
	// Unbound. Only the first cart.SRAMSlots entries are meaningful.
	SRAMSlotMapping [cart.GameSlots]uint8

	ColorTheme uint8

	// SlotNames holds per-slot display names. A first byte of 0x20 or above
	// marks a name; the name itself follows in the remaining bytes.
	SlotNames [cart.GameSlots][SlotNameSize]byte

	Flags1   Flags1
	Language uint8
}

// Defaults synthesises the record of a device that has never saved
// settings. The boot slot becomes the launcher, every other slot a game slot
// with an SRAM slot assigned in slot order.
func Defaults(launchSlot uint16) Record {
	r := Record{
		Magic:          Magic,
		Version:        Version,
		ActiveSRAMSlot: FirstBoot,
		ColorTheme:     DefaultColorTheme,
	}

	sramSlot := 0
	for i := 0; i < cart.GameSlots; i++ {
		if uint16(i) == launchSlot {
			r.SlotTypes[i] = SlotTypeLauncher
		} else {
			r.SlotTypes[i] = SlotTypeSoft
			if sramSlot < cart.GameSlots {
				r.SRAMSlotMapping[sramSlot] = uint8(i)
				sramSlot++
			}
		}
	}
	for ; sramSlot < cart.SRAMSlots; sramSlot++ {
		r.SRAMSlotMapping[sramSlot] = Unbound
	}

	return r
}

// LauncherSlot returns the slot marked as launcher, or -1.
func (r *Record) LauncherSlot() int {
	for i, t := range r.SlotTypes {
		if t == SlotTypeLauncher {
			return i
		}
	}
	return -1
}

// Name returns the display name of a game slot.
func (r *Record) Name(slot int) (string, bool) {
	entry := r.SlotNames[slot]
	if entry[0] < 0x20 {
		return "", false
	}
	name := entry[1:]
	if n := strings.IndexByte(string(name), 0); n >= 0 {
		name = name[:n]
	}
	return string(name), true
}

// SetName sets the display name of a game slot. An empty name clears it.
// Names longer than the entry are truncated.
func (r *Record) SetName(slot int, name string) {
	r.SlotNames[slot] = [SlotNameSize]byte{}
	if name == "" {
		return
	}
	r.SlotNames[slot][0] = 0x20
	copy(r.SlotNames[slot][1:], name)
}

// ClearNames removes every display name.
func (r *Record) ClearNames() {
	for i := range r.SlotNames {
		r.SlotNames[i] = [SlotNameSize]byte{}
	}
}

// MapSRAMSlot binds an SRAM slot to a game slot, or unbinds it when game is
// Unbound.
func (r *Record) MapSRAMSlot(sram int, game uint8) error {
	if sram < 0 || sram >= cart.SRAMSlots {
		return fmt.Errorf("sram slot %d out of range", sram)
	}
	if game != Unbound && int(game) >= cart.GameSlots {
		return fmt.Errorf("game slot %d out of range", game)
	}
	r.SRAMSlotMapping[sram] = game
	return nil
}

// SRAMSlotForGame returns the first SRAM slot bound to a game slot, or None.
func (r *Record) SRAMSlotForGame(game int) SRAMSlot {
	for i := 0; i < cart.SRAMSlots; i++ {
		if int(r.SRAMSlotMapping[i]) == game {
			return Index(i)
		}
	}
	return None
}

// CycleMapping moves an SRAM slot's binding to the next (dir > 0) or
// previous bootable game slot, passing through Unbound between the ends.
func (r *Record) CycleMapping(sram int, dir int) {
	choices := []uint8{Unbound}
	for i, t := range r.SlotTypes {
		if t.Bootable() {
			choices = append(choices, uint8(i))
		}
	}

	pos := 0
	for i, c := range choices {
		if c == r.SRAMSlotMapping[sram] {
			pos = i
			break
		}
	}
	if dir > 0 {
		pos = (pos + 1) % len(choices)
	} else {
		pos = (pos + len(choices) - 1) % len(choices)
	}
	r.SRAMSlotMapping[sram] = choices[pos]
}
