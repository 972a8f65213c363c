package settings

import (
	"encoding/binary"
	"fmt"

	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
)

// Field offsets within a packed record.
const (
	offMagic      = 0
	offVersion    = 4
	offSlotTypes  = 6
	offActiveSRAM = offSlotTypes + cart.GameSlots
	offMapping    = offActiveSRAM + 1
	offColorTheme = offMapping + cart.GameSlots
	offSlotNames  = offColorTheme + 1
	offFlags1     = offSlotNames + cart.GameSlots*SlotNameSize
	offLanguage   = offFlags1 + 1
)

// Pack serializes the record to exactly RecordSize bytes.
func (r *Record) Pack() []byte {
	buf := make([]byte, RecordSize)

	copy(buf[offMagic:offMagic+4], r.Magic[:])
	binary.LittleEndian.PutUint16(buf[offVersion:offVersion+2], r.Version)
	for i, t := range r.SlotTypes {
		buf[offSlotTypes+i] = uint8(t)
	}
	buf[offActiveSRAM] = r.ActiveSRAMSlot.Byte()
	copy(buf[offMapping:offMapping+cart.GameSlots], r.SRAMSlotMapping[:])
	buf[offColorTheme] = r.ColorTheme
	for i := range r.SlotNames {
		copy(buf[offSlotNames+i*SlotNameSize:], r.SlotNames[i][:])
	}
	buf[offFlags1] = uint8(r.Flags1)
	buf[offLanguage] = r.Language

	return buf
}

// Unpack deserializes a record. Data beyond RecordSize is ignored.
func Unpack(data []byte) (*Record, error) {
	if len(data) < RecordSize {
		return nil, fmt.Errorf("got %d bytes, need %d: %w", len(data), RecordSize, cferrors.ErrRecordTooShort)
	}

	r := &Record{}
	copy(r.Magic[:], data[offMagic:offMagic+4])
	r.Version = binary.LittleEndian.Uint16(data[offVersion : offVersion+2])
	for i := range r.SlotTypes {
		r.SlotTypes[i] = SlotType(data[offSlotTypes+i])
	}
	r.ActiveSRAMSlot = SRAMSlotFromByte(data[offActiveSRAM])
	copy(r.SRAMSlotMapping[:], data[offMapping:offMapping+cart.GameSlots])
	r.ColorTheme = data[offColorTheme]
	for i := range r.SlotNames {
		copy(r.SlotNames[i][:], data[offSlotNames+i*SlotNameSize:])
	}
	r.Flags1 = Flags1(data[offFlags1])
	r.Language = data[offLanguage]

	return r, nil
}

// HasCRC reports whether records of the given format version carry a CRC16.
func HasCRC(version uint16) bool {
	return version >= CRCVersion
}
