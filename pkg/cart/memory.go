package cart

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
)

// OpKind identifies a recorded driver call.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
	OpErase
	OpLock
	OpUnlock
	OpLaunch
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpErase:
		return "erase"
	case OpLock:
		return "lock"
	case OpUnlock:
		return "unlock"
	case OpLaunch:
		return "launch"
	default:
		return "unknown"
	}
}

// Op is one recorded driver call.
type Op struct {
	Kind   OpKind
	Slot   uint16
	Bank   uint16
	Offset uint16
	Len    int

	// Locked is the lock state at the time of the call.
	Locked bool
}

func (o Op) String() string {
	return fmt.Sprintf("%s slot=%d bank=0x%02X offset=0x%04X len=%d", o.Kind, o.Slot, o.Bank, o.Offset, o.Len)
}

type bankKey struct {
	slot uint16
	bank uint16
}

// MemoryFlash is an in-memory NOR flash. Banks are allocated on first write
// and read back as ErasedByte until then. Every call is recorded in Ops.
type MemoryFlash struct {
	banks map[bankKey][]byte

	launchSlot    uint16
	supportsSlots bool
	locked        bool

	// Ops records every call in order.
	Ops []Op

	// RecordReads controls whether reads are recorded. Restores issue a lot
	// of them.
	RecordReads bool

	// FailReads, FailWrites and FailErases make the respective calls report
	// failure without touching p or the contents.
	FailReads  bool
	FailWrites bool
	FailErases bool

	// Launched holds the target of the last Launch call.
	Launched *Op

	logger hclog.Logger
}

// NewMemoryFlash creates an erased flash that reports launchSlot as its boot
// slot. The flash starts locked.
func NewMemoryFlash(launchSlot uint16) *MemoryFlash {
	return &MemoryFlash{
		banks:         make(map[bankKey][]byte),
		launchSlot:    launchSlot,
		supportsSlots: launchSlot != NoSlot,
		locked:        true,
		RecordReads:   true,
		logger:        hclog.NewNullLogger(),
	}
}

// SetLogger replaces the logger used for failure reporting.
func (f *MemoryFlash) SetLogger(logger hclog.Logger) {
	f.logger = logger
}

func (f *MemoryFlash) record(op Op) {
	op.Locked = f.locked
	f.Ops = append(f.Ops, op)
}

func checkRange(bank, offset uint16, n int) error {
	if bank >= BankCount {
		return fmt.Errorf("bank 0x%X: %w", bank, cferrors.ErrBankOutOfRange)
	}
	if int(offset)+n > BankSize {
		return fmt.Errorf("bank 0x%X offset 0x%04X len %d: %w", bank, offset, n, cferrors.ErrOffsetOverflow)
	}
	return nil
}

// Read copies flash contents into p.
func (f *MemoryFlash) Read(p []byte, slot, bank, offset uint16) error {
	if f.RecordReads {
		f.record(Op{Kind: OpRead, Slot: slot, Bank: bank, Offset: offset, Len: len(p)})
	}
	if err := checkRange(bank, offset, len(p)); err != nil {
		return err
	}
	if f.FailReads {
		return fmt.Errorf("simulated read failure")
	}

	data, ok := f.banks[bankKey{slot, bank}]
	if !ok {
		for i := range p {
			p[i] = ErasedByte
		}
		return nil
	}
	copy(p, data[offset:])
	return nil
}

// Write programs p into flash. Programming can only clear bits; a write whose
// result differs from p reports ErrWriteUnerased, leaving the ANDed value
// behind like real NOR flash would.
func (f *MemoryFlash) Write(p []byte, slot, bank, offset uint16) error {
	f.record(Op{Kind: OpWrite, Slot: slot, Bank: bank, Offset: offset, Len: len(p)})
	if f.locked {
		return cferrors.ErrLocked
	}
	if err := checkRange(bank, offset, len(p)); err != nil {
		return err
	}
	if f.FailWrites {
		return fmt.Errorf("simulated write failure")
	}

	data := f.bank(slot, bank)
	mismatch := false
	for i, v := range p {
		data[int(offset)+i] &= v
		if data[int(offset)+i] != v {
			mismatch = true
		}
	}
	if mismatch {
		f.logger.Warn("⚠️ Programmed unerased flash", "slot", slot, "bank", fmt.Sprintf("0x%02X", bank), "offset", fmt.Sprintf("0x%04X", offset))
		return cferrors.ErrWriteUnerased
	}
	return nil
}

// EraseBank returns a whole bank to ErasedByte.
func (f *MemoryFlash) EraseBank(slot, bank uint16) error {
	f.record(Op{Kind: OpErase, Slot: slot, Bank: bank, Len: BankSize})
	if f.locked {
		return cferrors.ErrLocked
	}
	if err := checkRange(bank, 0, 0); err != nil {
		return err
	}
	if f.FailErases {
		return fmt.Errorf("simulated erase failure")
	}
	delete(f.banks, bankKey{slot, bank})
	return nil
}

func (f *MemoryFlash) bank(slot, bank uint16) []byte {
	k := bankKey{slot, bank}
	data, ok := f.banks[k]
	if !ok {
		data = bytes.Repeat([]byte{ErasedByte}, BankSize)
		f.banks[k] = data
	}
	return data
}

// Lock disables write access.
func (f *MemoryFlash) Lock() {
	f.locked = true
	f.record(Op{Kind: OpLock})
}

// Unlock enables write access.
func (f *MemoryFlash) Unlock() {
	f.locked = false
	f.record(Op{Kind: OpUnlock})
}

// Locked reports the current lock state.
func (f *MemoryFlash) Locked() bool {
	return f.locked
}

// LaunchSlot implements Driver.
func (f *MemoryFlash) LaunchSlot() uint16 {
	return f.launchSlot
}

// SupportsSlots implements Driver.
func (f *MemoryFlash) SupportsSlots() bool {
	return f.supportsSlots
}

// Launch locks the flash and records the handover target.
func (f *MemoryFlash) Launch(slot, bank uint16) error {
	f.locked = true
	f.record(Op{Kind: OpLaunch, Slot: slot, Bank: bank})
	launched := f.Ops[len(f.Ops)-1]
	f.Launched = &launched
	return nil
}

// Count returns the number of recorded calls of the given kind.
func (f *MemoryFlash) Count(kind OpKind) int {
	n := 0
	for _, op := range f.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// OpsOf returns the recorded calls of the given kind, in order.
func (f *MemoryFlash) OpsOf(kind OpKind) []Op {
	var ops []Op
	for _, op := range f.Ops {
		if op.Kind == kind {
			ops = append(ops, op)
		}
	}
	return ops
}

// ResetOps forgets all recorded calls.
func (f *MemoryFlash) ResetOps() {
	f.Ops = nil
	f.Launched = nil
}

// BankData returns a copy of a bank's contents.
func (f *MemoryFlash) BankData(slot, bank uint16) []byte {
	out := make([]byte, BankSize)
	if data, ok := f.banks[bankKey{slot, bank}]; ok {
		copy(out, data)
	} else {
		for i := range out {
			out[i] = ErasedByte
		}
	}
	return out
}

// SetBankData overwrites a bank directly, bypassing the lock and the
// programming rules. Used to prepare flash images.
func (f *MemoryFlash) SetBankData(slot, bank uint16, data []byte) {
	copy(f.bank(slot, bank), data)
}

// UsedBanks lists every bank that is not fully erased, sorted by slot then
// bank.
func (f *MemoryFlash) UsedBanks() []BankRef {
	var refs []BankRef
	for k, data := range f.banks {
		if !isBlank(data, ErasedByte) {
			refs = append(refs, BankRef{Slot: k.slot, Bank: k.bank})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Slot != refs[j].Slot {
			return refs[i].Slot < refs[j].Slot
		}
		return refs[i].Bank < refs[j].Bank
	})
	return refs
}

// BankRef names one bank of one physical slot.
type BankRef struct {
	Slot uint16
	Bank uint16
}

func isBlank(data []byte, fill byte) bool {
	for _, v := range data {
		if v != fill {
			return false
		}
	}
	return true
}

// MemorySRAM is an in-memory SRAM chip with a bank-select register.
type MemorySRAM struct {
	data []byte
	bank uint8

	// Selects records every bank-select write, in order.
	Selects []uint8
}

// NewMemorySRAM creates an SRAM chip filled with SRAMBlankByte.
func NewMemorySRAM() *MemorySRAM {
	return &MemorySRAM{data: bytes.Repeat([]byte{SRAMBlankByte}, SRAMSize)}
}

// SelectBank implements SRAM. Bank numbers wrap at SRAMBankCount like the
// address lines of the real chip.
func (s *MemorySRAM) SelectBank(bank uint8) {
	s.bank = bank % SRAMBankCount
	s.Selects = append(s.Selects, bank)
}

// Bank returns the currently selected bank.
func (s *MemorySRAM) Bank() uint8 {
	return s.bank
}

// ReadAt implements SRAM.
func (s *MemorySRAM) ReadAt(p []byte, offset uint16) {
	base := int(s.bank)*SRAMBankSize + int(offset)
	copy(p, s.data[base:base+SRAMBankSize-int(offset)])
}

// WriteAt implements SRAM.
func (s *MemorySRAM) WriteAt(p []byte, offset uint16) {
	base := int(s.bank)*SRAMBankSize + int(offset)
	copy(s.data[base:base+SRAMBankSize-int(offset)], p)
}

// Bytes returns the full SRAM contents. The slice aliases the chip.
func (s *MemorySRAM) Bytes() []byte {
	return s.data
}

// Load replaces the SRAM contents. Short input leaves the tail untouched.
func (s *MemorySRAM) Load(data []byte) {
	copy(s.data, data)
}
