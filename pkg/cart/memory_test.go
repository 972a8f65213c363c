package cart

import (
	"bytes"
	"errors"
	"testing"

	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
)

func TestMemoryFlashStartsErasedAndLocked(t *testing.T) {
	f := NewMemoryFlash(0)

	if !f.Locked() {
		t.Fatalf("new flash should be locked")
	}

	buf := make([]byte, 16)
	if err := f.Read(buf, 0, 0x80, 0x1000); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{ErasedByte}, 16)) {
		t.Errorf("erased flash read %x", buf)
	}
}

func TestMemoryFlashWriteRequiresUnlock(t *testing.T) {
	f := NewMemoryFlash(0)

	if err := f.Write([]byte{0x12}, 0, 0x80, 0); !errors.Is(err, cferrors.ErrLocked) {
		t.Errorf("Write() while locked error = %v, want ErrLocked", err)
	}
	if err := f.EraseBank(0, 0x80); !errors.Is(err, cferrors.ErrLocked) {
		t.Errorf("EraseBank() while locked error = %v, want ErrLocked", err)
	}

	f.Unlock()
	if err := f.Write([]byte{0x12, 0x34}, 0, 0x80, 0x10); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make([]byte, 2)
	f.Read(buf, 0, 0x80, 0x10)
	if !bytes.Equal(buf, []byte{0x12, 0x34}) {
		t.Errorf("read back %x, want 1234", buf)
	}
}

func TestMemoryFlashNORProgramming(t *testing.T) {
	f := NewMemoryFlash(0)
	f.Unlock()

	f.Write([]byte{0xF0}, 0, 1, 0)
	if err := f.Write([]byte{0x0F}, 0, 1, 0); !errors.Is(err, cferrors.ErrWriteUnerased) {
		t.Errorf("overwrite error = %v, want ErrWriteUnerased", err)
	}

	buf := make([]byte, 1)
	f.Read(buf, 0, 1, 0)
	if buf[0] != 0x00 {
		t.Errorf("programmed value = 0x%02X, want bits ANDed to 0x00", buf[0])
	}

	f.EraseBank(0, 1)
	f.Read(buf, 0, 1, 0)
	if buf[0] != ErasedByte {
		t.Errorf("after erase = 0x%02X, want 0x%02X", buf[0], ErasedByte)
	}
}

func TestMemoryFlashRangeChecks(t *testing.T) {
	f := NewMemoryFlash(0)
	f.Unlock()

	if err := f.Write(make([]byte, 4), 0, 0x100, 0); !errors.Is(err, cferrors.ErrBankOutOfRange) {
		t.Errorf("bank 0x100 error = %v, want ErrBankOutOfRange", err)
	}
	if err := f.Read(make([]byte, 4), 0, 0x10, 0xFFFE); !errors.Is(err, cferrors.ErrOffsetOverflow) {
		t.Errorf("crossing read error = %v, want ErrOffsetOverflow", err)
	}
}

func TestMemoryFlashSlotsAreIndependent(t *testing.T) {
	f := NewMemoryFlash(0)
	f.Unlock()
	f.Write([]byte{0x00}, 3, 0x80, 0)

	buf := make([]byte, 1)
	f.Read(buf, 4, 0x80, 0)
	if buf[0] != ErasedByte {
		t.Errorf("slot 4 saw slot 3 data")
	}

	used := f.UsedBanks()
	if len(used) != 1 || used[0] != (BankRef{Slot: 3, Bank: 0x80}) {
		t.Errorf("UsedBanks() = %v", used)
	}
}

func TestMemoryFlashRecordsOps(t *testing.T) {
	f := NewMemoryFlash(2)
	f.Unlock()
	f.EraseBank(2, 0x90)
	f.Write([]byte{1, 2, 3}, 2, 0x90, 0x100)
	f.Launch(5, 0xFF)

	kinds := []OpKind{}
	for _, op := range f.Ops {
		kinds = append(kinds, op.Kind)
	}
	want := []OpKind{OpUnlock, OpErase, OpWrite, OpLaunch}
	if len(kinds) != len(want) {
		t.Fatalf("ops = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, kinds[i], want[i])
		}
	}

	if f.Launched == nil || f.Launched.Slot != 5 || !f.Launched.Locked {
		t.Errorf("Launched = %+v, want slot 5 while locked", f.Launched)
	}
	if f.Count(OpWrite) != 1 || f.OpsOf(OpWrite)[0].Len != 3 {
		t.Errorf("write ops = %v", f.OpsOf(OpWrite))
	}

	f.ResetOps()
	if len(f.Ops) != 0 || f.Launched != nil {
		t.Errorf("ResetOps() left state behind")
	}
}

func TestMemoryFlashInjectedFailuresLeaveContents(t *testing.T) {
	f := NewMemoryFlash(0)
	f.Unlock()
	f.Write([]byte{0x55}, 0, 7, 0)

	f.FailWrites = true
	f.FailErases = true
	if err := f.Write([]byte{0x00}, 0, 7, 1); err == nil {
		t.Errorf("FailWrites did not fail")
	}
	if err := f.EraseBank(0, 7); err == nil {
		t.Errorf("FailErases did not fail")
	}

	data := f.BankData(0, 7)
	if data[0] != 0x55 || data[1] != ErasedByte {
		t.Errorf("contents changed: %x", data[:2])
	}

	f.FailReads = true
	p := []byte{0x12}
	if err := f.Read(p, 0, 7, 0); err == nil {
		t.Errorf("FailReads did not fail")
	}
	if p[0] != 0x12 {
		t.Errorf("failed read wrote 0x%02X into the buffer", p[0])
	}
}

func TestMemorySRAMBankSelect(t *testing.T) {
	s := NewMemorySRAM()

	s.SelectBank(3)
	s.WriteAt([]byte{0xAA, 0xBB}, 0xFFFE)
	s.SelectBank(4)
	s.WriteAt([]byte{0xCC}, 0)

	buf := make([]byte, 2)
	s.SelectBank(3)
	s.ReadAt(buf, 0xFFFE)
	if !bytes.Equal(buf, []byte{0xAA, 0xBB}) {
		t.Errorf("bank 3 read %x", buf)
	}

	raw := s.Bytes()
	if raw[3*SRAMBankSize+0xFFFE] != 0xAA || raw[4*SRAMBankSize] != 0xCC {
		t.Errorf("raw layout does not follow bank order")
	}

	s.SelectBank(SRAMBankCount + 1)
	if s.Bank() != 1 {
		t.Errorf("bank select should wrap, got %d", s.Bank())
	}
	if got := s.Selects; len(got) != 4 || got[3] != SRAMBankCount+1 {
		t.Errorf("Selects = %v", got)
	}
}

func TestStubDriverRefusesWrites(t *testing.T) {
	var d Driver = StubDriver{}

	if d.SupportsSlots() || d.LaunchSlot() != NoSlot {
		t.Errorf("stub should report no slot system")
	}
	if err := d.Write([]byte{0}, 0, 0, 0); !errors.Is(err, cferrors.ErrNotSupported) {
		t.Errorf("Write() error = %v", err)
	}
	if err := d.EraseBank(0, 0); !errors.Is(err, cferrors.ErrNotSupported) {
		t.Errorf("EraseBank() error = %v", err)
	}

	buf := []byte{1, 2}
	d.Read(buf, 0, 0, 0)
	if buf[0] != ErasedByte || buf[1] != ErasedByte {
		t.Errorf("Read() = %x", buf)
	}
}
