package sst25

import (
	"bytes"
	"errors"
	"hash/crc32"
	"testing"
	"time"

	"github.com/gentam/sst25/sim"
)

func TestNewFlash(t *testing.T) {
	chip := sim.New(1<<20, flashIDSST25VF080B)

	tests := []struct {
		name      string
		bus       Bus
		arb       Arbiter
		wantPanic bool
	}{
		{name: "nop arbiter", bus: chip, arb: NopArbiter},
		{name: "nil bus", bus: nil, arb: NopArbiter, wantPanic: true},
		{name: "nil arbiter", bus: chip, arb: nil, wantPanic: true},
		{
			name:      "missing reacquire hook",
			bus:       chip,
			arb:       ArbiterFuncs{Relinquish: func() error { return nil }},
			wantPanic: true,
		},
		{
			name:      "pointer missing reacquire hook",
			bus:       chip,
			arb:       &ArbiterFuncs{Relinquish: func() error { return nil }},
			wantPanic: true,
		},
		{name: "nil pointer hooks", bus: chip, arb: (*ArbiterFuncs)(nil), wantPanic: true},
		{
			name: "pointer hooks",
			bus:  chip,
			arb: &ArbiterFuncs{
				Relinquish: func() error { return nil },
				Reacquire:  func() error { return nil },
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); (r != nil) != tt.wantPanic {
					t.Errorf("panic = %v, wantPanic %v", r, tt.wantPanic)
				}
			}()
			if f := NewFlash(tt.bus, tt.arb); f == nil {
				t.Error("NewFlash() returned nil")
			}
		})
	}
}

func TestReadID(t *testing.T) {
	tests := []struct {
		name     string
		deviceID byte
		wantName string
		wantSize int
	}{
		{name: "SST25VF080B", deviceID: 0x8E, wantName: "SST25VF080B", wantSize: 1 << 20},
		{name: "SST25VF016B", deviceID: 0x41, wantName: "SST25VF016B", wantSize: 2 << 20},
		{name: "unknown part", deviceID: 0x99, wantName: "", wantSize: 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.chip = sim.New(4<<20, tt.deviceID)
			r.arb.chip = r.chip
			r.flash = NewFlash(r.chip, r.arb, WithClock(r.clock))

			id, name, err := r.flash.ReadID()
			if err != nil {
				t.Fatalf("ReadID() error = %v", err)
			}
			if id != tt.deviceID || name != tt.wantName {
				t.Errorf("ReadID() = 0x%02X %q, want 0x%02X %q", id, name, tt.deviceID, tt.wantName)
			}
			if got := r.flash.Capacity(); got != tt.wantSize {
				t.Errorf("Capacity() = %d, want %d", got, tt.wantSize)
			}
			if ops := r.chip.Ops(); !bytes.Equal(ops, []byte{0x90}) {
				t.Errorf("ops = % X, want 90", ops)
			}
			r.checkIdle(t)
		})
	}
}

func TestProgramReadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		addr int
		size int
	}{
		{name: "single byte at zero", addr: 0, size: 1},
		{name: "hello at sector", addr: 0x001000, size: 5},
		{name: "across sector boundary", addr: 0x001F80, size: 300},
		{name: "end of array", addr: 1<<20 - 16, size: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)

			payload := make([]byte, tt.size)
			for i := range payload {
				payload[i] = byte(i*31 + 7)
			}
			if err := r.flash.Program(tt.addr, payload); err != nil {
				t.Fatalf("Program() error = %v", err)
			}

			got, err := r.flash.Read(tt.addr, tt.size)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("Read() = % X, want % X", got, payload)
			}
			r.checkIdle(t)
		})
	}
}

func TestProgramFraming(t *testing.T) {
	r := newRig(t)

	if err := r.flash.Program(0x000010, []byte{0xAB}); err != nil {
		t.Fatalf("Program() error = %v", err)
	}

	want := []byte{
		0x06, 0x01, 0x04, // clear protection
		0x06,             // prepare write
		0x05, 0x06, 0x02, // byte write: poll, enable, program
		0x05, 0x05, 0x04, // complete: poll until ready, disable
		0x06, 0x01, 0x04, // restore protection
	}
	if ops := r.chip.Ops(); !bytes.Equal(ops, want) {
		t.Errorf("ops = % X\nwant % X", ops, want)
	}
	if r.clock.sleeps != 1 || r.clock.slept != time.Millisecond {
		t.Errorf("slept %v in %d polls, want 1ms in 1", r.clock.slept, r.clock.sleeps)
	}
	if r.chip.Transactions() != 3 {
		t.Errorf("transactions = %d, want 3", r.chip.Transactions())
	}
	r.checkIdle(t)
}

func TestEraseSector(t *testing.T) {
	r := newRig(t)

	chunk := bytes.Repeat([]byte{0x5A}, 16)
	for _, addr := range []int{0x0FF0, 0x1000, 0x1800, 0x1FF0, 0x2000} {
		if err := r.flash.Program(addr, chunk); err != nil {
			t.Fatalf("Program(0x%X) error = %v", addr, err)
		}
	}
	r.clock.slept = 0

	if err := r.flash.EraseSector(0x1234); err != nil {
		t.Fatalf("EraseSector() error = %v", err)
	}

	sector, err := r.flash.Read(0x1000, SectorSize)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(sector, bytes.Repeat([]byte{0xFF}, SectorSize)) {
		t.Error("sector not erased")
	}
	for _, addr := range []int{0x0FF0, 0x2000} {
		got, err := r.flash.Read(addr, len(chunk))
		if err != nil {
			t.Fatalf("Read(0x%X) error = %v", addr, err)
		}
		if !bytes.Equal(got, chunk) {
			t.Errorf("neighbour at 0x%X = % X, want % X", addr, got, chunk)
		}
	}

	if want := 25*time.Millisecond + 3*time.Millisecond; r.clock.slept != want {
		t.Errorf("slept %v, want settle plus three polls = %v", r.clock.slept, want)
	}
	r.checkIdle(t)
}

func TestEraseSectorFraming(t *testing.T) {
	r := newRig(t)

	if err := r.flash.EraseSector(0x0A1234); err != nil {
		t.Fatalf("EraseSector() error = %v", err)
	}

	want := []byte{
		0x06, 0x01, 0x04, // clear protection
		0x06, 0x20, // enable, erase
		0x05, 0x05, 0x05, 0x05, // poll until ready
		0x04,             // disable
		0x06, 0x01, 0x04, // restore protection
	}
	if ops := r.chip.Ops(); !bytes.Equal(ops, want) {
		t.Errorf("ops = % X\nwant % X", ops, want)
	}
	r.checkIdle(t)
}

func TestEraseChip(t *testing.T) {
	r := newRig(t)

	if err := r.flash.Program(0x000000, []byte("boot")); err != nil {
		t.Fatal(err)
	}
	if err := r.flash.Program(0x0FFFFC, []byte("tail")); err != nil {
		t.Fatal(err)
	}
	r.clock.slept = 0

	if err := r.flash.EraseChip(); err != nil {
		t.Fatalf("EraseChip() error = %v", err)
	}
	if !bytes.Equal(r.chip.Bytes(), bytes.Repeat([]byte{0xFF}, r.chip.Size())) {
		t.Error("chip not erased")
	}
	if r.clock.slept < 50*time.Millisecond {
		t.Errorf("slept %v, want at least 50ms", r.clock.slept)
	}
	r.checkIdle(t)
}

func TestEraseRange(t *testing.T) {
	tests := []struct {
		name    string
		addr    int
		size    int
		sectors int
	}{
		{name: "empty", addr: 0x1000, size: 0, sectors: 0},
		{name: "inside one sector", addr: 0x1010, size: 16, sectors: 1},
		{name: "straddling", addr: 0x0FFF, size: 2, sectors: 2},
		{name: "three sectors", addr: 0x2000, size: 3 * SectorSize, sectors: 3},
		{name: "wraps past the top", addr: 0xFFFFFF, size: 2, sectors: 2},
		{name: "larger than address space", addr: 0xFFF000, size: 1 << 25, sectors: 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			if err := r.flash.Erase(tt.addr, tt.size); err != nil {
				t.Fatalf("Erase() error = %v", err)
			}
			n := bytes.Count(r.chip.Ops(), []byte{0x20})
			if n != tt.sectors {
				t.Errorf("erased %d sectors, want %d", n, tt.sectors)
			}
			r.checkIdle(t)
		})
	}
}

func TestEraseNegativeSize(t *testing.T) {
	r := newRig(t)
	if err := r.flash.Erase(0x1000, -1); err == nil {
		t.Error("Erase() accepted a negative size")
	}
	if len(r.chip.Ops()) != 0 {
		t.Errorf("ops = % X, want none", r.chip.Ops())
	}
}

func TestSession(t *testing.T) {
	r := newRig(t)

	s, err := r.flash.PrepareWrite(0x000020)
	if err != nil {
		t.Fatalf("PrepareWrite() error = %v", err)
	}
	if n, err := s.Write([]byte("abc")); n != 3 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if s.Addr() != 0x23 || s.Len() != 3 {
		t.Errorf("Addr() = 0x%X Len() = %d, want 0x23 3", s.Addr(), s.Len())
	}
	if want := crc32.ChecksumIEEE([]byte("abc")); s.Sum32() != want {
		t.Errorf("Sum32() = 0x%08X, want 0x%08X", s.Sum32(), want)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	r.checkIdle(t)

	if got := r.chip.Bytes()[0x20:0x23]; string(got) != "abc" {
		t.Errorf("flash = %q, want \"abc\"", got)
	}
}

func TestSessionCursorWraps(t *testing.T) {
	r := newRig(t)

	s, err := r.flash.PrepareWrite(maxAddr)
	if err != nil {
		t.Fatalf("PrepareWrite() error = %v", err)
	}
	if err := s.WriteByte(0x42); err != nil {
		t.Fatalf("WriteByte() error = %v", err)
	}
	if s.Addr() != 0 {
		t.Errorf("Addr() = 0x%X, want 0", s.Addr())
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	r.checkIdle(t)
}

func TestSessionClosedTwice(t *testing.T) {
	r := newRig(t)

	s, err := r.flash.PrepareWrite(0x000100)
	if err != nil {
		t.Fatal(err)
	}
	s.Write([]byte{1, 2})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	ops := len(r.chip.Ops())

	if err := s.Close(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Close() error = %v, want ErrSessionClosed", err)
	}
	if err := s.WriteByte(3); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("WriteByte() after Close error = %v, want ErrSessionClosed", err)
	}
	if len(r.chip.Ops()) != ops {
		t.Errorf("closed session touched the bus: % X", r.chip.Ops()[ops:])
	}
	if s.Addr() != 0x102 || s.Len() != 2 {
		t.Errorf("closed session state changed: Addr() = 0x%X Len() = %d", s.Addr(), s.Len())
	}

	// A new session starts from its own address with a fresh checksum.
	s2, err := r.flash.PrepareWrite(0x000200)
	if err != nil {
		t.Fatalf("PrepareWrite() error = %v", err)
	}
	s2.WriteByte(9)
	if s2.Addr() != 0x201 || s2.Len() != 1 || s2.Sum32() != crc32.ChecksumIEEE([]byte{9}) {
		t.Errorf("second session Addr() = 0x%X Len() = %d Sum32() = 0x%08X", s2.Addr(), s2.Len(), s2.Sum32())
	}
	if err := s2.Close(); err != nil {
		t.Fatal(err)
	}
	r.checkIdle(t)
}

func TestSessionExcludesOtherOperations(t *testing.T) {
	r := newRig(t)

	s, err := r.flash.PrepareWrite(0)
	if err != nil {
		t.Fatal(err)
	}

	ops := map[string]func() error{
		"ReadID":       func() error { _, _, err := r.flash.ReadID(); return err },
		"Read":         func() error { _, err := r.flash.Read(0, 1); return err },
		"Status":       func() error { _, err := r.flash.Status(); return err },
		"WriteStatus":  func() error { return r.flash.WriteStatus(StatusUnprotected) },
		"EraseSector":  func() error { return r.flash.EraseSector(0) },
		"EraseChip":    func() error { return r.flash.EraseChip() },
		"PrepareWrite": func() error { _, err := r.flash.PrepareWrite(0x100); return err },
		"Stream": func() error {
			_, err := r.flash.Stream(t.Context(), 0, &scriptedSource{clock: r.clock}, time.Second)
			return err
		},
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrSessionOpen) {
			t.Errorf("%s during session: error = %v, want ErrSessionOpen", name, err)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	r.checkIdle(t)
}

func TestBusyTimeout(t *testing.T) {
	r := newRig(t, WithBusyTimeout(100*time.Millisecond))
	r.chip.Stuck = true

	err := r.flash.EraseSector(0)
	if !errors.Is(err, ErrDeviceUnresponsive) {
		t.Fatalf("EraseSector() error = %v, want ErrDeviceUnresponsive", err)
	}
	// The chip ignores the restore while busy, so the error says so.
	if !errors.Is(err, ErrUnprotected) {
		t.Errorf("EraseSector() error = %v, want ErrUnprotected", err)
	}
	r.checkStuckCleanup(t, flashCmdErase4KB)
}

func TestSessionBusyTimeout(t *testing.T) {
	r := newRig(t, WithBusyTimeout(100*time.Millisecond))

	s, err := r.flash.PrepareWrite(0x100)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteByte(0xA5); err != nil {
		t.Fatalf("first WriteByte() error = %v", err)
	}
	r.chip.Stuck = true

	if err := s.WriteByte(0x5A); !errors.Is(err, ErrDeviceUnresponsive) {
		t.Errorf("WriteByte() error = %v, want ErrDeviceUnresponsive", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	err = s.Close()
	if !errors.Is(err, ErrDeviceUnresponsive) {
		t.Errorf("Close() error = %v, want ErrDeviceUnresponsive", err)
	}
	if !errors.Is(err, ErrUnprotected) {
		t.Errorf("Close() error = %v, want ErrUnprotected", err)
	}
	r.checkStuckCleanup(t, flashCmdByteProgram)

	if _, err := r.flash.Status(); err != nil {
		t.Errorf("Status() after Close error = %v, want bus released", err)
	}
}

// checkStuckCleanup checks that an operation which gave up on a busy chip
// still closed its transactions and sent a status write after the command
// that left the chip busy.
func (r *testRig) checkStuckCleanup(t *testing.T, cmd byte) {
	t.Helper()
	if r.chip.InTransaction() {
		t.Error("transaction left open")
	}
	if r.arb.relinquish != r.arb.reacquire {
		t.Errorf("arbiter relinquish=%d reacquire=%d", r.arb.relinquish, r.arb.reacquire)
	}
	ops := r.chip.Ops()
	i := bytes.LastIndexByte(ops, cmd)
	if i < 0 {
		t.Fatalf("ops = % X, no 0x%02X", ops, cmd)
	}
	if bytes.IndexByte(ops[i:], flashCmdWriteStatus) < 0 {
		t.Errorf("ops = % X, no status write after 0x%02X", ops, cmd)
	}
}

func TestAddressOutOfRange(t *testing.T) {
	r := newRig(t)

	ops := map[string]func() error{
		"Read":         func() error { _, err := r.flash.Read(1<<24, 1); return err },
		"EraseSector":  func() error { return r.flash.EraseSector(-1) },
		"Erase":        func() error { return r.flash.Erase(1<<24, SectorSize) },
		"PrepareWrite": func() error { _, err := r.flash.PrepareWrite(1 << 25); return err },
		"Program":      func() error { return r.flash.Program(-4, []byte{0}) },
	}
	for name, op := range ops {
		var addrErr *AddressError
		if err := op(); !errors.As(err, &addrErr) {
			t.Errorf("%s: error = %v, want *AddressError", name, err)
		}
	}
	if len(r.chip.Ops()) != 0 {
		t.Errorf("bus used for invalid addresses: % X", r.chip.Ops())
	}
}

func TestArbiterFailure(t *testing.T) {
	chip := sim.New(1<<20, flashIDSST25VF080B)
	errBusy := errors.New("sibling busy")
	var reacquired int
	f := NewFlash(chip, ArbiterFuncs{
		Relinquish: func() error { return errBusy },
		Reacquire:  func() error { reacquired++; return nil },
	})

	if _, _, err := f.ReadID(); !errors.Is(err, errBusy) {
		t.Errorf("ReadID() error = %v, want %v", err, errBusy)
	}
	if chip.Transactions() != 0 || len(chip.Ops()) != 0 {
		t.Errorf("bus used after failed relinquish")
	}
	if reacquired != 0 {
		t.Errorf("reacquired %d times without relinquish", reacquired)
	}
}

func TestStatus(t *testing.T) {
	r := newRig(t)

	sr, err := r.flash.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if sr != StatusProtected {
		t.Errorf("Status() = %v, want %v", sr, StatusProtected)
	}

	if err := r.flash.WriteStatus(StatusUnprotected); err != nil {
		t.Fatalf("WriteStatus() error = %v", err)
	}
	if sr, _ := r.flash.Status(); sr != StatusUnprotected {
		t.Errorf("Status() after unprotect = %v", sr)
	}
	if err := r.flash.WriteStatus(StatusProtected); err != nil {
		t.Fatal(err)
	}
	r.checkIdle(t)
}

func TestStatusRegisterString(t *testing.T) {
	tests := []struct {
		sr   StatusRegister
		want string
	}{
		{sr: 0x00, want: "00000000"},
		{sr: StatusProtected, want: "00011100 BP2,BP1,BP0"},
		{sr: 0x03, want: "00000011 WEL,BUSY"},
		{sr: 0xE0, want: "11100000 BPL,AAI,BP3"},
	}
	for _, tt := range tests {
		if got := tt.sr.String(); got != tt.want {
			t.Errorf("StatusRegister(0x%02X).String() = %q, want %q", byte(tt.sr), got, tt.want)
		}
	}
}
