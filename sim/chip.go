// Package sim models an SST25VF serial flash chip behind an SPI bus.
//
// A Chip implements the bus interface of package sst25 and executes the
// frames it receives the way the chip would: programming only clears bits,
// erase and program need the write enable latch, block protection rejects
// both, and the busy bit stays set for a number of status polls. Protocol
// mistakes are recorded as violations rather than failing the transfer, so
// tests can assert that a sequence was clean.
package sim

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Opcodes understood by the model.
const (
	OpWriteStatus  = 0x01
	OpByteProgram  = 0x02
	OpRead         = 0x03
	OpWriteDisable = 0x04
	OpReadStatus   = 0x05
	OpWriteEnable  = 0x06
	OpErase4KB     = 0x20
	OpReadID       = 0x90
	OpEraseChip    = 0xC7
)

const (
	ManufacturerID = 0xBF
	sectorSize     = 4 << 10

	statusBusy     = 1 << 0
	statusWEL      = 1 << 1
	statusBP       = 0x3C // BP3-0
	statusWritable = 0xBC // BPL, BP3-0
)

// Chip is a simulated flash chip. The zero value is not usable; call New.
type Chip struct {
	// EraseBusyPolls is how many status reads report busy after an erase.
	EraseBusyPolls int
	// ProgramBusyPolls is how many status reads report busy after a byte
	// program.
	ProgramBusyPolls int
	// Stuck keeps the busy bit set forever once an operation starts.
	Stuck bool
	// Freq and Mode are the settings transactions must use.
	Freq physic.Frequency
	Mode spi.Mode

	deviceID byte
	mem      []byte
	status   byte // BPL and BP3-0; WEL and BUSY are derived
	wel      bool
	busy     int

	inTx     bool
	selected bool
	frame    []byte

	ops        []byte
	txCount    int
	violations []error
}

// New returns an erased chip of size bytes that answers Read-ID with
// deviceID. Like the real part it powers up with the whole array protected.
func New(size int, deviceID byte) *Chip {
	c := &Chip{
		EraseBusyPolls:   3,
		ProgramBusyPolls: 1,
		Freq:             1 * physic.MegaHertz,
		Mode:             spi.Mode0,
		deviceID:         deviceID,
		mem:              make([]byte, size),
		status:           0x1C,
	}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	return c
}

func (c *Chip) violate(format string, a ...any) {
	c.violations = append(c.violations, fmt.Errorf(format, a...))
}

func (c *Chip) Begin(freq physic.Frequency, mode spi.Mode) error {
	if c.inTx {
		c.violate("nested transaction")
	}
	if freq != c.Freq || mode != c.Mode {
		c.violate("transaction at %s %v, want %s %v", freq, mode, c.Freq, c.Mode)
	}
	c.inTx = true
	c.txCount++
	return nil
}

func (c *Chip) End() error {
	if !c.inTx {
		c.violate("end without transaction")
	}
	if c.selected {
		c.violate("end with chip selected")
	}
	c.inTx = false
	return nil
}

func (c *Chip) Select() error {
	if !c.inTx {
		c.violate("select outside transaction")
	}
	if c.selected {
		c.violate("select while selected")
	}
	c.selected = true
	c.frame = c.frame[:0]
	return nil
}

func (c *Chip) Exchange(out byte) (byte, error) {
	if !c.selected {
		c.violate("exchange 0x%02X while deselected", out)
		return 0xFF, nil
	}
	c.frame = append(c.frame, out)
	return c.respond(len(c.frame) - 1), nil
}

func (c *Chip) Deselect() error {
	if !c.selected {
		c.violate("deselect while deselected")
		return nil
	}
	c.selected = false
	c.execute(c.frame)
	return nil
}

// respond returns the byte driven on MISO while byte i of the frame is
// clocked.
func (c *Chip) respond(i int) byte {
	switch op := c.frame[0]; {
	case op == OpReadStatus && i >= 1:
		return c.Status()
	case op == OpReadID && i >= 4:
		// Address 0 gives manufacturer then device ID, repeating.
		if (i-4)%2 == 0 {
			return ManufacturerID
		}
		return c.deviceID
	case op == OpRead && i >= 4:
		return c.mem[(c.frameAddr()+i-4)%len(c.mem)]
	}
	return 0
}

func (c *Chip) frameAddr() int {
	return int(c.frame[1])<<16 | int(c.frame[2])<<8 | int(c.frame[3])
}

func (c *Chip) protected() bool { return c.status&statusBP != 0 }

func (c *Chip) execute(frame []byte) {
	if len(frame) == 0 {
		return
	}
	op := frame[0]
	c.ops = append(c.ops, op)

	if c.busy > 0 && op != OpReadStatus {
		c.violate("opcode 0x%02X while busy", op)
		return
	}

	switch op {
	case OpReadStatus:
		if c.busy > 0 && !c.Stuck {
			c.busy--
		}
	case OpWriteEnable:
		c.wel = true
	case OpWriteDisable:
		c.wel = false
	case OpWriteStatus:
		if len(frame) != 2 {
			c.violate("write status frame of %d bytes", len(frame))
			return
		}
		if !c.wel {
			c.violate("write status without write enable")
			return
		}
		c.status = frame[1] & statusWritable
		c.wel = false
	case OpErase4KB, OpByteProgram:
		want := 4
		if op == OpByteProgram {
			want = 5
		}
		if len(frame) != want {
			c.violate("opcode 0x%02X frame of %d bytes", op, len(frame))
			return
		}
		if !c.checkWritable(op) {
			return
		}
		addr := c.frameAddr() % len(c.mem)
		if op == OpErase4KB {
			base := addr &^ (sectorSize - 1)
			c.fill(base, min(sectorSize, len(c.mem)-base))
			c.busy = c.EraseBusyPolls
		} else {
			c.mem[addr] &= frame[4]
			c.busy = c.ProgramBusyPolls
		}
		c.wel = false
	case OpEraseChip:
		if !c.checkWritable(op) {
			return
		}
		c.fill(0, len(c.mem))
		c.busy = c.EraseBusyPolls
		c.wel = false
	case OpRead, OpReadID:
	default:
		c.violate("unknown opcode 0x%02X", op)
	}
}

func (c *Chip) checkWritable(op byte) bool {
	if !c.wel {
		c.violate("opcode 0x%02X without write enable", op)
		return false
	}
	if c.protected() {
		c.violate("opcode 0x%02X on protected array (status 0x%02X)", op, c.status)
		c.wel = false
		return false
	}
	return true
}

func (c *Chip) fill(base, n int) {
	for i := range n {
		c.mem[base+i] = 0xFF
	}
}

// Status returns the status register as the chip would report it.
func (c *Chip) Status() byte {
	sr := c.status
	if c.wel {
		sr |= statusWEL
	}
	if c.busy > 0 {
		sr |= statusBusy
	}
	return sr
}

// Size returns the array size in bytes.
func (c *Chip) Size() int { return len(c.mem) }

// Bytes returns the array contents. The slice aliases the chip memory.
func (c *Chip) Bytes() []byte { return c.mem }

// Load copies data into the array at addr, bypassing the command set.
func (c *Chip) Load(addr int, data []byte) {
	copy(c.mem[addr:], data)
}

// Ops returns the opcodes of all frames executed so far.
func (c *Chip) Ops() []byte { return c.ops }

// Transactions returns the number of transactions begun.
func (c *Chip) Transactions() int { return c.txCount }

// InTransaction reports whether a transaction is open.
func (c *Chip) InTransaction() bool { return c.inTx }

// Err returns all protocol violations seen so far, or nil.
func (c *Chip) Err() error { return errors.Join(c.violations...) }

// ClearLog forgets recorded opcodes and violations.
func (c *Chip) ClearLog() {
	c.ops = nil
	c.violations = nil
	c.txCount = 0
}
