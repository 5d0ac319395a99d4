package sst25

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Flash is a handle to one SST25VF chip. It is not safe for concurrent use;
// callers sharing a chip must serialize access.
type Flash struct {
	bus Bus
	arb Arbiter
	cfg Config

	id      byte // device ID from ReadID
	pr      *flashParams
	session *Session
}

// NewFlash returns a handle for the flash on bus. arb is consulted around
// every bus transaction; use NopArbiter when nothing else shares the bus.
func NewFlash(bus Bus, arb Arbiter, opts ...Option) *Flash {
	if bus == nil {
		panic("sst25: bus cannot be nil")
	}
	if arb == nil {
		panic("sst25: arbiter cannot be nil")
	}
	switch af := arb.(type) {
	case ArbiterFuncs:
		if af.Relinquish == nil || af.Reacquire == nil {
			panic("sst25: arbiter must supply both hooks")
		}
	case *ArbiterFuncs:
		if af == nil || af.Relinquish == nil || af.Reacquire == nil {
			panic("sst25: arbiter must supply both hooks")
		}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Flash{
		bus: bus,
		arb: arb,
		cfg: cfg,
	}
}

// Flash commands:
//   - [SST25VF080B|Table 5: Device Operation Instructions]
const (
	flashCmdWriteStatus  = 0x01
	flashCmdByteProgram  = 0x02
	flashCmdRead         = 0x03
	flashCmdWriteDisable = 0x04
	flashCmdReadStatus   = 0x05
	flashCmdWriteEnable  = 0x06
	flashCmdErase4KB     = 0x20
	flashCmdReadID       = 0x90
	flashCmdEraseChip    = 0xC7
)

// Every transaction runs at 1MHz, MSB first, CPOL=0 CPHA=0.
const (
	busClock = 1 * physic.MegaHertz
	busMode  = spi.Mode0
)

// tx runs one command frame with chip select asserted. buf is clocked out
// and overwritten with the bytes clocked in.
func (f *Flash) tx(buf []byte) (err error) {
	if err = f.bus.Select(); err != nil {
		return err
	}
	defer func() {
		if csErr := f.bus.Deselect(); csErr != nil && err == nil {
			err = csErr
		}
	}()

	if t, ok := f.bus.(txer); ok {
		return t.Tx(buf, buf)
	}
	for i, b := range buf {
		if buf[i], err = f.bus.Exchange(b); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flash) begin() error {
	if err := f.arb.RelinquishDefaultSelect(); err != nil {
		return fmt.Errorf("relinquish default select: %w", err)
	}
	if err := f.bus.Begin(busClock, busMode); err != nil {
		return errors.Join(err, f.arb.ReacquireDefaultSelect())
	}
	return nil
}

func (f *Flash) end() error {
	err := f.bus.End()
	if rErr := f.arb.ReacquireDefaultSelect(); rErr != nil {
		err = errors.Join(err, fmt.Errorf("reacquire default select: %w", rErr))
	}
	return err
}

// transaction runs fn inside a bus transaction.
func (f *Flash) transaction(fn func() error) (err error) {
	if err = f.begin(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.end())
	}()
	return fn()
}

// idle fails while a write session owns the bus.
func (f *Flash) idle() error {
	if f.session != nil {
		return ErrSessionOpen
	}
	return nil
}

// ReadID returns the device ID of the flash chip and configures its
// parameters. It returns a non-empty name for known IDs. The manufacturer ID
// is read but not returned.
func (f *Flash) ReadID() (id byte, name string, err error) {
	if err = f.idle(); err != nil {
		return
	}

	// opcode, 24-bit address 0, manufacturer ID, device ID
	buf := []byte{flashCmdReadID, 0, 0, 0, 0, 0}
	if err = f.transaction(func() error { return f.tx(buf) }); err != nil {
		return
	}

	f.id = buf[5]
	if params, ok := knownFlash[f.id]; ok {
		f.pr = &params
		name = params.name
	}
	f.cfg.Logger.Debug("read flash ID", "manufacturer", fmt.Sprintf("0x%02X", buf[4]), "device", fmt.Sprintf("0x%02X", f.id))
	return f.id, name, nil
}

// Read reads n bytes starting at addr. Reads past the end of the array wrap
// around as they do on the chip.
func (f *Flash) Read(addr, n int) ([]byte, error) {
	const (
		maxTx    = 65536 // [FTDI-AN_108]
		cmdBytes = 4     // opRead + 24-bit address
		maxData  = maxTx - cmdBytes
	)

	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	if err := f.idle(); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	err := f.transaction(func() error {
		off := 0
		for remaining := n; remaining > 0; {
			chunk := min(remaining, maxData)
			buf := make([]byte, cmdBytes+chunk)
			buf[0] = flashCmdRead
			buf[1] = byte(addr >> 16)
			buf[2] = byte(addr >> 8)
			buf[3] = byte(addr)
			// buf[4:] dummy bytes

			if err := f.tx(buf); err != nil {
				return err
			}

			copy(out[off:], buf[cmdBytes:])

			addr = (addr + chunk) & maxAddr
			off += chunk
			remaining -= chunk
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Flash) writeEnable() error {
	return f.tx([]byte{flashCmdWriteEnable})
}

func (f *Flash) writeDisable() error {
	return f.tx([]byte{flashCmdWriteDisable})
}

func (f *Flash) readStatus() (StatusRegister, error) {
	buf := []byte{flashCmdReadStatus, 0}
	if err := f.tx(buf); err != nil {
		return 0, err
	}
	return StatusRegister(buf[1]), nil
}

// Status reads the status register in its own bus transaction.
func (f *Flash) Status() (sr StatusRegister, err error) {
	if err = f.idle(); err != nil {
		return
	}
	err = f.transaction(func() (err error) {
		sr, err = f.readStatus()
		return err
	})
	return
}

// WriteStatus writes the status register. Use StatusUnprotected to allow
// erase and program, and StatusProtected to lock the array again.
func (f *Flash) WriteStatus(sr StatusRegister) error {
	if err := f.idle(); err != nil {
		return err
	}
	return f.writeStatus(sr)
}

func (f *Flash) writeStatus(sr StatusRegister) error {
	return f.transaction(func() error {
		if err := f.writeEnable(); err != nil {
			return err
		}
		if err := f.tx([]byte{flashCmdWriteStatus, byte(sr)}); err != nil {
			return err
		}
		return f.writeDisable()
	})
}

// protect sets block protection again at the end of an operation that ended
// with err. A chip that failed may still be busy and ignore the write, so
// after a failure the status is read back to confirm it took.
func (f *Flash) protect(err error) error {
	if pErr := f.writeStatus(StatusProtected); pErr != nil {
		return errors.Join(err, fmt.Errorf("restore write protection: %w", pErr))
	}
	if err == nil {
		return nil
	}
	var sr StatusRegister
	sErr := f.transaction(func() (err error) {
		sr, err = f.readStatus()
		return err
	})
	switch {
	case sErr != nil:
		return errors.Join(err, fmt.Errorf("check write protection: %w", sErr))
	case sr&StatusProtected != StatusProtected:
		return errors.Join(err, fmt.Errorf("%w (status %v)", ErrUnprotected, sr))
	}
	return err
}

// unprotected runs fn with block protection cleared. Protection is restored
// even when clearing it or fn fails.
func (f *Flash) unprotected(fn func() error) (err error) {
	defer func() { err = f.protect(err) }()
	if err = f.writeStatus(StatusUnprotected); err != nil {
		return fmt.Errorf("clear write protection: %w", err)
	}
	return fn()
}

// busyWait polls the status register until bit 0 clears, sleeping the poll
// interval between reads. Without a busy timeout it never gives up.
func (f *Flash) busyWait() error {
	start := f.cfg.Clock.Now()
	for {
		sr, err := f.readStatus()
		if err != nil {
			return err
		}
		if !sr.Busy() {
			return nil
		}
		if t := f.cfg.BusyTimeout; t > 0 && f.cfg.Clock.Now().Sub(start) >= t {
			return fmt.Errorf("%w for %v (status %v)", ErrDeviceUnresponsive, t, sr)
		}
		f.cfg.Clock.Sleep(f.cfg.PollInterval)
	}
}

// erase runs an erase command and waits settle before polling for
// completion.
func (f *Flash) erase(cmd []byte, settle time.Duration) error {
	if err := f.idle(); err != nil {
		return err
	}
	return f.unprotected(func() error {
		return f.transaction(func() error {
			if err := f.writeEnable(); err != nil {
				return err
			}
			if err := f.tx(cmd); err != nil {
				return err
			}
			f.cfg.Clock.Sleep(settle)
			if err := f.busyWait(); err != nil {
				return err
			}
			return f.writeDisable()
		})
	})
}

// EraseSector erases the 4KB sector containing addr.
func (f *Flash) EraseSector(addr int) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	f.cfg.Logger.Debug("erase sector", "addr", fmt.Sprintf("0x%06X", addr&^(SectorSize-1)))

	buf := []byte{flashCmdErase4KB, byte(addr >> 16), byte(addr >> 8), byte(addr)}
	if err := f.erase(buf, f.params().tErase4KB); err != nil {
		return fmt.Errorf("erase sector 0x%06X: %w", addr, err)
	}
	return nil
}

// EraseChip erases the entire chip.
func (f *Flash) EraseChip() error {
	f.cfg.Logger.Debug("erase chip")
	if err := f.erase([]byte{flashCmdEraseChip}, f.params().tEraseChip); err != nil {
		return fmt.Errorf("erase chip: %w", err)
	}
	return nil
}

// SectorSize is the unit of EraseSector.
const SectorSize = 4 << 10

// Erase erases the size bytes starting from baseAddr by erasing every 4KB
// sector the range touches, each at most once.
func (f *Flash) Erase(baseAddr, size int) error {
	if err := checkAddr(baseAddr); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("negative erase size %d", size)
	}
	start := baseAddr &^ (SectorSize - 1)
	n := (baseAddr - start + size + SectorSize - 1) / SectorSize
	// Past the top of the address space the range wraps onto sectors
	// already erased.
	n = min(n, (maxAddr+1)/SectorSize)
	for i := range n {
		if err := f.EraseSector((start + i*SectorSize) & maxAddr); err != nil {
			return err
		}
	}
	return nil
}

// StatusRegister represents the status register of the flash chip.
//
//	Bits| [SST25VF080B|Table 4: Software Status Register]
//	----+-----------------------------------------------
//	7   | BPL: Block protection bits are read-only
//	6   | AAI: Auto Address Increment programming mode
//	5:2 | BP3-0: Block protection
//	1   | WEL: Write enable latch
//	0   | BUSY: Internal write operation in progress
type StatusRegister byte

const (
	// StatusUnprotected clears all block protection bits.
	StatusUnprotected StatusRegister = 0x00
	// StatusProtected sets BP2-0, protecting the whole array.
	StatusProtected StatusRegister = 0x1C
)

func (sr StatusRegister) BlockProtectLock() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister) AutoIncrement() bool    { return sr&(1<<6) != 0 }
func (sr StatusRegister) BlockProtect3() bool    { return sr&(1<<5) != 0 }
func (sr StatusRegister) BlockProtect2() bool    { return sr&(1<<4) != 0 }
func (sr StatusRegister) BlockProtect1() bool    { return sr&(1<<3) != 0 }
func (sr StatusRegister) BlockProtect0() bool    { return sr&(1<<2) != 0 }
func (sr StatusRegister) WriteEnabled() bool     { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool             { return sr&(1<<0) != 0 }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	if sr.BlockProtectLock() {
		s = append(s, "BPL")
	}
	if sr.AutoIncrement() {
		s = append(s, "AAI")
	}
	if sr.BlockProtect3() {
		s = append(s, "BP3")
	}
	if sr.BlockProtect2() {
		s = append(s, "BP2")
	}
	if sr.BlockProtect1() {
		s = append(s, "BP1")
	}
	if sr.BlockProtect0() {
		s = append(s, "BP0")
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "BUSY")
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
