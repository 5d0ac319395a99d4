package sst25

import (
	"errors"
	"fmt"
)

// Session is an open write session. It holds the bus with write protection
// cleared and programs one byte at a time at an auto-incrementing address.
// Close must be called to release the bus and protect the chip again.
type Session struct {
	f      *Flash
	addr   int
	n      int
	crc    Checksum
	closed bool
}

// PrepareWrite clears write protection and opens a write session starting
// at addr.
func (f *Flash) PrepareWrite(addr int) (*Session, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	if err := f.idle(); err != nil {
		return nil, err
	}

	if err := f.writeStatus(StatusUnprotected); err != nil {
		return nil, f.protect(fmt.Errorf("clear write protection: %w", err))
	}
	if err := f.begin(); err != nil {
		return nil, f.protect(err)
	}
	if err := f.writeEnable(); err != nil {
		return nil, f.protect(errors.Join(err, f.end()))
	}

	s := &Session{f: f, addr: addr}
	f.session = s
	f.cfg.Logger.Debug("write session opened", "addr", fmt.Sprintf("0x%06X", addr))
	return s, nil
}

// WriteByte programs c at the current address and advances it. The chip
// must have been erased there; programming can only clear bits.
func (s *Session) WriteByte(c byte) error {
	if s.closed {
		return ErrSessionClosed
	}
	f := s.f

	if err := f.busyWait(); err != nil {
		return err
	}
	// The write enable latch resets after every byte program.
	if err := f.writeEnable(); err != nil {
		return err
	}
	a := s.addr
	if err := f.tx([]byte{flashCmdByteProgram, byte(a >> 16), byte(a >> 8), byte(a), c}); err != nil {
		return fmt.Errorf("program 0x%06X: %w", a, err)
	}

	s.addr = (a + 1) & maxAddr
	s.n++
	s.crc.WriteByte(c)
	return nil
}

// Write programs p byte by byte. It stops at the first failure.
func (s *Session) Write(p []byte) (int, error) {
	for i, c := range p {
		if err := s.WriteByte(c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Addr returns the address the next byte will be written to.
func (s *Session) Addr() int { return s.addr }

// Len returns the number of bytes written in this session.
func (s *Session) Len() int { return s.n }

// Sum32 returns the CRC-32 of the bytes written in this session.
func (s *Session) Sum32() uint32 { return s.crc.Sum32() }

// Close waits for the last byte to finish programming, ends the transaction
// and restores write protection. Protection is restored even when the chip
// stays busy, and ErrUnprotected reports it if the chip ignored the write.
// Closing a closed session returns ErrSessionClosed and does nothing else.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	f := s.f
	f.session = nil

	err := f.busyWait()
	if err == nil {
		err = f.writeDisable()
	}
	err = f.protect(errors.Join(err, f.end()))

	f.cfg.Logger.Debug("write session closed", "bytes", s.n, "crc32", fmt.Sprintf("0x%08X", s.crc.Sum32()))
	return err
}

// Program writes data starting at addr in a single session.
func (f *Flash) Program(addr int, data []byte) error {
	s, err := f.PrepareWrite(addr)
	if err != nil {
		return err
	}
	_, err = s.Write(data)
	return errors.Join(err, s.Close())
}
