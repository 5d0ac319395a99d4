// Package tinygobus drives an SST25VF from a microcontroller SPI peripheral
// under TinyGo.
//
// Bus and SerialSource only depend on small interfaces, so they also build
// on the host; the machine bindings live in machine.go.
package tinygobus

import (
	"bytes"
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"
)

// Pin is an output pin such as machine.Pin.
type Pin interface {
	High()
	Low()
}

// Configurer applies SPI settings to the peripheral behind a drivers.SPI.
type Configurer func(freq uint32, mode uint8, lsbFirst bool) error

// Bus is an sst25.Bus on a drivers.SPI with chip select on a GPIO.
type Bus struct {
	spi       drivers.SPI
	cs        Pin
	configure Configurer

	configured bool
	freq       physic.Frequency
	mode       spi.Mode
}

// New deselects cs and returns a bus on s. configure is called whenever a
// transaction needs settings other than the current ones.
func New(s drivers.SPI, cs Pin, configure Configurer) *Bus {
	cs.High()
	return &Bus{spi: s, cs: cs, configure: configure}
}

func (b *Bus) Begin(freq physic.Frequency, mode spi.Mode) error {
	if b.configured && freq == b.freq && mode == b.mode {
		return nil
	}
	if mode&(spi.HalfDuplex|spi.NoCS) != 0 {
		return fmt.Errorf("unsupported SPI mode %v", mode)
	}
	hz := uint32(freq / physic.Hertz)
	if err := b.configure(hz, uint8(mode&spi.Mode3), mode&spi.LSBFirst != 0); err != nil {
		return fmt.Errorf("configure SPI at %dHz: %w", hz, err)
	}
	b.configured, b.freq, b.mode = true, freq, mode
	return nil
}

func (b *Bus) End() error { return nil }

func (b *Bus) Select() error {
	b.cs.Low()
	return nil
}

func (b *Bus) Deselect() error {
	b.cs.High()
	return nil
}

func (b *Bus) Exchange(out byte) (byte, error) {
	return b.spi.Transfer(out)
}

// Tx exchanges a whole frame in one transfer. w and r may be the same slice;
// drivers.SPI makes no such promise, so w is copied first.
func (b *Bus) Tx(w, r []byte) error {
	if len(w) > 0 && len(r) > 0 && &w[0] == &r[0] {
		w = bytes.Clone(w)
	}
	return b.spi.Tx(w, r)
}

// Buffered is a receive-buffered port such as machine.Serial.
type Buffered interface {
	Buffered() int
	ReadByte() (byte, error)
}

// SerialSource is an sst25.ByteSource reading a buffered port.
type SerialSource struct {
	Port Buffered
}

func (s SerialSource) Available() bool         { return s.Port.Buffered() > 0 }
func (s SerialSource) ReadByte() (byte, error) { return s.Port.ReadByte() }
