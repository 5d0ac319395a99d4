package sst25

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// PeriphBus is a Bus on a periph.io SPI port with chip select on a GPIO, so
// that a frame can span several transfers.
//
// The port is connected on the first Begin. periph ports can only be
// connected once, so later transactions must use the same settings.
type PeriphBus struct {
	port spi.Port
	cs   gpio.PinOut
	conn spi.Conn

	freq physic.Frequency
	mode spi.Mode
}

var errNotConnected = errors.New("SPI port not connected: transfer outside a transaction")

// NewPeriphBus deselects cs and returns a bus using port.
func NewPeriphBus(port spi.Port, cs gpio.PinOut) (*PeriphBus, error) {
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("deselect flash: %w", err)
	}
	return &PeriphBus{port: port, cs: cs}, nil
}

func (b *PeriphBus) Begin(freq physic.Frequency, mode spi.Mode) error {
	if b.conn == nil {
		conn, err := b.port.Connect(freq, mode, 8)
		if err != nil {
			return fmt.Errorf("failed to connect SPI port: %w", err)
		}
		b.conn, b.freq, b.mode = conn, freq, mode
		return nil
	}
	if freq != b.freq || mode != b.mode {
		return fmt.Errorf("SPI port already connected at %s %v, cannot switch to %s %v", b.freq, b.mode, freq, mode)
	}
	return nil
}

func (b *PeriphBus) End() error { return nil }

func (b *PeriphBus) Select() error   { return b.cs.Out(gpio.Low) }
func (b *PeriphBus) Deselect() error { return b.cs.Out(gpio.High) }

func (b *PeriphBus) Exchange(out byte) (byte, error) {
	buf := [1]byte{out}
	err := b.Tx(buf[:], buf[:])
	return buf[0], err
}

// Tx exchanges a whole frame in one transfer.
func (b *PeriphBus) Tx(w, r []byte) error {
	if b.conn == nil {
		return errNotConnected
	}
	return b.conn.Tx(w, r)
}

// PinArbiter parks another device's chip select while the flash is in use:
// the pin becomes an input pulled high, then an output driven high again.
type PinArbiter struct {
	Pin gpio.PinIO
}

func (a PinArbiter) RelinquishDefaultSelect() error {
	return a.Pin.In(gpio.PullUp, gpio.NoEdge)
}

func (a PinArbiter) ReacquireDefaultSelect() error {
	return a.Pin.Out(gpio.High)
}
