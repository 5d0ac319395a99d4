//go:build tinygo

package tinygobus

import "machine"

// NewSPI returns a bus on the hardware SPI peripheral s, on its default
// pins, with the flash chip select on cs.
func NewSPI(s *machine.SPI, cs machine.Pin) *Bus {
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cfg := machine.SPIConfig{}
	return New(s, cs, func(freq uint32, mode uint8, lsbFirst bool) error {
		cfg.Frequency = freq
		cfg.Mode = mode
		cfg.LSBFirst = lsbFirst
		return s.Configure(cfg)
	})
}

// PinArbiter parks the chip select of another device on the bus, such as an
// SD card, while the flash is addressed: the pin becomes an input with
// pull-up, then an output driven high again.
type PinArbiter struct {
	Pin machine.Pin
}

func (a PinArbiter) RelinquishDefaultSelect() error {
	a.Pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return nil
}

func (a PinArbiter) ReacquireDefaultSelect() error {
	a.Pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	a.Pin.High()
	return nil
}
