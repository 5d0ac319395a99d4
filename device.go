//go:build !tinygo

package sst25

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Device is a flash chip attached to a host SPI controller.
type Device struct {
	FTDI  *ftdi.FT232H // nil unless opened with OpenFTDI
	Flash *Flash

	port spi.PortCloser
	cs   gpio.PinIO
}

var hostInitialized atomic.Bool

func initHost() error {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			hostInitialized.Store(false)
			return fmt.Errorf("host initialization failed: %w", err)
		}
	}
	return nil
}

// OpenSPI opens a host SPI port by name (e.g. "/dev/spidev0.0" or "SPI0.0")
// with the flash chip select on the GPIO named cs. If defaultCS is not
// empty, that pin is parked around every transaction with a PinArbiter.
func OpenSPI(port, cs, defaultCS string, opts ...Option) (*Device, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", port, err)
	}
	d := &Device{port: p}

	if d.cs = gpioreg.ByName(cs); d.cs == nil {
		p.Close()
		return nil, fmt.Errorf("unknown chip select pin %q", cs)
	}

	arb := NopArbiter
	if defaultCS != "" {
		pin := gpioreg.ByName(defaultCS)
		if pin == nil {
			p.Close()
			return nil, fmt.Errorf("unknown default chip select pin %q", defaultCS)
		}
		arb = PinArbiter{Pin: pin}
	}

	if err := d.connect(arb, opts); err != nil {
		p.Close()
		return nil, err
	}
	return d, nil
}

// OpenFTDI finds an FT2232H and uses its MPSSE engine as the SPI master,
// with the flash chip select on ADBUS4.
func OpenFTDI(opts ...Option) (*Device, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	d := &Device{}
	if err := d.findFT2232H(); err != nil {
		return nil, err
	}

	// [FTDI-AN_114|Figure 1]
	// ADBUS0 | SCK
	// ADBUS1 | MOSI
	// ADBUS2 | MISO
	// ADBUS4 | flash CS#
	d.cs = d.FTDI.D4

	port, err := d.FTDI.SPI()
	if err != nil {
		return nil, fmt.Errorf("failed to get SPI port: %w", err)
	}
	d.port = port

	// [FTDI-AN_114|1.2]> FTDI device can only support mode 0 and mode 2 due to the limitation of MPSSE engine
	// [SST25VF080B|Figure 3] mode 0 and mode 3 are supported
	if err := d.connect(NopArbiter, opts); err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) connect(arb Arbiter, opts []Option) error {
	bus, err := NewPeriphBus(d.port, d.cs)
	if err != nil {
		return err
	}
	d.Flash = NewFlash(bus, arb, opts...)
	return nil
}

// Close releases the SPI port.
func (d *Device) Close() error {
	if d.port == nil {
		return nil
	}
	return d.port.Close()
}

func (d *Device) findFT2232H() error {
	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6010 // FT2232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.FTDI = ft
			return nil
		}
	}

	return errors.New("FT2232H device not found")
}
