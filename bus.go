package sst25

import (
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Bus is the SPI master the flash is attached to. Begin and End bracket a
// transaction during which the bus is configured for the flash; Select and
// Deselect drive the flash's chip select around each command frame.
type Bus interface {
	Begin(freq physic.Frequency, mode spi.Mode) error
	End() error
	Select() error
	Deselect() error
	// Exchange clocks out one byte and returns the byte clocked in.
	Exchange(out byte) (byte, error)
}

// txer is implemented by buses that can exchange a whole frame in one
// transfer. w and r have the same length and may be the same slice.
type txer interface {
	Tx(w, r []byte) error
}

// Arbiter is called around every transaction so that another device sharing
// the bus can be kept off it while the flash is addressed.
type Arbiter interface {
	RelinquishDefaultSelect() error
	ReacquireDefaultSelect() error
}

// ArbiterFuncs adapts a pair of functions to an Arbiter. Both must be set.
type ArbiterFuncs struct {
	Relinquish func() error
	Reacquire  func() error
}

func (a ArbiterFuncs) RelinquishDefaultSelect() error { return a.Relinquish() }
func (a ArbiterFuncs) ReacquireDefaultSelect() error  { return a.Reacquire() }

// NopArbiter is an Arbiter for a flash that has the bus to itself.
var NopArbiter Arbiter = ArbiterFuncs{
	Relinquish: func() error { return nil },
	Reacquire:  func() error { return nil },
}

// Clock supplies monotonic time and delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the wall clock, whose readings carry Go's monotonic time.
var SystemClock Clock = systemClock{}
