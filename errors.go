package sst25

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamTimeout is returned by Stream when no byte arrives before
	// the initial timeout. Nothing has been written.
	ErrStreamTimeout = errors.New("no data received before timeout")

	// ErrDeviceUnresponsive is returned when the busy bit stays set longer
	// than the configured busy timeout.
	ErrDeviceUnresponsive = errors.New("flash stayed busy")

	// ErrUnprotected is returned alongside the error of a failed erase or
	// write when the status register read back afterwards shows block
	// protection still cleared.
	ErrUnprotected = errors.New("write protection not restored")

	// ErrSessionClosed is returned by a Session after Close.
	ErrSessionClosed = errors.New("write session is closed")

	// ErrSessionOpen is returned by Flash operations while a write session
	// holds the bus.
	ErrSessionOpen = errors.New("write session in progress")
)

// AddressError reports an address that does not fit the 24-bit address
// space of the command set.
type AddressError struct {
	Addr int
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("address 0x%X out of 24-bit range", e.Addr)
}

const maxAddr = 1<<24 - 1 // 0xFFFFFF

func checkAddr(addr int) error {
	if addr < 0 || addr > maxAddr {
		return &AddressError{Addr: addr}
	}
	return nil
}
