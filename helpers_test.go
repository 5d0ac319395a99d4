package sst25

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gentam/sst25/sim"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	slept  time.Duration
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
}

// checkArbiter verifies that the hooks bracket transactions on chip.
type checkArbiter struct {
	t          *testing.T
	chip       *sim.Chip
	held       bool
	relinquish int
	reacquire  int
}

func (a *checkArbiter) RelinquishDefaultSelect() error {
	if a.held || a.chip.InTransaction() {
		a.t.Errorf("relinquish inside a transaction")
	}
	a.held = true
	a.relinquish++
	return nil
}

func (a *checkArbiter) ReacquireDefaultSelect() error {
	if !a.held || a.chip.InTransaction() {
		a.t.Errorf("reacquire without matching relinquish or before End")
	}
	a.held = false
	a.reacquire++
	return nil
}

// MockLogger records messages by level.
type MockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *MockLogger) Debug(msg string, kv ...any) { l.debugMsgs = append(l.debugMsgs, msg) }
func (l *MockLogger) Info(msg string, kv ...any) {
	l.infoMsgs = append(l.infoMsgs, strings.TrimSuffix(fmt.Sprintln(append([]any{msg}, kv...)...), "\n"))
}
func (l *MockLogger) Error(msg string, kv ...any) { l.errorMsgs = append(l.errorMsgs, msg) }

type testRig struct {
	chip  *sim.Chip
	arb   *checkArbiter
	clock *fakeClock
	log   *MockLogger
	flash *Flash
}

func newRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()
	r := &testRig{
		chip:  sim.New(1<<20, flashIDSST25VF080B),
		clock: newFakeClock(),
		log:   &MockLogger{},
	}
	r.arb = &checkArbiter{t: t, chip: r.chip}
	opts = append([]Option{WithClock(r.clock), WithLogger(r.log)}, opts...)
	r.flash = NewFlash(r.chip, r.arb, opts...)
	return r
}

// checkIdle verifies the chip ended clean: no protocol violations, no open
// transaction, and the array protected again.
func (r *testRig) checkIdle(t *testing.T) {
	t.Helper()
	if err := r.chip.Err(); err != nil {
		t.Errorf("protocol violations:\n%v", err)
	}
	if r.chip.InTransaction() {
		t.Error("transaction left open")
	}
	if sr := StatusRegister(r.chip.Status()); sr != StatusProtected {
		t.Errorf("status = %v, want %v", sr, StatusProtected)
	}
	if r.arb.relinquish != r.arb.reacquire || r.arb.relinquish != r.chip.Transactions() {
		t.Errorf("arbiter relinquish=%d reacquire=%d for %d transactions",
			r.arb.relinquish, r.arb.reacquire, r.chip.Transactions())
	}
}
