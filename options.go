package sst25

import "time"

// Config holds the Flash configuration.
type Config struct {
	// Logger receives driver events (optional)
	Logger Logger

	// Clock provides time and delays; SystemClock unless overridden
	Clock Clock

	// ProgressCallback is called by Stream every 1024 bytes (optional)
	ProgressCallback ProgressCallback

	// PollInterval is the delay between two status or source polls
	PollInterval time.Duration

	// IdleTimeout is the silence after which Stream considers its input
	// finished
	IdleTimeout time.Duration

	// BusyTimeout bounds every wait on the busy bit. Zero waits forever.
	BusyTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		Logger:       nopLogger{},
		Clock:        SystemClock,
		PollInterval: time.Millisecond,
		IdleTimeout:  1000 * time.Millisecond,
	}
}

// Option configures a Flash.
type Option func(*Config)

// WithLogger sets the logger for driver events.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithClock replaces the system clock, typically with a fake in tests.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithProgressCallback sets a callback that tracks Stream progress.
//
// Example:
//
//	f := sst25.NewFlash(bus, sst25.NopArbiter,
//	    sst25.WithProgressCallback(func(p sst25.Progress) {
//	        fmt.Printf("Bytes written: %dk\n", p.KiB)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithPollInterval sets the delay between status register polls and between
// checks of an idle byte source. Default is 1ms.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithIdleTimeout sets how long Stream waits for more input before it
// treats the stream as complete. Default is 1s.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.IdleTimeout = d
		}
	}
}

// WithBusyTimeout bounds the wait for the busy bit to clear. When it
// expires the operation fails with ErrDeviceUnresponsive. Default is to wait
// forever.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.BusyTimeout = d
		}
	}
}
