package sst25

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ByteSource is an input that can be polled without blocking.
type ByteSource interface {
	// Available reports whether ReadByte would return without waiting.
	Available() bool
	ReadByte() (byte, error)
}

// StreamResult summarizes a Stream call.
type StreamResult struct {
	BytesWritten int
	Checksum     uint32        // CRC-32 of the bytes written
	Elapsed      time.Duration // from first byte to end of stream
}

// Stream writes bytes from src to flash starting at addr until src has been
// silent for the idle timeout. If no byte arrives within initialTimeout it
// writes nothing and returns ErrStreamTimeout.
//
// The target range must already be erased. Write protection is restored
// before Stream returns, including on failure and cancellation, and the
// result always describes what was written.
func (f *Flash) Stream(ctx context.Context, addr int, src ByteSource, initialTimeout time.Duration) (res StreamResult, err error) {
	s, err := f.PrepareWrite(addr)
	if err != nil {
		return res, err
	}
	var first, last time.Time
	defer func() {
		res.BytesWritten = s.Len()
		res.Checksum = s.Sum32()
		if !first.IsZero() {
			res.Elapsed = last.Sub(first)
		}
		err = errors.Join(err, s.Close())
	}()

	clock := f.cfg.Clock
	start := clock.Now()
	for !src.Available() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if clock.Now().Sub(start) > initialTimeout {
			f.cfg.Logger.Error("timeout, no data received", "timeout", initialTimeout)
			return res, ErrStreamTimeout
		}
		clock.Sleep(f.cfg.PollInterval)
	}

	first = clock.Now()
	last = first
	for {
		if src.Available() {
			b, err := src.ReadByte()
			if err != nil {
				return res, fmt.Errorf("read source: %w", err)
			}
			if err := s.WriteByte(b); err != nil {
				return res, err
			}
			last = clock.Now()

			if n := s.Len(); n%1024 == 0 {
				f.reportProgress(Progress{
					Addr:         s.Addr(),
					BytesWritten: n,
					KiB:          n >> 10,
					Elapsed:      last.Sub(first),
				})
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return res, err
		}
		if clock.Now().Sub(last) > f.cfg.IdleTimeout {
			break
		}
		clock.Sleep(f.cfg.PollInterval)
	}

	f.cfg.Logger.Info("stream complete",
		"bytes", s.Len(),
		"crc32", fmt.Sprintf("0x%08X", s.Sum32()),
		"elapsed", last.Sub(first),
	)
	return res, nil
}

func (f *Flash) reportProgress(p Progress) {
	if f.cfg.ProgressCallback != nil {
		f.cfg.ProgressCallback(p)
		return
	}
	f.cfg.Logger.Info("bytes written", "kib", p.KiB)
}
