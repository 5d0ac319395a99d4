package sst25

import (
	"errors"
	"io"
	"sync"
)

// ErrSourceClosed is returned by ReaderSource.ReadByte once Close stopped
// the read-ahead goroutine and the buffered bytes are consumed.
var ErrSourceClosed = errors.New("source closed")

// ReaderSource turns a blocking io.Reader, such as a serial port, into a
// ByteSource. A goroutine reads ahead into a bounded buffer; when the buffer
// is full the goroutine stops reading until bytes are consumed.
type ReaderSource struct {
	r    io.Reader
	ch   chan byte
	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

const readerSourceBuffer = 4096

// NewReaderSource starts reading r in the background.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{
		r:    r,
		ch:   make(chan byte, readerSourceBuffer),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *ReaderSource) pump() {
	defer close(s.ch)
	buf := make([]byte, 256)
	for {
		n, err := s.r.Read(buf)
		for _, b := range buf[:n] {
			if !s.send(b) {
				s.stop(ErrSourceClosed)
				return
			}
		}
		if err != nil {
			s.stop(err)
			return
		}
	}
}

// send buffers b, reporting false if Close was called first.
func (s *ReaderSource) send(b byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- b:
		return true
	case <-s.done:
		return false
	}
}

func (s *ReaderSource) stop(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Available reports whether a byte is buffered.
func (s *ReaderSource) Available() bool {
	return len(s.ch) > 0
}

// ReadByte returns the next byte, waiting for one if none is buffered. After
// the reader fails it returns the reader's error, io.EOF at end of input.
func (s *ReaderSource) ReadByte() (byte, error) {
	b, ok := <-s.ch
	if ok {
		return b, nil
	}
	return 0, s.Err()
}

// Err returns the error that stopped the reader, or nil while it runs.
func (s *ReaderSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the read-ahead goroutine and closes the underlying reader if it
// is an io.Closer. A goroutine blocked in Read on a reader that cannot be
// closed exits when that Read returns.
func (s *ReaderSource) Close() (err error) {
	s.once.Do(func() {
		close(s.done)
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
