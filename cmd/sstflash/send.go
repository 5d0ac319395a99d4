package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gentam/sst25"
	"github.com/pkg/term"
)

func sendCommand(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var (
		port       string
		baud       int
		filename   string
		padTo      int
		ack        bool
		ackTimeout time.Duration
	)
	fs.StringVar(&port, "port", "", "tty of the streaming device")
	fs.IntVar(&baud, "baud", 115200, "serial baud rate")
	fs.StringVar(&filename, "f", "", "file to send")
	fs.IntVar(&padTo, "pad", 0, "pad with 0xFF up to this many bytes, e.g. 1048576 for a whole SST25VF080B")
	fs.BoolVar(&ack, "ack", false, "wait for '.' after every byte")
	fs.DurationVar(&ackTimeout, "ack-timeout", time.Second, "how long to wait for each '.'")
	fs.Parse(args)

	if port == "" || filename == "" {
		fatalUsage("-port and -f are required")
	}
	f, err := os.Open(filename)
	if err != nil {
		fatalf("failed to open file: %v", err)
	}
	defer f.Close()

	t, err := term.Open(port, term.Speed(baud), term.RawMode)
	if err != nil {
		fatalf("unable to open serial port: %v", err)
	}
	defer t.Close()
	if ack {
		if err := t.SetReadTimeout(ackTimeout); err != nil {
			fatalf("set read timeout: %v", err)
		}
	}

	s := &sender{w: t}
	if ack {
		s.r = t
	}
	start := time.Now()
	if err := s.send(bufio.NewReader(f), padTo); err != nil {
		fmt.Fprintln(os.Stderr)
		fatalf("send failed after %d bytes: %v", s.n, err)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Printf("%d bytes sent in %v, crc32 0x%08X\n",
		s.n, time.Since(start).Round(time.Millisecond), s.crc.Sum32())
}

var errNoAck = errors.New("no acknowledgement from device")

// sender writes bytes one at a time, optionally waiting for a '.' from r
// after each.
type sender struct {
	w io.Writer
	r io.Reader // nil unless acknowledgements are expected

	n   int
	crc sst25.Checksum
}

func (s *sender) send(in io.ByteReader, padTo int) error {
	for {
		b, err := in.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := s.put(b); err != nil {
			return err
		}
	}
	for s.n < padTo {
		if err := s.put(0xFF); err != nil {
			return err
		}
	}
	return nil
}

func (s *sender) put(b byte) error {
	if _, err := s.w.Write([]byte{b}); err != nil {
		return err
	}
	if s.r != nil {
		if err := s.waitAck(); err != nil {
			return err
		}
	}
	s.n++
	s.crc.WriteByte(b)
	if s.n%10240 == 0 {
		fmt.Fprint(os.Stderr, ".")
	}
	return nil
}

func (s *sender) waitAck() error {
	var c [1]byte
	for {
		n, err := s.r.Read(c[:])
		if n == 0 || err == io.EOF {
			return errNoAck
		}
		if err != nil {
			return err
		}
		if c[0] == '.' {
			return nil
		}
	}
}
