package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/gentam/sst25"
	"github.com/golang/glog"
	"github.com/tarm/serial"
)

func streamCommand(args []string) {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	var (
		port     string
		baud     int
		addr     int
		timeout  time.Duration
		idle     time.Duration
		eraseAll bool
		ack      bool
	)
	fs.StringVar(&port, "port", "", "serial port to read from (default: stdin)")
	fs.IntVar(&baud, "baud", 115200, "serial baud rate")
	fs.IntVar(&addr, "a", 0, "start address")
	fs.DurationVar(&timeout, "t", 10*time.Second, "how long to wait for the first byte")
	fs.DurationVar(&idle, "idle", time.Second, "end of input after this much silence")
	fs.BoolVar(&eraseAll, "erase", false, "erase the entire chip before streaming")
	fs.BoolVar(&ack, "ack", false, "answer every byte with '.' on the serial port")
	fs.Parse(args)

	var in io.ReadWriteCloser
	if port == "" || port == "-" {
		if ack {
			fatalUsage("-ack needs -port")
		}
		in = stdio{}
	} else {
		// A read timeout would surface as io.EOF and end the stream early.
		p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
		if err != nil {
			fatalf("failed to open serial port %s: %v", port, err)
		}
		in = p
	}

	t, err := openTarget(
		sst25.WithIdleTimeout(idle),
		sst25.WithProgressCallback(progressPrinter),
	)
	if err != nil {
		in.Close()
		fatalf("%v", err)
	}
	defer t.Close()

	if eraseAll {
		glog.Info("erasing chip")
		if err := t.flash.EraseChip(); err != nil {
			in.Close()
			fatalf("chip erase failed: %v", err)
		}
	}

	src := sst25.NewReaderSource(in)
	defer src.Close()

	var bs sst25.ByteSource = src
	if ack {
		bs = ackSource{ByteSource: src, w: in}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintln(os.Stderr, "*** Ready for binary data ***")
	res, err := t.flash.Stream(ctx, addr, bs, timeout)
	if res.BytesWritten >= 1024 {
		fmt.Fprintln(os.Stderr)
	}
	switch {
	case errors.Is(err, sst25.ErrStreamTimeout):
		fatalf("no data received within %v", timeout)
	case err != nil:
		fatalf("stream failed after %d bytes: %v", res.BytesWritten, err)
	}
	fmt.Printf("%d bytes to 0x%06X in %v, crc32 0x%08X\n",
		res.BytesWritten, addr, res.Elapsed.Round(time.Millisecond), res.Checksum)
}

// ackSource writes '.' after every byte it hands out, pacing a sender that
// waits for it.
type ackSource struct {
	sst25.ByteSource
	w io.Writer
}

func (s ackSource) ReadByte() (byte, error) {
	b, err := s.ByteSource.ReadByte()
	if err != nil {
		return b, err
	}
	if _, err := s.w.Write([]byte{'.'}); err != nil {
		return b, fmt.Errorf("acknowledge byte: %w", err)
	}
	return b, nil
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return os.Stdin.Close() }
