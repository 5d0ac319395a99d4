package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/gentam/sst25"
)

func writeCommand(args []string) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	var (
		filename string
		addr     int
		erase    bool
		verify   bool
	)
	fs.StringVar(&filename, "f", "", "input file")
	fs.IntVar(&addr, "a", 0, "start address")
	fs.BoolVar(&erase, "e", false, "erase the sectors covered by the file first")
	fs.BoolVar(&verify, "verify", false, "read back and compare after writing")
	fs.Parse(args)

	if filename == "" {
		fatalUsage("input file is required")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		fatalf("failed to read file: %v", err)
	}

	t, err := openTarget()
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	if err := checkRange(t.flash, addr, len(data)); err != nil {
		fatalUsage("%v", err)
	}
	if erase {
		if err := t.flash.Erase(addr, len(data)); err != nil {
			fatalf("erase failed: %v", err)
		}
	}

	n, crc, err := program(t.flash, addr, data)
	if n >= 1024 {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		fatalf("%v", err)
	}

	if verify {
		got, err := t.flash.Read(addr, len(data))
		if err != nil {
			fatalf("read back failed: %v", err)
		}
		if i := mismatch(got, data); i >= 0 {
			fatalf("%v: 0x%06X reads 0x%02X, want 0x%02X", errVerify, addr+i, got[i], data[i])
		}
	}

	fmt.Printf("%d bytes to 0x%06X, crc32 0x%08X\n", n, addr, crc)
}

// program writes data at addr in one session, printing progress, and returns
// the byte count and CRC-32 of what was written. The session is closed on
// every path and its error is part of the result.
func program(f *sst25.Flash, addr int, data []byte) (n int, crc uint32, err error) {
	s, err := f.PrepareWrite(addr)
	if err != nil {
		return 0, 0, fmt.Errorf("write flash failed: %w", err)
	}
	for i, b := range data {
		if err := s.WriteByte(b); err != nil {
			err = fmt.Errorf("write flash failed at 0x%06X: %w", addr+i, err)
			return s.Len(), s.Sum32(), errors.Join(err, s.Close())
		}
		if n := s.Len(); n%1024 == 0 {
			progressPrinter(sst25.Progress{Addr: s.Addr(), BytesWritten: n, KiB: n >> 10})
		}
	}
	if err := s.Close(); err != nil {
		return s.Len(), s.Sum32(), fmt.Errorf("finish write failed: %w", err)
	}
	return s.Len(), s.Sum32(), nil
}

// mismatch returns the index of the first differing byte, or -1.
func mismatch(a, b []byte) int {
	if bytes.Equal(a, b) {
		return -1
	}
	for i := range min(len(a), len(b)) {
		if a[i] != b[i] {
			return i
		}
	}
	return min(len(a), len(b))
}
