package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gentam/sst25"
	"zappem.net/pub/debug/xxd"
)

func readCommand(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	var (
		addr    int
		nread   int
		all     bool
		outFile string
	)
	fs.IntVar(&addr, "a", 0, "start address")
	fs.IntVar(&nread, "n", 256, "number of bytes to read")
	fs.BoolVar(&all, "all", false, "read the whole chip")
	fs.StringVar(&outFile, "o", "", "output file (default: hexdump)")
	fs.Parse(args)

	t, err := openTarget()
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	if all {
		addr, nread = 0, t.flash.Capacity()
	}
	if err := checkRange(t.flash, addr, nread); err != nil {
		fatalUsage("%v", err)
	}

	data, err := t.flash.Read(addr, nread)
	if err != nil {
		fatalf("read flash failed: %v", err)
	}
	if outFile == "" {
		xxd.Print(addr, data)
		return
	}
	if err := os.WriteFile(outFile, data, 0644); err != nil {
		fatalf("write file failed: %v", err)
	}

	var sum sst25.Checksum
	sum.Write(data)
	fmt.Printf("%d bytes from 0x%06X, crc32 0x%08X\n", len(data), addr, sum.Sum32())
}
