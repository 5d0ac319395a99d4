package main

import (
	"flag"
	"fmt"
)

func eraseCommand(args []string) {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	var (
		addr int
		size int
		all  bool
	)
	fs.IntVar(&addr, "a", 0, "start address, rounded down to a 4KB sector")
	fs.IntVar(&size, "n", 4096, "number of bytes to erase, rounded up to whole sectors")
	fs.BoolVar(&all, "all", false, "erase the entire chip")
	fs.Parse(args)

	t, err := openTarget()
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	if all {
		if err := t.flash.EraseChip(); err != nil {
			fatalf("chip erase failed: %v", err)
		}
		fmt.Println("chip erased")
		return
	}

	if err := checkRange(t.flash, addr, size); err != nil {
		fatalUsage("%v", err)
	}
	if err := t.flash.Erase(addr, size); err != nil {
		fatalf("erase failed: %v", err)
	}
	fmt.Printf("erased 0x%06X+%d\n", addr, size)
}
