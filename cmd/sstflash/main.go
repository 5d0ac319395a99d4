// Command sstflash reads, erases and programs SST25VF serial flash chips
// from a host SPI controller, an FT2232H, or a simulated chip.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
)

func fatalf(format string, a ...any) {
	glog.Flush()
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func fatalUsage(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
	sstflash [device flags] <command> [arguments]

Commands:
	info	 print flash ID, size and adapter details
	status	 print or change the status register
	read	 read flash memory
	erase	 erase sectors or the whole chip
	write	 write a file to flash memory
	stream	 write bytes from a serial port or stdin until it goes idle
	send	 send a file to a streaming device over a tty

Device flags:
`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Set("logtostderr", "true")
	flag.Usage = usage
	flag.Parse()
	defer glog.Flush()
	if flag.NArg() == 0 {
		usage()
	}

	args := flag.Args()[1:]
	switch cmd := flag.Arg(0); cmd {
	case "info", "id":
		infoCommand(args)
	case "status":
		statusCommand(args)
	case "read":
		readCommand(args)
	case "erase":
		eraseCommand(args)
	case "write":
		writeCommand(args)
	case "stream":
		streamCommand(args)
	case "send":
		sendCommand(args)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", cmd)
		usage()
	}
}
