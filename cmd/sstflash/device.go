package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gentam/sst25"
	"github.com/gentam/sst25/sim"
	"github.com/golang/glog"
)

var (
	useFTDI     = flag.Bool("ftdi", false, "use the first FT2232H as SPI master, flash CS on ADBUS4")
	spiPort     = flag.String("spi", "", "host SPI port, e.g. /dev/spidev0.0")
	csPin       = flag.String("cs", "", "GPIO driving the flash chip select (with -spi)")
	defCSPin    = flag.String("defcs", "", "GPIO of the bus's default chip select to park around flash access (with -spi)")
	useSim      = flag.Bool("sim", false, "use a simulated SST25VF080B")
	simImage    = flag.String("sim-image", "", "file preloaded into the simulated chip")
	busyTimeout = flag.Duration("busy-timeout", 0, "give up when the chip stays busy this long (0 waits forever)")
)

// target is the flash selected by the device flags.
type target struct {
	flash *sst25.Flash
	dev   *sst25.Device // nil for the simulator
	chip  *sim.Chip

	id   byte   // device ID read when opened
	name string // part name, empty when the ID is unknown
}

func (t *target) Close() {
	if t.dev != nil {
		if err := t.dev.Close(); err != nil {
			glog.Warningf("close device: %v", err)
		}
	}
}

// openTarget opens the device named by the flags and identifies the chip.
func openTarget(opts ...sst25.Option) (*target, error) {
	opts = append([]sst25.Option{
		sst25.WithLogger(glogLogger{}),
		sst25.WithBusyTimeout(*busyTimeout),
	}, opts...)

	t := &target{}
	switch {
	case *useSim:
		t.chip = sim.New(1<<20, 0x8E)
		if *simImage != "" {
			data, err := os.ReadFile(*simImage)
			if err != nil {
				return nil, fmt.Errorf("failed to load simulator image: %w", err)
			}
			if len(data) > t.chip.Size() {
				return nil, fmt.Errorf("simulator image is %d bytes, chip holds %d", len(data), t.chip.Size())
			}
			t.chip.Load(0, data)
		}
		t.flash = sst25.NewFlash(t.chip, sst25.NopArbiter, opts...)
	case *useFTDI:
		d, err := sst25.OpenFTDI(opts...)
		if err != nil {
			return nil, err
		}
		t.dev, t.flash = d, d.Flash
	case *spiPort != "":
		if *csPin == "" {
			fatalUsage("-cs is required with -spi")
		}
		d, err := sst25.OpenSPI(*spiPort, *csPin, *defCSPin, opts...)
		if err != nil {
			return nil, err
		}
		t.dev, t.flash = d, d.Flash
	default:
		fatalUsage("no device: use -ftdi, -spi or -sim")
	}

	var err error
	t.id, t.name, err = t.flash.ReadID()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("read flash ID failed: %w", err)
	}
	if t.name == "" {
		glog.Warningf("unknown flash ID (%02X), assuming SST25VF080B parameters", t.id)
	} else {
		glog.V(1).Infof("found %s (%02X)", t.name, t.id)
	}
	return t, nil
}

// glogLogger sends driver events to glog. Debug events need -v=1.
type glogLogger struct{}

func (glogLogger) Debug(msg string, kv ...any) {
	if glog.V(1) {
		glog.InfoDepth(1, formatKV(msg, kv))
	}
}

func (glogLogger) Info(msg string, kv ...any)  { glog.InfoDepth(1, formatKV(msg, kv)) }
func (glogLogger) Error(msg string, kv ...any) { glog.ErrorDepth(1, formatKV(msg, kv)) }

func formatKV(msg string, kv []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	if len(kv)%2 == 1 {
		fmt.Fprintf(&b, " %v", kv[len(kv)-1])
	}
	return b.String()
}

// checkRange fails unless [addr, addr+n) fits in the chip.
func checkRange(f *sst25.Flash, addr, n int) error {
	if addr < 0 || n < 0 || addr+n > f.Capacity() {
		return fmt.Errorf("range 0x%06X+%d outside %d byte flash", addr, n, f.Capacity())
	}
	return nil
}

// progressPrinter prints stream progress on one line of stderr.
func progressPrinter(p sst25.Progress) {
	fmt.Fprintf(os.Stderr, "\rBytes written: %dk (%v)", p.KiB, p.Elapsed.Round(time.Millisecond))
}

var errVerify = errors.New("verify failed")
