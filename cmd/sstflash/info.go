package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gentam/sst25"
	"periph.io/x/host/v3/ftdi"
)

func infoCommand(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)

	t, err := openTarget()
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	if err := writeInfo(os.Stdout, t); err != nil {
		fatalf("%v", err)
	}

	if t.dev == nil || t.dev.FTDI == nil {
		return
	}
	ft := t.dev.FTDI

	// Reference: https://github.com/periph/cmd/tree/main/ftdi-list
	i := ftdi.Info{}
	ft.Info(&i)
	fmt.Printf("Adapter:         %s\n", i.Type)
	fmt.Printf("Vendor ID:       %#04x\n", i.VenID)
	fmt.Printf("Device ID:       %#04x\n", i.DevID)

	ee := ftdi.EEPROM{}
	if err := ft.EEPROM(&ee); err != nil {
		fatalf("failed to read EEPROM: %v", err)
	}
	fmt.Printf("Manufacturer:    %s\n", ee.Manufacturer)
	fmt.Printf("Desc:            %s\n", ee.Desc)
	fmt.Printf("Serial:          %s\n", ee.Serial)

	for _, p := range ft.Header() {
		fmt.Printf("%s: %s\n", p, p.Function())
	}
}

// writeInfo prints the part identified when t was opened, its size and its
// status register.
func writeInfo(w io.Writer, t *target) error {
	name := t.name
	if name == "" {
		name = "unknown"
	}
	sr, err := t.flash.Status()
	if err != nil {
		return fmt.Errorf("read flash status register failed: %w", err)
	}
	fmt.Fprintf(w, "Flash:           %s (%02X)\n", name, t.id)
	fmt.Fprintf(w, "Size:            %d bytes\n", t.flash.Capacity())
	fmt.Fprintf(w, "Status:          %v\n", sr)
	return nil
}

func statusCommand(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	var protect, unprotect bool
	fs.BoolVar(&protect, "protect", false, "set BP2-0, protecting the whole array")
	fs.BoolVar(&unprotect, "unprotect", false, "clear block protection")
	fs.Parse(args)

	if protect && unprotect {
		fatalUsage("-protect and -unprotect are exclusive")
	}

	t, err := openTarget()
	if err != nil {
		fatalf("%v", err)
	}
	defer t.Close()

	switch {
	case protect:
		err = t.flash.WriteStatus(sst25.StatusProtected)
	case unprotect:
		err = t.flash.WriteStatus(sst25.StatusUnprotected)
	}
	if err != nil {
		fatalf("write flash status register failed: %v", err)
	}

	sr, err := t.flash.Status()
	if err != nil {
		fatalf("read flash status register failed: %v", err)
	}
	fmt.Println(sr)
}
