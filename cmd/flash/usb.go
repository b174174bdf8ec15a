package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/cmd/flash/console"
)

var usbCmd = &cli.Command{
	Name:  "usb",
	Usage: "inspect USB HID devices",
	Subcommands: []*cli.Command{
		usbLsCmd,
		usbDetectCmd,
	},
}

var usbLsCmd = &cli.Command{
	Name:  "ls",
	Usage: "list all HID devices",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(console.Output(), 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")
		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		return w.Flush()
	},
}

var usbDetectCmd = &cli.Command{
	Name:  "detect",
	Usage: "list attached USB to I2C bridges",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(adapter.VendorID, adapter.ProductID)

		w := tabwriter.NewWriter(console.Output(), 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "INDEX\tVENDOR\tPRODUCT\tSERIAL\tDEVICE\n")
		for i, dev := range devices {
			_, _ = fmt.Fprintf(w, "%d\t%#x\t%#x\t%s\t%s\n", i, dev.VendorID, dev.ProductID, dev.Serial, "MCP2221")
		}
		return w.Flush()
	},
}
