package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/busctx"
	"github.com/mklimuk/eeprom/cmd/flash/console"
	"github.com/mklimuk/eeprom/memory/flash"
)

var addressFlag = &cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "memory address (decimal or 0x hex)", Value: "0"}
var yesFlag = &cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"}

var readCmd = &cli.Command{
	Name:  "read",
	Usage: "read memory and print a hex dump",
	Flags: []cli.Flag{
		addressFlag,
		&cli.StringFlag{Name: "length", Aliases: []string{"l"}, Usage: "number of bytes to read", Value: "16"},
	},
	Action: func(c *cli.Context) error {
		addr, err := parseUint(c.String("address"))
		if err != nil {
			return console.Exit(1, "invalid address: %s", console.Red(err))
		}
		length, err := parseUint(c.String("length"))
		if err != nil {
			return console.Exit(1, "invalid length: %s", console.Red(err))
		}
		ctx := commandContext(c)
		f, _, release, err := openFlash(ctx, c)
		if err != nil {
			return console.Exit(1, "flash initialization error: %s", console.Red(err))
		}
		defer release()
		buf := make([]byte, length)
		err = f.Read(ctx, addr, buf)
		if err != nil {
			return exitFor(err, "read failed")
		}
		console.Printf("%s", hex.Dump(buf))
		return nil
	},
}

var writeCmd = &cli.Command{
	Name:  "write",
	Usage: "write hex bytes to memory",
	Flags: []cli.Flag{
		addressFlag,
		&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex bytes to write (e.g. '01FF23')", Required: true},
		yesFlag,
	},
	Action: func(c *cli.Context) error {
		addr, err := parseUint(c.String("address"))
		if err != nil {
			return console.Exit(1, "invalid address: %s", console.Red(err))
		}
		data, err := hex.DecodeString(strings.TrimPrefix(c.String("data"), "0x"))
		if err != nil {
			return console.Exit(1, "invalid data hex string: %s", console.Red(err))
		}
		if !confirm(c, fmt.Sprintf("write %d bytes at %#04x?", len(data), addr)) {
			return nil
		}
		ctx := commandContext(c)
		f, _, release, err := openFlash(ctx, c)
		if err != nil {
			return console.Exit(1, "flash initialization error: %s", console.Red(err))
		}
		defer release()
		err = f.Write(ctx, addr, data)
		if err != nil {
			return exitFor(err, "write failed")
		}
		console.PInfof(console.PictoPin, "wrote %s bytes at %s", console.White(len(data)), console.White(fmt.Sprintf("%#04x", addr)))
		return nil
	},
}

var dumpCmd = &cli.Command{
	Name:  "dump",
	Usage: "copy the whole memory into a file",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file", Required: true},
	},
	Action: func(c *cli.Context) error {
		ctx := commandContext(c)
		f, _, release, err := openFlash(ctx, c)
		if err != nil {
			return console.Exit(1, "flash initialization error: %s", console.Red(err))
		}
		defer release()
		out, err := os.Create(c.String("out"))
		if err != nil {
			return console.Exit(1, "could not create output file: %s", console.Red(err))
		}
		defer func() { _ = out.Close() }()
		n, err := io.Copy(out, io.NewSectionReader(f, 0, int64(f.Capacity())))
		if err != nil {
			return exitFor(err, "dump failed")
		}
		console.PInfof(console.PictoFloppy, "dumped %s bytes to %s", console.White(n), console.White(c.String("out")))
		return nil
	},
}

var loadCmd = &cli.Command{
	Name:  "load",
	Usage: "write a file into memory",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "input file", Required: true},
		addressFlag,
		yesFlag,
	},
	Action: func(c *cli.Context) error {
		addr, err := parseUint(c.String("address"))
		if err != nil {
			return console.Exit(1, "invalid address: %s", console.Red(err))
		}
		data, err := os.ReadFile(c.String("in"))
		if err != nil {
			return console.Exit(1, "could not read input file: %s", console.Red(err))
		}
		if !confirm(c, fmt.Sprintf("write %d bytes from %s at %#04x?", len(data), c.String("in"), addr)) {
			return nil
		}
		ctx := commandContext(c)
		f, _, release, err := openFlash(ctx, c)
		if err != nil {
			return console.Exit(1, "flash initialization error: %s", console.Red(err))
		}
		defer release()
		n, err := f.WriteAt(data, int64(addr))
		if err != nil {
			console.Warnf("%d of %d bytes committed before failure", n, len(data))
			return exitFor(err, "load failed")
		}
		console.PInfof(console.PictoFloppy, "loaded %s bytes at %s", console.White(n), console.White(fmt.Sprintf("%#04x", addr)))
		return nil
	},
}

type info struct {
	Transport   string `yaml:"transport"`
	Capacity    uint   `yaml:"capacity"`
	PageSize    int    `yaml:"page_size"`
	Pages       uint   `yaml:"pages"`
	BaseAddress string `yaml:"base_address"`
	WriteDelay  string `yaml:"write_delay"`
	Initialized bool   `yaml:"initialized"`
}

var infoCmd = &cli.Command{
	Name:  "info",
	Usage: "print memory geometry and state",
	Action: func(c *cli.Context) error {
		ctx := commandContext(c)
		f, cfg, release, err := openFlash(ctx, c)
		if err != nil {
			return console.Exit(1, "flash initialization error: %s", console.Red(err))
		}
		defer release()
		enc := yaml.NewEncoder(console.Output())
		err = enc.Encode(info{
			Transport:   cfg.Transport,
			Capacity:    f.Capacity(),
			PageSize:    flash.PageSize,
			Pages:       f.Capacity() / flash.PageSize,
			BaseAddress: fmt.Sprintf("%#02x", flash.BaseAddress),
			WriteDelay:  cfg.WriteDelay.String(),
			Initialized: f.IsInit(),
		})
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return enc.Close()
	},
}

func commandContext(c *cli.Context) context.Context {
	return busctx.SetVerbose(c.Context, c.Bool("verbose"))
}

func confirm(c *cli.Context, question string) bool {
	if c.Bool("yes") {
		return true
	}
	ok, err := console.Confirm(question)
	if err != nil {
		console.Errorf("could not read answer: %s", err)
		return false
	}
	if !ok {
		console.PInfof(console.PictoStop, "aborted")
	}
	return ok
}

// exitFor maps driver errors to distinct exit codes.
func exitFor(err error, msg string) cli.ExitCoder {
	code := 1
	switch flash.ResultOf(err) {
	case flash.ResultNotInitialized:
		code = 2
	case flash.ResultOutOfRange:
		code = 3
	case flash.ResultTransportFailure:
		code = 4
	}
	return console.Exit(code, "%s: %s", msg, console.Red(err))
}

func parseUint(s string) (uint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
