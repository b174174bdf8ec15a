package main

import (
	"context"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/cmd/flash/console"
)

var mcp2221Cmd = &cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 bridge maintenance",
	Subcommands: []*cli.Command{
		mcp2221StatusCmd,
		mcp2221ReleaseCmd,
	},
}

var mcp2221StatusCmd = &cli.Command{
	Name:  "status",
	Usage: "print the I2C engine status",
	Action: func(c *cli.Context) error {
		return mcp2221Report(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.Status(ctx)
		})
	},
}

var mcp2221ReleaseCmd = &cli.Command{
	Name:  "release",
	Usage: "cancel the current transfer and release the bus",
	Action: func(c *cli.Context) error {
		return mcp2221Report(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.ReleaseBus(ctx)
		})
	},
}

func mcp2221Report(c *cli.Context, op func(context.Context, *adapter.MCP2221) (*adapter.MCP2221Status, error)) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return console.Exit(1, "configuration error: %s", console.Red(err))
	}
	a := adapter.NewMCP2221(adapter.WithDeviceIndex(cfg.DeviceIndex))
	status, err := op(commandContext(c), a)
	if err != nil {
		return console.Exit(1, "adapter communication error: %s", console.Red(err))
	}
	enc := yaml.NewEncoder(console.Output())
	err = enc.Encode(status)
	if err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return enc.Close()
}
