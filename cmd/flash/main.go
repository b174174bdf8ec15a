package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	// .env values become defaults for the FLASH_* flag variables
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("could not load .env file: %v", err)
	}
	app := newApp()
	err := app.Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "flash"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "I2C EEPROM cli"
	app.Flags = globalFlags()
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Prefix:          "flash",
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		readCmd,
		writeCmd,
		dumpCmd,
		loadCmd,
		infoCmd,
		usbCmd,
		mcp2221Cmd,
	}
	return app
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging and bus traffic dumps",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"FLASH_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "transport",
			Aliases: []string{"t"},
			Usage:   "bus transport: periph, mcp2221 or gobot",
			EnvVars: []string{"FLASH_TRANSPORT"},
		},
		&cli.StringFlag{
			Name:    "bus",
			Usage:   "periph I2C bus name (e.g. /dev/i2c-1 or 1)",
			EnvVars: []string{"FLASH_BUS"},
		},
		&cli.IntFlag{
			Name:    "gobot-bus",
			Usage:   "gobot adaptor I2C bus number, -1 for the adaptor default",
			EnvVars: []string{"FLASH_GOBOT_BUS"},
		},
		&cli.IntFlag{
			Name:    "device-index",
			Usage:   "MCP2221 bridge index when several are attached",
			EnvVars: []string{"FLASH_DEVICE_INDEX"},
		},
		&cli.UintFlag{
			Name:    "capacity",
			Usage:   "memory capacity in bytes",
			EnvVars: []string{"FLASH_CAPACITY"},
		},
		&cli.DurationFlag{
			Name:    "write-delay",
			Usage:   "settling delay after each page write",
			EnvVars: []string{"FLASH_WRITE_DELAY"},
		},
	}
}
