package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/i2c"
	"github.com/mklimuk/eeprom/memory/flash"
)

const (
	transportPeriph  = "periph"
	transportMCP2221 = "mcp2221"
	transportGobot   = "gobot"
)

type config struct {
	Transport   string        `yaml:"transport"`
	Bus         string        `yaml:"bus"`
	GobotBus    int           `yaml:"gobot_bus"`
	DeviceIndex int           `yaml:"device_index"`
	Capacity    uint          `yaml:"capacity"`
	WriteDelay  time.Duration `yaml:"write_delay"`
}

func defaultConfig() config {
	return config{
		Transport:   transportPeriph,
		GobotBus:    -1,
		DeviceIndex: -1,
		Capacity:    flash.DefaultCapacity,
		WriteDelay:  flash.DefaultWriteDelay,
	}
}

// parseConfig overlays YAML data on top of cfg.
func parseConfig(cfg config, data []byte) (config, error) {
	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("could not parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch cfg.Transport {
	case transportPeriph, transportMCP2221, transportGobot:
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.Capacity == 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if cfg.WriteDelay < 0 {
		return fmt.Errorf("write delay must not be negative")
	}
	return nil
}

// loadConfig merges defaults, the config file and explicitly set flags, in
// that order.
func loadConfig(c *cli.Context) (config, error) {
	cfg := defaultConfig()
	if path := c.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("could not read config file: %w", err)
		}
		cfg, err = parseConfig(cfg, data)
		if err != nil {
			return cfg, err
		}
	}
	if c.IsSet("transport") {
		cfg.Transport = c.String("transport")
	}
	if c.IsSet("bus") {
		cfg.Bus = c.String("bus")
	}
	if c.IsSet("gobot-bus") {
		cfg.GobotBus = c.Int("gobot-bus")
	}
	if c.IsSet("device-index") {
		cfg.DeviceIndex = c.Int("device-index")
	}
	if c.IsSet("capacity") {
		cfg.Capacity = c.Uint("capacity")
	}
	if c.IsSet("write-delay") {
		cfg.WriteDelay = c.Duration("write-delay")
	}
	return cfg, cfg.validate()
}

func openTransport(cfg config) (eeprom.Transport, func() error, error) {
	switch cfg.Transport {
	case transportMCP2221:
		return adapter.NewMCP2221(adapter.WithDeviceIndex(cfg.DeviceIndex)), func() error { return nil }, nil
	case transportGobot:
		npi := nanopi.NewNeoAdaptor()
		err := npi.I2cBusAdaptor.Connect()
		if err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		return i2c.NewGobotBus(npi, cfg.GobotBus), npi.I2cBusAdaptor.Finalize, nil
	default:
		bus := i2c.NewGenericBus(cfg.Bus)
		return bus, bus.Close, nil
	}
}

// openFlash returns an initialized driver and the function releasing it.
func openFlash(ctx context.Context, c *cli.Context) (*flash.Flash, config, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cfg, nil, err
	}
	transport, closeTransport, err := openTransport(cfg)
	if err != nil {
		return nil, cfg, nil, err
	}
	f := flash.New(transport,
		flash.WithCapacity(cfg.Capacity),
		flash.WithWriteDelay(cfg.WriteDelay),
		flash.WithLogger(slog.Default()),
	)
	err = f.Init(ctx)
	if err != nil {
		_ = closeTransport()
		return nil, cfg, nil, err
	}
	slog.Debug("flash initialized", "transport", cfg.Transport, "capacity", cfg.Capacity)
	release := func() {
		if err := f.Deinit(ctx); err != nil {
			slog.Warn("flash deinit failed", "error", err)
		}
		if err := closeTransport(); err != nil {
			slog.Warn("transport close failed", "error", err)
		}
	}
	return f, cfg, release, nil
}
