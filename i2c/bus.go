package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.Transport = &GenericBus{}

// Opener opens a periph I2C bus by name.
type Opener func(name string) (i2c.BusCloser, error)

// HostOpener loads the periph host drivers before opening the bus.
func HostOpener(name string) (i2c.BusCloser, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	return i2creg.Open(name)
}

// GenericBus is an I2C transport on top of periph.io. The bus is opened when
// the first device is initialized and closed after the last one is released.
type GenericBus struct {
	mx       sync.Mutex
	name     string
	open     Opener
	bus      i2c.BusCloser
	channels eeprom.ChannelSet
}

func NewGenericBus(dev string) *GenericBus {
	return NewGenericBusWithOpener(dev, HostOpener)
}

func NewGenericBusWithOpener(dev string, open Opener) *GenericBus {
	return &GenericBus{name: dev, open: open}
}

func (b *GenericBus) Init(ctx context.Context, device eeprom.DeviceID) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.bus == nil {
		bus, err := b.open(b.name)
		if err != nil {
			return fmt.Errorf("could not open i2c bus %q: %w", b.name, err)
		}
		b.bus = bus
		slog.Debug("i2c bus opened", "bus", b.name)
	}
	b.channels.Add(device)
	return nil
}

func (b *GenericBus) Deinit(ctx context.Context, device eeprom.DeviceID) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if !b.channels.Remove(device) || b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	if err != nil {
		return fmt.Errorf("could not close i2c bus %q: %w", b.name, err)
	}
	slog.Debug("i2c bus closed", "bus", b.name)
	return nil
}

func (b *GenericBus) IsInit(device eeprom.DeviceID) bool {
	return b.channels.Contains(device)
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(address, nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(address, buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

// WriteReadAddr issues w and r as one periph transaction with a repeated start.
func (b *GenericBus) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	err := b.tx(address, w, r)
	if err != nil {
		return fmt.Errorf("could not write-read i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) tx(address byte, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.bus == nil {
		return eeprom.ErrNotOpen
	}
	return b.bus.Tx(uint16(address), w, r)
}

// Close releases the bus regardless of the devices still initialized on it.
func (b *GenericBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	return err
}
