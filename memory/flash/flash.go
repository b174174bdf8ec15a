// Package flash drives a 24C16-class I2C EEPROM: a 2 KiB part split into
// 16-byte pages and eight 256-byte blocks, each block answering on its own bus
// address starting at 0x50.
//
// The driver translates linear (address, length) requests into bus
// transactions. Writes are split at page boundaries and every page write is
// followed by a settling delay covering the internal write cycle. Reads are
// issued as a single write-then-read transaction.
//
// Example usage:
//
//	bus := i2c.NewGenericBus("/dev/i2c-1")
//	f := flash.New(bus)
//	if err := f.Init(ctx); err != nil { log.Fatal(err) }
//	defer f.Deinit(ctx)
//	err := f.Write(ctx, 0x10, []byte("hello"))
//	buf := make([]byte, 5)
//	err = f.Read(ctx, 0x10, buf)
package flash

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/eeprom"
)

const (
	DefaultCapacity   = 2048
	PageSize          = 16
	BaseAddress       = 0x50
	DefaultWriteDelay = 6 * time.Millisecond
)

type Config struct {
	Device     eeprom.DeviceID
	Capacity   uint
	WriteDelay time.Duration
	Delayer    Delayer
	Logger     *slog.Logger
}

type Option func(*Config)

// WithDevice sets the identity under which the device is initialized on the bus.
func WithDevice(device eeprom.DeviceID) Option {
	return func(c *Config) {
		c.Device = device
	}
}

func WithCapacity(capacity uint) Option {
	return func(c *Config) {
		c.Capacity = capacity
	}
}

func WithWriteDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.WriteDelay = delay
	}
}

func WithDelayer(delayer Delayer) Option {
	return func(c *Config) {
		c.Delayer = delayer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Flash is a handle to one physical memory device.
//
// A Flash holds no mutable state and no lock. Calls must not overlap: a
// multi-page write interleaved with another call on the same bus would break
// the page addressing, so callers sharing a handle serialize access themselves.
type Flash struct {
	transport eeprom.Transport
	config    Config
}

func New(transport eeprom.Transport, opts ...Option) *Flash {
	config := Config{
		Device:     eeprom.DeviceFlash,
		Capacity:   DefaultCapacity,
		WriteDelay: DefaultWriteDelay,
		Delayer:    SleepDelayer{},
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Flash{transport: transport, config: config}
}

func (f *Flash) Init(ctx context.Context) error {
	err := f.transport.Init(ctx, f.config.Device)
	if err != nil {
		return fmt.Errorf("flash: could not init bus channel: %w", err)
	}
	return nil
}

func (f *Flash) Deinit(ctx context.Context) error {
	err := f.transport.Deinit(ctx, f.config.Device)
	if err != nil {
		return fmt.Errorf("flash: could not deinit bus channel: %w", err)
	}
	return nil
}

// IsInit asks the transport every time; the driver keeps no copy of the state.
func (f *Flash) IsInit() bool {
	return f.transport.IsInit(f.config.Device)
}

func (f *Flash) Capacity() uint {
	return f.config.Capacity
}

// Write stores data starting at address. The request is split into page
// writes; each is followed by the write delay. On a failed page write the
// remaining pages are skipped and the pages already written stay written.
func (f *Flash) Write(ctx context.Context, address uint, data []byte) error {
	_, err := f.write(ctx, address, data)
	return err
}

// write returns the number of bytes of data committed to the device.
func (f *Flash) write(ctx context.Context, address uint, data []byte) (int, error) {
	if err := f.check(address, len(data)); err != nil {
		return 0, err
	}
	cursor := address
	written := 0
	for written < len(data) {
		pageOffset := cursor % PageSize
		size := min(uint(len(data)-written), PageSize-pageOffset)
		busAddr := blockAddress(cursor)

		payload := make([]byte, size+1)
		payload[0] = byte(pageOffset)
		copy(payload[1:], data[written:written+int(size)])

		f.config.Logger.Debug("flash page write", "address", cursor, "bus", busAddr, "offset", pageOffset, "size", size)
		err := f.transport.WriteToAddr(ctx, busAddr, payload)
		if err != nil {
			return written, fmt.Errorf("%w: page write at %#04x (bus %#02x): %w", ErrTransport, cursor, busAddr, err)
		}
		// the part ignores the bus until its internal write cycle completes
		f.config.Delayer.Delay(f.config.WriteDelay)

		cursor += size
		written += int(size)
	}
	return written, nil
}

// Read fills data with the bytes stored from address onwards in a single
// transaction. Only the low address byte is sent and the transaction always
// targets the base bus address.
func (f *Flash) Read(ctx context.Context, address uint, data []byte) error {
	if err := f.check(address, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	f.config.Logger.Debug("flash read", "address", address, "size", len(data))
	err := f.transport.WriteReadAddr(ctx, BaseAddress, []byte{byte(address)}, data)
	if err != nil {
		return fmt.Errorf("%w: read at %#04x: %w", ErrTransport, address, err)
	}
	return nil
}

func (f *Flash) check(address uint, length int) error {
	if !f.IsInit() {
		return ErrNotInitialized
	}
	capacity := f.config.Capacity
	if address > capacity {
		return fmt.Errorf("%w: address %#x beyond capacity %#x", ErrOutOfRange, address, capacity)
	}
	if uint(length) > capacity-address {
		return fmt.Errorf("%w: %d bytes at %#x exceed capacity %#x", ErrOutOfRange, length, address, capacity)
	}
	return nil
}

// blockAddress maps a memory address to the bus address of its 256-byte block.
func blockAddress(address uint) byte {
	return byte(BaseAddress | (address >> 8))
}
