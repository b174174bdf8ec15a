package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/busctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// HID report commands (datasheet section 3.1)
const (
	cmdStatusSet           = 0x10
	cmdReadGetData         = 0x40
	cmdWriteData           = 0x90
	cmdReadData            = 0x91
	cmdReadDataRepeatStart = 0x93
	cmdWriteDataNoStop     = 0x94
)

const reportSize = 64

// a single report carries at most 60 bytes of I2C data
const maxChunk = 60

var ErrCommandFailed = errors.New("command failed")
var ErrTooLong = errors.New("transfer too long for a single report")

type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type MCP2221Opts struct {
	ResponseWait time.Duration
	// DeviceIndex selects among several attached bridges; -1 requires exactly one.
	DeviceIndex int
}

type MCP2221Opt func(*MCP2221Opts)

func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.ResponseWait = wait
	}
}

func WithDeviceIndex(index int) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.DeviceIndex = index
	}
}

var _ eeprom.Transport = &MCP2221{}

// MCP2221 is a Microchip MCP2221 USB to I2C bridge. Every command opens the
// HID device, exchanges one 64-byte report pair and closes it again.
type MCP2221 struct {
	mx       sync.Mutex
	config   MCP2221Opts
	request  []byte
	response []byte
	open     func(index int) (hidDevice, error)
	channels eeprom.ChannelSet
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	config := MCP2221Opts{
		ResponseWait: 50 * time.Millisecond,
		DeviceIndex:  -1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MCP2221{
		config:   config,
		request:  make([]byte, reportSize),
		response: make([]byte, reportSize),
		open:     openHID,
	}
}

func openHID(index int) (hidDevice, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification")
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// Init checks the bridge is attached before marking the device initialized.
func (d *MCP2221) Init(ctx context.Context, device eeprom.DeviceID) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	dev, err := d.open(d.config.DeviceIndex)
	if err != nil {
		return err
	}
	_ = dev.Close()
	d.channels.Add(device)
	return nil
}

func (d *MCP2221) Deinit(ctx context.Context, device eeprom.DeviceID) error {
	d.channels.Remove(device)
	return nil
}

func (d *MCP2221) IsInit(device eeprom.DeviceID) bool {
	return d.channels.Contains(device)
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.write(ctx, cmdWriteData, address, buffer)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.read(ctx, cmdReadData, address, buffer)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	return nil
}

// WriteReadAddr writes w without a stop condition and reads r after a
// repeated start.
func (d *MCP2221) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.write(ctx, cmdWriteDataNoStop, address, w)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	err = d.read(ctx, cmdReadDataRepeatStart, address, r)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > maxChunk {
		return fmt.Errorf("%w: %d bytes", ErrTooLong, len(buffer))
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.send(ctx)
	if err != nil {
		return err
	}
	// write could not be performed
	if d.response[1] == 0x01 {
		slog.Debug("adapter busy", "address", address)
		return eeprom.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx)
	if err != nil {
		return err
	}
	if d.response[1] == 0x01 {
		return eeprom.ErrBusBusy
	}
	// the engine hands the data over in chunks of up to 60 bytes
	for got := 0; got < len(buffer); {
		resetBuffer(d.request)
		resetBuffer(d.response)
		d.request[0] = cmdReadGetData
		err = d.send(ctx)
		if err != nil {
			return fmt.Errorf("error getting read data from adapter: %w", err)
		}
		if d.response[1] == 0x41 {
			return fmt.Errorf("error reading the I2C slave data from the I2C engine")
		}
		size := int(d.response[3])
		if size == 127 || size > maxChunk || size > len(buffer)-got {
			return fmt.Errorf("invalid data size byte; expected at most %d, got %d", min(maxChunk, len(buffer)-got), size)
		}
		if size == 0 {
			return fmt.Errorf("no data after %d of %d bytes", got, len(buffer))
		}
		copy(buffer[got:], d.response[4:4+size])
		got += size
	}
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSet
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// ReleaseBus cancels the current I2C transfer and frees the bus.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSet
	d.request[2] = 0x10
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open(d.config.DeviceIndex)
	if err != nil {
		return err
	}
	defer func() {
		_ = dev.Close()
	}()
	verbose := busctx.IsVerbose(ctx)
	if verbose {
		slog.Info("sending message to adapter", "request", "\n"+hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.config.ResponseWait > 0 {
		time.Sleep(d.config.ResponseWait)
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Info("read message from adapter", "response", "\n"+hex.Dump(d.response))
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("%w: response to %#02x echoes %#02x", ErrCommandFailed, d.request[0], d.response[0])
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
