package i2c

import (
	"context"
	"fmt"
	"sync"

	gobotI2C "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.Transport = &GobotBus{}

// GobotBus is an I2C transport on top of a gobot adaptor (e.g. the NanoPi
// board adaptor). Connections are opened per device address on first use.
type GobotBus struct {
	mx        sync.Mutex
	connector gobotI2C.Connector
	busNr     int
	conns     map[byte]gobotI2C.Connection
	channels  eeprom.ChannelSet
}

// NewGobotBus binds to bus number busNr of the adaptor. A negative busNr selects
// the adaptor default.
func NewGobotBus(connector gobotI2C.Connector, busNr int) *GobotBus {
	if busNr < 0 {
		busNr = connector.DefaultI2cBus()
	}
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
	}
}

func (b *GobotBus) Init(ctx context.Context, device eeprom.DeviceID) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.conns == nil {
		b.conns = make(map[byte]gobotI2C.Connection)
	}
	b.channels.Add(device)
	return nil
}

func (b *GobotBus) Deinit(ctx context.Context, device eeprom.DeviceID) error {
	if !b.channels.Remove(device) {
		return nil
	}
	return b.closeAll()
}

func (b *GobotBus) IsInit(device eeprom.DeviceID) bool {
	return b.channels.Contains(device)
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err := write(conn, buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err := read(conn, buffer); err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

// WriteReadAddr writes w and reads r as two transactions; gobot connections
// have no repeated start.
func (b *GobotBus) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err := write(conn, w); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	if err := read(conn, r); err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) connection(address byte) (gobotI2C.Connection, error) {
	if b.conns == nil {
		return nil, eeprom.ErrNotOpen
	}
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not get i2c connection %x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = conn
	return conn, nil
}

func (b *GobotBus) closeAll() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var firstErr error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not close i2c connection %x: %w", addr, err)
		}
	}
	b.conns = nil
	return firstErr
}

func write(conn gobotI2C.Connection, buffer []byte) error {
	n, err := conn.Write(buffer)
	if err != nil {
		return err
	}
	if n != len(buffer) {
		return fmt.Errorf("short write: %d of %d", n, len(buffer))
	}
	return nil
}

func read(conn gobotI2C.Connection, buffer []byte) error {
	n, err := conn.Read(buffer)
	if err != nil {
		return err
	}
	if n != len(buffer) {
		return fmt.Errorf("short read: %d of %d", n, len(buffer))
	}
	return nil
}
