package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobotI2C "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/eeprom"
)

// fakeConnection answers the plain read/write subset of gobot's connection.
type fakeConnection struct {
	gobotI2C.Connection
	written [][]byte
	reply   []byte
	failW   bool
	closed  bool
}

func (c *fakeConnection) Write(b []byte) (int, error) {
	if c.failW {
		return 0, errors.New("nack")
	}
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConnection) Read(b []byte) (int, error) {
	return copy(b, c.reply), nil
}

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

type fakeConnector struct {
	conns map[int]*fakeConnection
	buses []int
}

func (f *fakeConnector) GetI2cConnection(address int, busNr int) (gobotI2C.Connection, error) {
	f.buses = append(f.buses, busNr)
	conn, ok := f.conns[address]
	if !ok {
		return nil, errors.New("no device")
	}
	return conn, nil
}

func (f *fakeConnector) DefaultI2cBus() int {
	return 2
}

func TestGobotBus_DefaultBus(t *testing.T) {
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x50: {}}}
	bus := NewGobotBus(connector, -1)
	ctx := context.Background()

	require.NoError(t, bus.Init(ctx, eeprom.DeviceFlash))
	require.NoError(t, bus.WriteToAddr(ctx, 0x50, []byte{0x01}))
	require.NoError(t, bus.WriteToAddr(ctx, 0x50, []byte{0x02}))
	assert.Equal(t, []int{2}, connector.buses, "connection is reused")
}

func TestGobotBus_WriteRead(t *testing.T) {
	conn := &fakeConnection{reply: []byte{0xCA, 0xFE}}
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x50: conn}}
	bus := NewGobotBus(connector, 0)
	ctx := context.Background()

	require.NoError(t, bus.Init(ctx, eeprom.DeviceFlash))
	out := make([]byte, 2)
	require.NoError(t, bus.WriteReadAddr(ctx, 0x50, []byte{0x10}, out))
	assert.Equal(t, []byte{0xCA, 0xFE}, out)
	assert.Equal(t, [][]byte{{0x10}}, conn.written)

	require.NoError(t, bus.Deinit(ctx, eeprom.DeviceFlash))
	assert.True(t, conn.closed)
	assert.False(t, bus.IsInit(eeprom.DeviceFlash))
}

func TestGobotBus_ShortRead(t *testing.T) {
	conn := &fakeConnection{reply: []byte{0x01}}
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x50: conn}}
	bus := NewGobotBus(connector, 0)
	ctx := context.Background()

	require.NoError(t, bus.Init(ctx, eeprom.DeviceFlash))
	err := bus.ReadFromAddr(ctx, 0x50, make([]byte, 4))
	assert.ErrorContains(t, err, "short read")
}

func TestGobotBus_Failures(t *testing.T) {
	conn := &fakeConnection{failW: true}
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x50: conn}}
	bus := NewGobotBus(connector, 0)
	ctx := context.Background()

	assert.ErrorIs(t, bus.WriteToAddr(ctx, 0x50, []byte{0}), eeprom.ErrNotOpen)
	require.NoError(t, bus.Init(ctx, eeprom.DeviceFlash))
	assert.ErrorContains(t, bus.WriteToAddr(ctx, 0x50, []byte{0}), "nack")
	assert.ErrorContains(t, bus.WriteToAddr(ctx, 0x57, []byte{0}), "no device")
}
