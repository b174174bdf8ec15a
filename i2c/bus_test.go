package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/memory/flash"
)

func playbackOpener(p *i2ctest.Playback, opened *int) Opener {
	return func(name string) (i2c.BusCloser, error) {
		*opened++
		return p, nil
	}
}

func TestGenericBus_Lifecycle(t *testing.T) {
	playback := &i2ctest.Playback{}
	opened := 0
	bus := NewGenericBusWithOpener("test", playbackOpener(playback, &opened))
	ctx := context.Background()

	assert.False(t, bus.IsInit(eeprom.DeviceFlash))
	require.NoError(t, bus.Init(ctx, eeprom.DeviceFlash))
	require.NoError(t, bus.Init(ctx, eeprom.DeviceID(2)))
	assert.Equal(t, 1, opened)
	assert.True(t, bus.IsInit(eeprom.DeviceFlash))

	require.NoError(t, bus.Deinit(ctx, eeprom.DeviceFlash))
	assert.False(t, bus.IsInit(eeprom.DeviceFlash))
	assert.True(t, bus.IsInit(eeprom.DeviceID(2)))
	require.NoError(t, bus.Deinit(ctx, eeprom.DeviceID(2)))

	assert.ErrorIs(t, bus.WriteToAddr(ctx, 0x50, []byte{0}), eeprom.ErrNotOpen)
}

func TestGenericBus_OpenFailure(t *testing.T) {
	bus := NewGenericBusWithOpener("missing", func(name string) (i2c.BusCloser, error) {
		return nil, errors.New("no such bus")
	})
	err := bus.Init(context.Background(), eeprom.DeviceFlash)
	assert.ErrorContains(t, err, "no such bus")
	assert.False(t, bus.IsInit(eeprom.DeviceFlash))
}

func TestGenericBus_FlashTransactions(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x50, W: []byte{14, 0xA1, 0xA2}},
			{Addr: 0x51, W: []byte{0, 0xA3}},
			{Addr: 0x50, W: []byte{0xFF}, R: []byte{0xB1, 0xB2, 0xB3}},
		},
	}
	opened := 0
	bus := NewGenericBusWithOpener("test", playbackOpener(playback, &opened))
	f := flash.New(bus, flash.WithWriteDelay(0))
	ctx := context.Background()

	require.NoError(t, f.Init(ctx))
	require.NoError(t, f.Write(ctx, 0xFE, []byte{0xA1, 0xA2, 0xA3}))
	out := make([]byte, 3)
	require.NoError(t, f.Read(ctx, 0xFF, out))
	assert.Equal(t, []byte{0xB1, 0xB2, 0xB3}, out)
	// closing the playback verifies every expected operation was consumed
	require.NoError(t, f.Deinit(ctx))
}

func TestGenericBus_TxFailure(t *testing.T) {
	playback := &i2ctest.Playback{DontPanic: true}
	opened := 0
	bus := NewGenericBusWithOpener("test", playbackOpener(playback, &opened))
	ctx := context.Background()

	require.NoError(t, bus.Init(ctx, eeprom.DeviceFlash))
	err := bus.WriteToAddr(ctx, 0x50, []byte{0x00, 0x01})
	assert.Error(t, err)
	require.NoError(t, bus.Close())
}
