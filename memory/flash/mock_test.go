package flash

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mklimuk/eeprom"
)

// MockTransport is a mock implementation of eeprom.Transport using testify/mock
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Init(ctx context.Context, device eeprom.DeviceID) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockTransport) Deinit(ctx context.Context, device eeprom.DeviceID) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockTransport) IsInit(device eeprom.DeviceID) bool {
	args := m.Called(device)
	return args.Bool(0)
}

func (m *MockTransport) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	// the driver allocates a fresh payload per page, keep a copy anyway
	args := m.Called(ctx, address, append([]byte(nil), buffer...))
	return args.Error(0)
}

func (m *MockTransport) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockTransport) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	args := m.Called(ctx, address, w, len(r))
	if data, ok := args.Get(0).([]byte); ok {
		copy(r, data)
	}
	return args.Error(1)
}

type MockDelayer struct {
	mock.Mock
}

func (m *MockDelayer) Delay(d time.Duration) {
	m.Called(d)
}

// replayBus records every bus event in order and replays written bytes on read.
// Page writes carry only the in-page offset, so it cannot place bytes at their
// memory address; a read returns the written payloads in the order they were sent.
type replayBus struct {
	initialized bool
	failOn      int // 1-based index of the write transaction that fails, 0 never
	writes      int
	events      []string
	stored      []byte
	lastRead    []byte
}

func (b *replayBus) Init(ctx context.Context, device eeprom.DeviceID) error {
	b.initialized = true
	return nil
}

func (b *replayBus) Deinit(ctx context.Context, device eeprom.DeviceID) error {
	b.initialized = false
	return nil
}

func (b *replayBus) IsInit(device eeprom.DeviceID) bool {
	return b.initialized
}

func (b *replayBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.writes++
	b.events = append(b.events, fmt.Sprintf("write %#02x offset=%d size=%d", address, buffer[0], len(buffer)-1))
	if b.writes == b.failOn {
		return fmt.Errorf("nack")
	}
	b.stored = append(b.stored, buffer[1:]...)
	return nil
}

func (b *replayBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return fmt.Errorf("unexpected plain read")
}

func (b *replayBus) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	b.events = append(b.events, fmt.Sprintf("read %#02x start=%d size=%d", address, w[0], len(r)))
	b.lastRead = append([]byte(nil), w...)
	copy(r, b.stored)
	return nil
}

func (b *replayBus) Delay(d time.Duration) {
	b.events = append(b.events, fmt.Sprintf("delay %s", d))
}
