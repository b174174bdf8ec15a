package eeprom

import (
	"context"
	"errors"
	"sync"
)

var ErrBusBusy = errors.New("I2C engine is busy (command not completed)")
var ErrNotOpen = errors.New("bus is not open")

// DeviceID identifies a logical device sharing a physical bus.
type DeviceID int

const (
	DeviceFlash DeviceID = iota + 1
)

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
}

// AddressableWriteReader writes w and then reads into r within a single
// transaction (repeated start) where the underlying hardware supports it.
type AddressableWriteReader interface {
	WriteReadAddr(ctx context.Context, address byte, w, r []byte) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
	AddressableWriteReader
}

// Channel tracks the lifecycle of devices attached to a bus.
type Channel interface {
	Init(ctx context.Context, device DeviceID) error
	Deinit(ctx context.Context, device DeviceID) error
	IsInit(device DeviceID) bool
}

type Transport interface {
	Channel
	I2CBus
}

// ChannelSet is the set of initialized devices on a bus. Transports use it to
// open the bus for the first device and close it after the last one.
type ChannelSet struct {
	mx      sync.Mutex
	devices map[DeviceID]struct{}
}

// Add marks the device as initialized and reports whether it is the first one.
func (s *ChannelSet) Add(device DeviceID) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.devices == nil {
		s.devices = make(map[DeviceID]struct{})
	}
	first := len(s.devices) == 0
	s.devices[device] = struct{}{}
	return first
}

// Remove clears the device and reports whether no devices are left. Removing
// an unknown device is a no-op and reports false.
func (s *ChannelSet) Remove(device DeviceID) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if _, ok := s.devices[device]; !ok {
		return false
	}
	delete(s.devices, device)
	return len(s.devices) == 0
}

func (s *ChannelSet) Contains(device DeviceID) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, ok := s.devices[device]
	return ok
}

func (s *ChannelSet) Len() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.devices)
}
