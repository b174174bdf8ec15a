package flash

import "time"

// Delayer blocks the calling goroutine. It has no cancellation: a page write
// that reached the device must be given its full write cycle.
type Delayer interface {
	Delay(d time.Duration)
}

type DelayFunc func(d time.Duration)

func (f DelayFunc) Delay(d time.Duration) { f(d) }

type SleepDelayer struct{}

func (SleepDelayer) Delay(d time.Duration) {
	time.Sleep(d)
}
