package port

import (
	"errors"
	"fmt"
	"time"

	"github.com/dudk/gmf/payload"
)

// WaitForever makes acquire and release block until they complete.
const WaitForever time.Duration = -1

// NoWait makes acquire and release return immediately.
const NoWait time.Duration = 0

// IO results besides success. ErrAbort is a graceful interruption and is
// never treated as a failure by elements.
var (
	ErrFail    = errors.New("port: io failure")
	ErrAbort   = errors.New("port: aborted")
	ErrTimeout = errors.New("port: timeout")
)

// IO is implemented by external producers and consumers: endpoints, data
// buses, test doubles.
//
// Acquire fills (in ports) or prepares (out ports) pl and returns the number
// of bytes available. Release hands pl back. Both may block up to wait;
// WaitForever blocks indefinitely, NoWait never blocks.
type IO interface {
	Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error)
	Release(pl *payload.Payload, wait time.Duration) error
}

// Funcs adapts plain functions to IO. Nil functions succeed: acquire
// reports wanted bytes, release does nothing.
type Funcs struct {
	AcquireFunc func(pl *payload.Payload, wanted int, wait time.Duration) (int, error)
	ReleaseFunc func(pl *payload.Payload, wait time.Duration) error
}

// Acquire implements IO.
func (f Funcs) Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if f.AcquireFunc == nil {
		return wanted, nil
	}
	return f.AcquireFunc(pl, wanted, wait)
}

// Release implements IO.
func (f Funcs) Release(pl *payload.Payload, wait time.Duration) error {
	if f.ReleaseFunc == nil {
		return nil
	}
	return f.ReleaseFunc(pl, wait)
}

// ioError makes sure an IO error matches one of ErrFail, ErrAbort and
// ErrTimeout.
func ioError(err error) error {
	if err == nil || errors.Is(err, ErrAbort) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrFail) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrFail, err)
}
