// Package element defines the processing stage contract and the drivers
// which run stages as task jobs.
//
// An element implements Open, Process and Close and embeds *Base which keeps
// ports, lifecycle state and event plumbing. The drivers Open, Process and
// Close wrap the element methods into job functions: they keep the state
// machine consistent, open dependent elements lazily and gate processing on
// data availability, so that a set of elements can share a single
// round-robin task.
package element

import (
	"errors"

	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/job"
)

var (
	// ErrPortCaps is returned when an element can't take one more port.
	ErrPortCaps = errors.New("element: port capability not supported")
	// ErrInvalidState is returned when a parameter is changed after open.
	ErrInvalidState = errors.New("element: invalid state")
	// ErrInvalidArg is returned for bad parameters and configs.
	ErrInvalidArg = errors.New("element: invalid argument")
	// ErrUnknownParam is returned by SetParam for unsupported names.
	ErrUnknownParam = errors.New("element: unknown parameter")
)

// Element is a processing stage.
//
// Process performs one bounded unit of work and returns:
//   - job.OK when output was produced and more input is awaited;
//   - job.Continue when more calls are needed before any output is ready;
//   - job.Truncate when output was produced but buffered input remains;
//   - job.Done when the last output was produced;
//   - job.Fail on unrecoverable error.
//
// Close must be safe to call after a partially failed Open.
type Element interface {
	Core() *Base
	Open() error
	Process() (job.Result, error)
	Close() error
}

// EventReceiver is implemented by elements which react on stream info
// reported by other elements. FromUpstream is true when the sender is the
// immediate predecessor.
type EventReceiver interface {
	ReceiveEvent(pkt event.Packet, fromUpstream bool) error
}

// ParamSetter is implemented by elements configurable by name. It exists
// for command line and scripting boundaries; code should use typed
// setters.
type ParamSetter interface {
	SetParam(name, value string) error
}

// Destroyer is implemented by elements that hold resources beyond Close.
type Destroyer interface {
	Destroy() error
}

// Job mask bits record which lifecycle jobs have run.
const (
	JobOpen uint8 = 1 << iota
	JobProcess
	JobClose
)
