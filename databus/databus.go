// Package databus connects pipelines running on different tasks.
//
// A bus has exactly one writer and one reader. The writer side blocks when
// the bus is full and the reader side blocks when it's empty, which is the
// only synchronization between the two tasks. The end of a stream is
// signalled with DoneWrite: once the reader drains remaining data it gets
// a payload marked done.
package databus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"

	"github.com/dudk/gmf/log"
	"github.com/dudk/gmf/payload"
	"github.com/dudk/gmf/port"
)

// Type of data carried by a bus.
type Type int

const (
	// Byte buses carry a stream, reads and writes of any size are allowed.
	Byte Type = iota
	// Block buses carry whole blocks which are passed by reference.
	Block
)

func (t Type) String() string {
	if t == Block {
		return "block"
	}
	return "byte"
}

// PortType returns port type matching bus type.
func (t Type) PortType() port.Type {
	if t == Block {
		return port.Block
	}
	return port.Byte
}

var (
	// ErrAbort is returned by blocked calls after Abort.
	ErrAbort = fmt.Errorf("databus: %w", port.ErrAbort)
	// ErrTimeout is returned when wait expired and nothing was transferred.
	ErrTimeout = fmt.Errorf("databus: %w", port.ErrTimeout)
	// ErrInvalidArg is returned for bad sizes and foreign payloads.
	ErrInvalidArg = errors.New("databus: invalid argument")
	// ErrDone is returned by writes after DoneWrite.
	ErrDone = errors.New("databus: write after done")
)

// Bus is a single producer single consumer channel of bytes or blocks.
type Bus interface {
	Name() string
	Type() Type

	// Read copies up to len(buf) bytes. It returns 0 and no error when
	// the stream is done and drained.
	Read(buf []byte, wait time.Duration) (int, error)
	// Write copies buf into the bus, blocking while it's full.
	Write(buf []byte, wait time.Duration) (int, error)

	// AcquireRead fills pl with up to wanted bytes. Block buses attach a
	// block buffer to pl instead of copying.
	AcquireRead(pl *payload.Payload, wanted int, wait time.Duration) (int, error)
	ReleaseRead(pl *payload.Payload, wait time.Duration) error
	// AcquireWrite prepares pl for wanted bytes of output.
	AcquireWrite(pl *payload.Payload, wanted int, wait time.Duration) (int, error)
	// ReleaseWrite publishes pl. A payload marked done ends the stream.
	ReleaseWrite(pl *payload.Payload, wait time.Duration) error

	DoneWrite()
	ResetDoneWrite()
	Reset()
	Abort()
	// Close aborts pending calls and frees bus memory.
	Close() error

	TotalSize() int
	FilledSize() int
	Available() int

	SetReader(holder interface{})
	Reader() interface{}
	SetWriter(holder interface{})
	Writer() interface{}
}

// Option configures a bus.
type Option func(*base)

// WithName sets bus name.
func WithName(name string) Option {
	return func(b *base) {
		b.name = name
	}
}

// WithClock sets clock used for bounded waits.
func WithClock(c clockz.Clock) Option {
	return func(b *base) {
		b.clock = c
	}
}

// WithLogger sets logger to bus.
func WithLogger(l logrus.FieldLogger) Option {
	return func(b *base) {
		b.log = l
	}
}

// base keeps the bookkeeping shared by bus implementations. Readable and
// writable are one-slot signals: a single reader and a single writer wait
// on them.
type base struct {
	name  string
	typ   Type
	clock clockz.Clock
	log   logrus.FieldLogger

	mu      sync.Mutex
	done    bool
	aborted bool

	readable chan struct{}
	writable chan struct{}

	reader interface{}
	writer interface{}
}

// init sets up the embedded base in place.
func (b *base) init(typ Type, options []Option) {
	b.typ = typ
	b.clock = clockz.RealClock
	b.readable = make(chan struct{}, 1)
	b.writable = make(chan struct{}, 1)
	for _, option := range options {
		option(b)
	}
	if b.name == "" {
		b.name = "databus-" + typ.String()
	}
	b.log = log.Component(b.log, "databus", b.name)
}

// Name returns bus name.
func (b *base) Name() string {
	return b.name
}

// Type returns bus type.
func (b *base) Type() Type {
	return b.typ
}

// SetReader records the element which reads from the bus.
func (b *base) SetReader(holder interface{}) {
	b.mu.Lock()
	b.reader = holder
	b.mu.Unlock()
}

// Reader returns the element which reads from the bus.
func (b *base) Reader() interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reader
}

// SetWriter records the element which writes to the bus.
func (b *base) SetWriter(holder interface{}) {
	b.mu.Lock()
	b.writer = holder
	b.mu.Unlock()
}

// Writer returns the element which writes to the bus.
func (b *base) Writer() interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writer
}

// DoneWrite marks the end of the stream and wakes up the reader.
func (b *base) DoneWrite() {
	b.mu.Lock()
	b.done = true
	b.mu.Unlock()
	notify(b.readable)
	b.log.Debug("done write")
}

// ResetDoneWrite clears the end of stream mark.
func (b *base) ResetDoneWrite() {
	b.mu.Lock()
	b.done = false
	b.mu.Unlock()
}

// Abort makes blocked and further calls return ErrAbort until Reset.
func (b *base) Abort() {
	b.mu.Lock()
	b.aborted = true
	b.mu.Unlock()
	notify(b.readable)
	notify(b.writable)
	b.log.Debug("aborted")
}

func (b *base) resetFlags() {
	b.done, b.aborted = false, false
	drain(b.readable)
	drain(b.writable)
}

// wait blocks on signal up to d. Must be called without the lock held.
func (b *base) wait(signal chan struct{}, d time.Duration) error {
	switch {
	case d == port.NoWait:
		return ErrTimeout
	case d < 0:
		<-signal
	default:
		select {
		case <-signal:
		case <-b.clock.After(d):
			return ErrTimeout
		}
	}
	return nil
}

func notify(signal chan struct{}) {
	select {
	case signal <- struct{}{}:
	default:
	}
}

func drain(signal chan struct{}) {
	select {
	case <-signal:
	default:
	}
}
