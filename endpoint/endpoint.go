// Package endpoint defines external IO attached to the ends of a pipeline.
//
// An in endpoint is wrapped by the in port of the head element, an out
// endpoint by the out port of the tail element. Endpoints are opened by the
// pipeline before jobs start and closed when the pipeline is destroyed or
// reset.
package endpoint

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/log"
	"github.com/dudk/gmf/port"
)

var (
	// ErrNotOpen is returned when IO is used before Open.
	ErrNotOpen = errors.New("endpoint: not open")
	// ErrNoURI is returned by Open when URI isn't set.
	ErrNoURI = errors.New("endpoint: uri not set")
)

// Endpoint is an external producer or consumer of a pipeline.
type Endpoint interface {
	port.IO
	Name() string
	Dir() port.Dir
	SetURI(uri string)
	URI() string
	Open() error
	Close() error
	// Reset prepares endpoint for the next run.
	Reset() error
}

// Aborter is implemented by endpoints whose blocking calls can be
// interrupted. Interrupted calls return port.ErrAbort.
type Aborter interface {
	Abort()
}

// SoundReporter is implemented by in endpoints which know the stream
// format after Open.
type SoundReporter interface {
	SoundInfo() info.Sound
}

// FileReporter is implemented by endpoints backed by a sized resource.
type FileReporter interface {
	FileInfo() info.File
}

// SoundReceiver is implemented by out endpoints which need the format of
// the stream they consume.
type SoundReceiver interface {
	SetSoundInfo(s info.Sound) error
}

// Option configures an endpoint.
type Option func(*Base)

// WithURI sets endpoint URI.
func WithURI(uri string) Option {
	return func(b *Base) {
		b.uri = uri
	}
}

// WithName sets endpoint name.
func WithName(name string) Option {
	return func(b *Base) {
		b.name = name
	}
}

// WithLogger sets logger to endpoint.
func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Base) {
		b.log = l
	}
}

// Base keeps the state common to endpoints.
type Base struct {
	name    string
	dir     port.Dir
	log     logrus.FieldLogger
	aborted atomic.Bool

	mu  sync.Mutex
	uri string
}

// NewBase returns base of an endpoint called name.
func NewBase(dir port.Dir, name string, options ...Option) *Base {
	b := &Base{
		name: name,
		dir:  dir,
	}
	for _, option := range options {
		option(b)
	}
	b.log = log.Component(b.log, "endpoint", b.name)
	return b
}

// Name returns endpoint name.
func (b *Base) Name() string {
	return b.name
}

// Dir returns data direction.
func (b *Base) Dir() port.Dir {
	return b.dir
}

// Logger returns endpoint logger.
func (b *Base) Logger() logrus.FieldLogger {
	return b.log
}

// SetURI sets URI used by the next Open.
func (b *Base) SetURI(uri string) {
	b.mu.Lock()
	b.uri = uri
	b.mu.Unlock()
}

// URI returns endpoint URI.
func (b *Base) URI() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uri
}

// Abort makes IO calls return port.ErrAbort until Reset.
func (b *Base) Abort() {
	b.aborted.Store(true)
	b.log.Debug("aborted")
}

// Aborted reports whether Abort was called.
func (b *Base) Aborted() bool {
	return b.aborted.Load()
}

// Reset clears abort mark.
func (b *Base) Reset() error {
	b.aborted.Store(false)
	return nil
}
