// Package mock provides test doubles for pipeline components and allows to
// execute integration tests.
package mock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/endpoint"
	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/payload"
	"github.com/dudk/gmf/port"
)

// Names of mocked components.
const (
	SourceName  = "mock_source"
	SinkName    = "mock_sink"
	ElementName = "mock"
)

// Source mocks an in endpoint. It produces Limit bytes of a ramp, or of
// Value when it's set.
type Source struct {
	*endpoint.Base
	counter
	Hooks

	Limit    int
	Value    byte
	Interval time.Duration
	// Block makes the source wait for abort after Limit bytes instead of
	// ending the stream.
	Block bool
	// Sound is reported after open when valid.
	Sound       info.Sound
	ErrorOnCall error

	abortMu sync.Mutex
	abort   chan struct{}
}

var (
	_ endpoint.Endpoint      = (*Source)(nil)
	_ endpoint.Aborter       = (*Source)(nil)
	_ endpoint.SoundReporter = (*Source)(nil)
)

// NewSource returns source of limit bytes.
func NewSource(limit int, options ...endpoint.Option) *Source {
	return &Source{
		Base:  endpoint.NewBase(port.In, SourceName, options...),
		Limit: limit,
		abort: make(chan struct{}),
	}
}

// Open implements endpoint.Endpoint.
func (m *Source) Open() error {
	m.Opened = true
	return m.ErrorOnOpen
}

// Acquire fills pl with up to wanted bytes.
func (m *Source) Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if m.ErrorOnCall != nil {
		return 0, m.ErrorOnCall
	}
	if m.Aborted() {
		return 0, port.ErrAbort
	}
	abort := m.aborted()
	if m.Interval > 0 {
		select {
		case <-time.After(m.Interval):
		case <-abort:
			return 0, port.ErrAbort
		}
	}
	_, produced := m.Count()
	left := m.Limit - produced
	if left <= 0 && m.Block {
		<-abort
		return 0, port.ErrAbort
	}
	n := max(min(wanted, left), 0)
	if n > 0 {
		if err := pl.Realloc(n); err != nil {
			return 0, err
		}
	}
	for i := 0; i < n; i++ {
		if m.Value != 0 {
			pl.Buf[i] = m.Value
		} else {
			pl.Buf[i] = byte(produced + i)
		}
	}
	pl.ValidSize = n
	pl.IsDone = !m.Block && produced+n >= m.Limit
	m.advance(n)
	return n, nil
}

// Release implements port.IO.
func (m *Source) Release(pl *payload.Payload, wait time.Duration) error {
	return nil
}

// SoundInfo implements endpoint.SoundReporter.
func (m *Source) SoundInfo() info.Sound {
	return m.Sound
}

// Abort interrupts blocked Acquire.
func (m *Source) Abort() {
	m.Base.Abort()
	m.Interrupted = true
	m.abortMu.Lock()
	defer m.abortMu.Unlock()
	select {
	case <-m.abort:
	default:
		close(m.abort)
	}
}

func (m *Source) aborted() chan struct{} {
	m.abortMu.Lock()
	defer m.abortMu.Unlock()
	return m.abort
}

// Reset implements endpoint.Endpoint.
func (m *Source) Reset() error {
	m.Resetted = true
	m.reset()
	m.abortMu.Lock()
	m.abort = make(chan struct{})
	m.abortMu.Unlock()
	return errors.Join(m.Base.Reset(), m.ErrorOnReset)
}

// Close implements endpoint.Endpoint.
func (m *Source) Close() error {
	m.Closed = true
	return m.ErrorOnClose
}

// Sink mocks an out endpoint. It keeps received data unless Discard is
// set.
type Sink struct {
	*endpoint.Base
	counter
	Hooks

	Discard     bool
	ErrorOnCall error

	mu     sync.Mutex
	buffer []byte
	sound  info.Sound
	done   bool
}

var (
	_ endpoint.Endpoint      = (*Sink)(nil)
	_ endpoint.Aborter       = (*Sink)(nil)
	_ endpoint.SoundReceiver = (*Sink)(nil)
)

// NewSink returns sink.
func NewSink(options ...endpoint.Option) *Sink {
	return &Sink{Base: endpoint.NewBase(port.Out, SinkName, options...)}
}

// Open implements endpoint.Endpoint.
func (m *Sink) Open() error {
	m.Opened = true
	return m.ErrorOnOpen
}

// Acquire confirms wanted size.
func (m *Sink) Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if m.ErrorOnCall != nil {
		return 0, m.ErrorOnCall
	}
	if m.Aborted() {
		return 0, port.ErrAbort
	}
	return wanted, nil
}

// Release keeps valid data of pl.
func (m *Sink) Release(pl *payload.Payload, wait time.Duration) error {
	if m.Aborted() {
		return port.ErrAbort
	}
	m.mu.Lock()
	if !m.Discard {
		m.buffer = append(m.buffer, pl.Data()...)
	}
	m.done = m.done || pl.IsDone
	m.mu.Unlock()
	m.advance(pl.ValidSize)
	return nil
}

// SetSoundInfo implements endpoint.SoundReceiver.
func (m *Sink) SetSoundInfo(s info.Sound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sound = s
	return nil
}

// Sound returns received stream info.
func (m *Sink) Sound() info.Sound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sound
}

// Buffer returns received data.
func (m *Sink) Buffer() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffer
}

// Done reports whether the last payload was received.
func (m *Sink) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Abort implements endpoint.Aborter.
func (m *Sink) Abort() {
	m.Base.Abort()
	m.Interrupted = true
}

// Reset implements endpoint.Endpoint.
func (m *Sink) Reset() error {
	m.Resetted = true
	m.mu.Lock()
	m.buffer, m.done = nil, false
	m.mu.Unlock()
	m.reset()
	return errors.Join(m.Base.Reset(), m.ErrorOnReset)
}

// Close implements endpoint.Endpoint.
func (m *Sink) Close() error {
	m.Closed = true
	return m.ErrorOnClose
}

// Element mocks an element. It copies input to output and counts
// processed payloads.
type Element struct {
	*element.Audio
	counter
	Hooks

	ErrorOnCall error
}

var (
	_ element.Element   = (*Element)(nil)
	_ element.Resetter  = (*Element)(nil)
	_ element.Destroyer = (*Element)(nil)
)

// NewElement returns element called name. Dependency makes it wait for
// stream info to open.
func NewElement(name string, dependency bool) *Element {
	if name == "" {
		name = ElementName
	}
	return &Element{
		Audio: element.NewAudio(element.Config{
			Name:       name,
			Dependency: dependency,
			Caps:       []element.Cap{element.CapAudioCopy},
		}),
	}
}

// Open reports received stream info downstream.
func (m *Element) Open() error {
	m.Opened = true
	if m.ErrorOnOpen != nil {
		return m.ErrorOnOpen
	}
	if s := m.SourceSound(); s.Valid() {
		return m.UpdateSound(s)
	}
	return nil
}

// Process copies one input payload.
func (m *Element) Process() (job.Result, error) {
	if m.ErrorOnCall != nil {
		return job.Fail, m.ErrorOnCall
	}
	in, out := m.In(), m.Out()
	if in == nil || out == nil {
		return job.Fail, fmt.Errorf("%w: %s needs in and out ports", element.ErrInvalidArg, m.Name())
	}
	inLoad, _, err := in.AcquireIn(nil, m.InSize(), in.Wait())
	if err != nil {
		return job.Fail, err
	}
	outLoad, _, err := out.AcquireOut(nil, max(inLoad.ValidSize, 1), out.Wait())
	if err != nil {
		in.ReleaseIn(inLoad, in.Wait())
		return job.Fail, err
	}
	if outLoad != inLoad {
		if err := outLoad.CopyFrom(inLoad); err != nil {
			in.ReleaseIn(inLoad, in.Wait())
			return job.Fail, err
		}
	}
	m.advance(inLoad.ValidSize)
	done := inLoad.IsDone
	if err := errors.Join(in.ReleaseIn(inLoad, in.Wait()), out.ReleaseOut(outLoad, out.Wait())); err != nil {
		return job.Fail, err
	}
	if done {
		return job.Done, nil
	}
	return job.OK, nil
}

// Close implements element.Element.
func (m *Element) Close() error {
	m.Closed = true
	return m.ErrorOnClose
}

// Reset implements element.Resetter.
func (m *Element) Reset() error {
	m.Resetted = true
	m.reset()
	return m.ErrorOnReset
}

// Destroy implements element.Destroyer.
func (m *Element) Destroy() error {
	m.Destroyed = true
	return nil
}

// Hooks allows to mock components hooks.
type Hooks struct {
	Opened    bool
	Closed    bool
	Resetted  bool
	Destroyed bool
	Interrupted  bool

	ErrorOnOpen  error
	ErrorOnClose error
	ErrorOnReset error
}

// counter counts messages and bytes.
type counter struct {
	mu       sync.Mutex
	messages int
	bytes    int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.mu.Lock()
	c.messages++
	c.bytes += size
	c.mu.Unlock()
}

func (c *counter) reset() {
	c.mu.Lock()
	c.messages, c.bytes = 0, 0
	c.mu.Unlock()
}

// Count returns messages and bytes metrics.
func (c *counter) Count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages, c.bytes
}
