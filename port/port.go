// Package port implements the acquire/release engine which moves payloads
// between elements and external IO.
//
// A port either wraps an external IO or is linked to the opposite port of a
// neighbour element. Linked ports exchange payloads by reference: the out
// port of the producer stores the payload it hands out in the in port of the
// consumer, and the consumer reads it without a copy.
//
// Two zero-copy paths exist on top of the plain hand-off:
//
//   - offer: when an in port of a shared element acquires an owned payload,
//     the payload is offered to the out port of the same element. If the
//     element then asks for an output of exactly the valid input size, the
//     offered payload is reused and processing happens in place.
//   - bypass: an element passes its own input payload to AcquireAlignedOut.
//     The downstream in port then keeps a reference to the port which
//     acquired the payload from IO, and the IO release happens only when
//     both sides released it.
package port

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudk/gmf/log"
	"github.com/dudk/gmf/payload"
)

// Dir is a data direction of a port.
type Dir int

// Directions.
const (
	In Dir = iota
	Out
)

func (d Dir) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Type tells how data is sized on a port.
type Type int

const (
	// Byte ports carry a stream, buffers are resized to the wanted size.
	Byte Type = iota
	// Block ports carry whole blocks provided by IO as is.
	Block
)

func (t Type) String() string {
	if t == Block {
		return "block"
	}
	return "byte"
}

var (
	// ErrDirection is returned when in operation is called on out port
	// or vice versa.
	ErrDirection = errors.New("port: wrong direction")
	// ErrNoPayload is returned when a linked port has nothing to read or
	// release.
	ErrNoPayload = errors.New("port: no payload")
	// ErrInvalidArg is returned for nil ports and bad links.
	ErrInvalidArg = errors.New("port: invalid argument")
)

var defaultLogger = log.GetLogger()

// Port is a directional endpoint of an element.
type Port struct {
	name     string
	dir      Dir
	typ      Type
	io       IO
	closer   func() error
	wait     time.Duration
	dataSize int
	align    int
	shared   bool

	// payload is the buffer currently held by this port.
	payload *payload.Payload
	// self is allocated lazily and owned by the port.
	self *payload.Payload
	// offered is an input payload proposed for in-place output.
	offered *payload.Payload

	// refPort is the port which must be released when this one is.
	refPort  *Port
	refCount int

	// peer is the linked port of the neighbour element.
	peer *Port
	// sibling is the opposite port of the same element.
	sibling *Port

	acquired int
	log      logrus.FieldLogger
}

// Option configures a port.
type Option func(*Port)

// WithName sets name used in logs.
func WithName(name string) Option {
	return func(p *Port) {
		p.name = name
	}
}

// WithWait sets the wait passed to IO by the owning element.
func WithWait(d time.Duration) Option {
	return func(p *Port) {
		p.wait = d
	}
}

// WithDataSize sets the preferred acquire size.
func WithDataSize(n int) Option {
	return func(p *Port) {
		p.dataSize = n
	}
}

// WithAlign sets the size alignment of out buffers.
func WithAlign(n int) Option {
	return func(p *Port) {
		p.align = n
	}
}

// WithShared enables or disables in-place offers of input payloads.
func WithShared(shared bool) Option {
	return func(p *Port) {
		p.shared = shared
	}
}

// WithCloser sets function called when an out port is closed. Typically it
// tears down the IO behind the port.
func WithCloser(fn func() error) Option {
	return func(p *Port) {
		p.closer = fn
	}
}

// WithLogger sets logger to port.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Port) {
		p.log = l
	}
}

// New returns a port. Nil io means the port is going to be linked to
// another element.
func New(dir Dir, typ Type, io IO, options ...Option) *Port {
	p := &Port{
		dir:    dir,
		typ:    typ,
		io:     io,
		wait:   WaitForever,
		shared: true,
		log:    defaultLogger,
	}
	for _, option := range options {
		option(p)
	}
	if p.name == "" {
		p.name = fmt.Sprintf("%s-%s", typ, dir)
	}
	p.log = p.log.WithField("port", p.name)
	return p
}

// NewIn returns an in port.
func NewIn(typ Type, io IO, options ...Option) *Port {
	return New(In, typ, io, options...)
}

// NewOut returns an out port.
func NewOut(typ Type, io IO, options ...Option) *Port {
	return New(Out, typ, io, options...)
}

// Link connects out port of a producer with in port of a consumer.
func Link(out, in *Port) error {
	if out == nil || in == nil {
		return ErrInvalidArg
	}
	if out.dir != Out || in.dir != In {
		return fmt.Errorf("%w: link %s to %s", ErrDirection, out.dir, in.dir)
	}
	out.peer, in.peer = in, out
	return nil
}

// Unlink disconnects p from its peer.
func Unlink(p *Port) {
	if p == nil || p.peer == nil {
		return
	}
	p.peer.peer = nil
	p.peer = nil
}

// Pair binds in and out ports of the same element. Either may be nil, in
// which case the other one is unpaired.
func Pair(in, out *Port) error {
	if (in != nil && in.dir != In) || (out != nil && out.dir != Out) {
		return ErrDirection
	}
	if in != nil {
		in.sibling = out
	}
	if out != nil {
		out.sibling = in
	}
	return nil
}

// Name returns port name.
func (p *Port) Name() string {
	return p.name
}

// Dir returns port direction.
func (p *Port) Dir() Dir {
	return p.dir
}

// Type returns port type.
func (p *Port) Type() Type {
	return p.typ
}

// IO returns external IO or nil for linked ports.
func (p *Port) IO() IO {
	return p.io
}

// Wait returns configured wait.
func (p *Port) Wait() time.Duration {
	return p.wait
}

// SetWait changes configured wait.
func (p *Port) SetWait(d time.Duration) {
	p.wait = d
}

// DataSize returns preferred acquire size, 0 if not set.
func (p *Port) DataSize() int {
	return p.dataSize
}

// Shared reports whether in-place offers are enabled.
func (p *Port) Shared() bool {
	return p.shared
}

// EnableShare switches in-place offers.
func (p *Port) EnableShare(enable bool) {
	p.shared = enable
}

// Peer returns linked port of the neighbour element.
func (p *Port) Peer() *Port {
	return p.peer
}

// Linked reports whether the port is linked to a neighbour element.
func (p *Port) Linked() bool {
	return p.peer != nil
}

// Payload returns held payload.
func (p *Port) Payload() *payload.Payload {
	return p.payload
}

// SetPayload replaces held payload.
func (p *Port) SetPayload(pl *payload.Payload) {
	p.payload = pl
}

// Pending reports whether a linked in port holds a payload not released
// by its consumer yet.
func (p *Port) Pending() bool {
	return p.peer != nil && p.payload != nil
}

// Busy reports whether any linked in port downstream of p still holds a
// payload. In-place offers may pass a buffer several hops down the chain,
// so a producer must not refill its buffers until the whole chain drained.
func (p *Port) Busy() bool {
	for o := p; o != nil && o.peer != nil; {
		in := o.peer
		if in.payload != nil {
			return true
		}
		o = in.sibling
	}
	return false
}

// Sibling returns the opposite port of the same element.
func (p *Port) Sibling() *Port {
	return p.sibling
}

// RefCount returns number of outstanding references.
func (p *Port) RefCount() int {
	return p.refCount
}

// Acquired returns the size returned by the last successful acquire.
func (p *Port) Acquired() int {
	return p.acquired
}

// AcquireIn returns a payload with input data. If load is nil, the port
// uses its own payload. The number of valid bytes is returned along.
func (p *Port) AcquireIn(load *payload.Payload, wanted int, wait time.Duration) (*payload.Payload, int, error) {
	if p == nil {
		return nil, 0, ErrInvalidArg
	}
	if p.dir != In {
		p.log.Errorf("acquire in called on %s port", p.dir)
		return nil, 0, fmt.Errorf("%w: acquire in on %s port", ErrDirection, p.dir)
	}
	if p.peer != nil {
		if p.payload == nil {
			return nil, 0, fmt.Errorf("%w: %s", ErrNoPayload, p.name)
		}
		pl := p.payload
		p.offer(pl)
		p.acquired = pl.ValidSize
		return pl, pl.ValidSize, nil
	}
	if p.io == nil {
		return nil, 0, fmt.Errorf("%w: %s has neither io nor peer", ErrFail, p.name)
	}
	if load == nil {
		if p.self == nil {
			p.self = payload.New()
		}
		load = p.self
	}
	if p.typ == Byte {
		if err := load.Realloc(wanted); err != nil {
			return nil, 0, err
		}
	}
	p.payload = load
	if p.typ != Block {
		p.offer(load)
	}
	n, err := p.io.Acquire(load, wanted, wait)
	if err != nil {
		return load, n, ioError(err)
	}
	p.refCount = 1
	p.acquired = n
	return load, n, nil
}

// ReleaseIn gives back a payload obtained with AcquireIn. The IO release
// happens once all references taken by downstream bypasses are released.
func (p *Port) ReleaseIn(load *payload.Payload, wait time.Duration) error {
	if p == nil {
		return ErrInvalidArg
	}
	if p.dir != In {
		p.log.Errorf("release in called on %s port", p.dir)
		return fmt.Errorf("%w: release in on %s port", ErrDirection, p.dir)
	}
	if p.peer != nil {
		var err error
		if p.refPort != nil {
			err = p.refPort.decRef(wait)
			p.refPort = nil
		}
		p.payload = nil
		return err
	}
	if load != nil && p.payload == nil {
		p.payload = load
	}
	return p.decRef(wait)
}

// AcquireOut is AcquireAlignedOut with the port alignment.
func (p *Port) AcquireOut(load *payload.Payload, wanted int, wait time.Duration) (*payload.Payload, int, error) {
	if p == nil {
		return nil, 0, ErrInvalidArg
	}
	return p.AcquireAlignedOut(load, p.align, wanted, wait)
}

// AcquireAlignedOut returns a payload for output data of wanted bytes with
// buffer size aligned to align. If load is the current input payload of
// the same element, the input buffer is reused as output (bypass) as long
// as it is large enough.
func (p *Port) AcquireAlignedOut(load *payload.Payload, align, wanted int, wait time.Duration) (*payload.Payload, int, error) {
	if p == nil {
		return nil, 0, ErrInvalidArg
	}
	if p.dir != Out {
		p.log.Errorf("acquire out called on %s port", p.dir)
		return nil, 0, fmt.Errorf("%w: acquire out on %s port", ErrDirection, p.dir)
	}
	bypass := load != nil && p.sibling != nil && load == p.sibling.payload
	if bypass {
		if wanted > load.Len() {
			p.log.Errorf("bypass wants %d bytes, input buffer has %d", wanted, load.Len())
			return nil, 0, fmt.Errorf("%w: bypass wants %d bytes of %d", ErrFail, wanted, load.Len())
		}
		p.offered = nil
	}
	if p.peer != nil {
		next := p.peer
		if load == nil {
			load = p.takeOffer(wanted)
		}
		if !bypass {
			if err := load.ReallocAligned(align, wanted); err != nil {
				return nil, 0, err
			}
		}
		if next.payload == nil {
			next.payload = load
			if bypass {
				ref := p.sibling.refPort
				if ref == nil {
					ref = p.sibling
				}
				next.refPort = ref
				ref.refCount++
			}
		}
		p.payload = load
		p.acquired = wanted
		return load, wanted, nil
	}
	if p.io == nil {
		return nil, 0, fmt.Errorf("%w: %s has neither io nor peer", ErrFail, p.name)
	}
	if load == nil {
		load = p.takeOffer(wanted)
	}
	p.offered = nil
	if p.typ == Byte && !bypass {
		if err := load.ReallocAligned(align, wanted); err != nil {
			return nil, 0, err
		}
	}
	p.payload = load
	n, err := p.io.Acquire(load, wanted, wait)
	if err != nil {
		return load, n, ioError(err)
	}
	p.acquired = n
	return load, n, nil
}

// ReleaseOut publishes output payload. For linked ports the payload already
// sits in the downstream in port unless that one held its own buffer, in
// which case data is copied.
func (p *Port) ReleaseOut(load *payload.Payload, wait time.Duration) error {
	if p == nil {
		return ErrInvalidArg
	}
	if p.dir != Out {
		p.log.Errorf("release out called on %s port", p.dir)
		return fmt.Errorf("%w: release out on %s port", ErrDirection, p.dir)
	}
	if load == nil {
		load = p.payload
	}
	if p.peer != nil {
		next := p.peer
		var err error
		if load != nil && next.payload != nil && next.payload != load {
			err = next.payload.CopyFrom(load)
		}
		p.payload = nil
		return err
	}
	if p.io == nil {
		return fmt.Errorf("%w: %s has neither io nor peer", ErrFail, p.name)
	}
	if load == nil {
		return fmt.Errorf("%w: %s", ErrNoPayload, p.name)
	}
	return ioError(p.io.Release(load, wait))
}

// Reset drops held references, the own payload is kept for reuse.
func (p *Port) Reset() {
	p.payload, p.offered, p.refPort = nil, nil, nil
	p.refCount, p.acquired = 0, 0
	if p.self != nil {
		p.self.Reset()
	}
}

// Close resets the port, frees its own payload and runs the closer of out
// ports.
func (p *Port) Close() error {
	if p == nil {
		return nil
	}
	p.Reset()
	p.self.Free()
	p.self = nil
	if p.dir == Out && p.closer != nil {
		return p.closer()
	}
	return nil
}

// offer proposes input payload as output buffer of the same element. The
// last element of a chain has no linked sibling with a downstream consumer
// and never gets offers from a pipeline.
func (p *Port) offer(pl *payload.Payload) {
	if !p.shared || p.sibling == nil || !pl.Owned() {
		return
	}
	p.sibling.offered = pl
}

// takeOffer returns the offered input payload if it fits exactly, own
// payload otherwise.
func (p *Port) takeOffer(wanted int) *payload.Payload {
	pl := p.offered
	p.offered = nil
	if pl != nil && pl.ValidSize == wanted && wanted > 0 {
		return pl
	}
	if p.self == nil {
		p.self = payload.New()
	}
	return p.self
}

func (p *Port) decRef(wait time.Duration) error {
	if p.refCount <= 0 {
		return nil
	}
	p.refCount--
	if p.refCount > 0 {
		return nil
	}
	if p.io == nil || p.payload == nil {
		return nil
	}
	return ioError(p.io.Release(p.payload, wait))
}

func (p *Port) String() string {
	return fmt.Sprintf("%s[%s %s refs: %d linked: %t]", p.name, p.typ, p.dir, p.refCount, p.peer != nil)
}
