// Package payload defines the buffer value exchanged between ports.
//
// A payload either owns its buffer, in which case the buffer comes from the
// shared allocator and is returned there on Free, or borrows a buffer that
// belongs to someone else (an external reader, a data bus block). Borrowed
// buffers are never grown nor freed by the payload.
package payload

import (
	"errors"
	"fmt"

	"github.com/dudk/gmf/internal/pool"
)

var (
	// ErrMemoryLack is returned when a buffer cannot be grown.
	ErrMemoryLack = errors.New("payload: memory lack")
	// ErrInvalidArg is returned for non-positive sizes and nil payloads.
	ErrInvalidArg = errors.New("payload: invalid argument")
)

// Payload is a buffer with stream metadata.
type Payload struct {
	// Buf is the whole buffer, len(Buf) is its capacity for producers.
	Buf []byte
	// ValidSize is the number of meaningful bytes at the start of Buf.
	ValidSize int
	// IsDone marks the last payload of a stream.
	IsDone bool
	// PTS is a presentation timestamp in stream units.
	PTS uint64

	owned bool
}

// New returns an empty payload which owns the buffers it will allocate.
func New() *Payload {
	return &Payload{owned: true}
}

// NewWithLen returns an owned payload with a buffer of n bytes.
func NewWithLen(n int) (*Payload, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidArg, n)
	}
	p := New()
	p.Buf = pool.Alloc(n)
	return p, nil
}

// Borrow wraps external buffer without taking ownership.
func Borrow(buf []byte) *Payload {
	return &Payload{Buf: buf}
}

// Owned reports whether the payload allocated its buffer itself.
func (p *Payload) Owned() bool {
	return p.owned
}

// Len returns the buffer length.
func (p *Payload) Len() int {
	return len(p.Buf)
}

// Data returns valid bytes of the buffer.
func (p *Payload) Data() []byte {
	return p.Buf[:p.ValidSize]
}

// Realloc makes sure the buffer has at least n bytes. Valid data is kept.
func (p *Payload) Realloc(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: length %d", ErrInvalidArg, n)
	}
	if n <= len(p.Buf) {
		return nil
	}
	if !p.owned {
		return fmt.Errorf("%w: borrowed buffer of %d bytes, wanted %d", ErrMemoryLack, len(p.Buf), n)
	}
	b := pool.Alloc(n)
	copy(b, p.Buf[:p.ValidSize])
	pool.Free(p.Buf)
	p.Buf = b
	return nil
}

// ReallocAligned is Realloc with n rounded up to a multiple of align.
func (p *Payload) ReallocAligned(align, n int) error {
	if align > 1 {
		n = (n + align - 1) / align * align
	}
	return p.Realloc(n)
}

// CopyFrom copies valid data and metadata of src into p, growing p if needed.
func (p *Payload) CopyFrom(src *Payload) error {
	if src == nil {
		return ErrInvalidArg
	}
	if src.ValidSize > 0 {
		if err := p.Realloc(src.ValidSize); err != nil {
			return err
		}
	}
	p.ValidSize = copy(p.Buf, src.Data())
	p.IsDone = src.IsDone
	p.PTS = src.PTS
	return nil
}

// Attach makes p borrow buf. An owned buffer held before is freed.
func (p *Payload) Attach(buf []byte) {
	if p.owned {
		pool.Free(p.Buf)
	}
	p.Buf = buf
	p.owned = false
}

// Detach releases a borrowed buffer and returns it. Payload becomes owned
// and empty.
func (p *Payload) Detach() []byte {
	b := p.Buf
	if p.owned {
		return nil
	}
	p.Buf, p.owned = nil, true
	p.Reset()
	return b
}

// SetDone marks the payload as the last one.
func (p *Payload) SetDone() {
	p.IsDone = true
}

// CleanDone clears done mark.
func (p *Payload) CleanDone() {
	p.IsDone = false
}

// Reset drops metadata, buffer is kept.
func (p *Payload) Reset() {
	p.ValidSize, p.IsDone, p.PTS = 0, false, 0
}

// Free returns owned buffer to the allocator.
func (p *Payload) Free() {
	if p == nil {
		return
	}
	if p.owned {
		pool.Free(p.Buf)
	}
	p.Buf = nil
	p.Reset()
}

// Outstanding returns the number of allocated and not freed buffers across
// all payloads and buses. Used to verify teardown.
func Outstanding() int64 {
	return pool.Outstanding()
}

func (p *Payload) String() string {
	return fmt.Sprintf("payload{len: %d, valid: %d, done: %t, pts: %d}", len(p.Buf), p.ValidSize, p.IsDone, p.PTS)
}
