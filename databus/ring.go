package databus

import (
	"errors"
	"fmt"
	"time"

	"github.com/dudk/gmf/internal/pool"
	"github.com/dudk/gmf/payload"
)

// RingBuffer is a byte bus. Data is copied in on write and out on read.
type RingBuffer struct {
	base

	buf   []byte
	head  int
	count int
}

var _ Bus = (*RingBuffer)(nil)

// NewRingBuffer returns a ring buffer of num*size bytes.
func NewRingBuffer(num, size int, options ...Option) (*RingBuffer, error) {
	if num <= 0 || size <= 0 {
		return nil, fmt.Errorf("%w: ring buffer %dx%d", ErrInvalidArg, num, size)
	}
	r := &RingBuffer{buf: pool.Alloc(num * size)}
	r.init(Byte, options)
	return r, nil
}

// Read implements Bus. It blocks until buf is full, the stream is done or
// wait expires. Bytes read before the wait expired are returned without
// error.
func (r *RingBuffer) Read(buf []byte, wait time.Duration) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	start := r.clock.Now()
	n := 0
	for {
		r.mu.Lock()
		if r.aborted {
			r.mu.Unlock()
			return n, ErrAbort
		}
		k := r.pop(buf[n:])
		drained := r.done && r.count == 0
		r.mu.Unlock()
		if k > 0 {
			notify(r.writable)
		}
		n += k
		if n == len(buf) || drained {
			return n, nil
		}
		if err := r.wait(r.readable, r.left(start, wait)); err != nil {
			if n > 0 && errors.Is(err, ErrTimeout) {
				return n, nil
			}
			return n, err
		}
	}
}

// Write implements Bus. It blocks until all of buf is written or wait
// expires.
func (r *RingBuffer) Write(buf []byte, wait time.Duration) (int, error) {
	start := r.clock.Now()
	n := 0
	for n < len(buf) {
		r.mu.Lock()
		if r.aborted {
			r.mu.Unlock()
			return n, ErrAbort
		}
		if r.done {
			r.mu.Unlock()
			return n, ErrDone
		}
		k := r.push(buf[n:])
		r.mu.Unlock()
		if k > 0 {
			notify(r.readable)
		}
		n += k
		if n == len(buf) {
			break
		}
		if err := r.wait(r.writable, r.left(start, wait)); err != nil {
			return n, err
		}
	}
	return n, nil
}

// AcquireRead implements Bus.
func (r *RingBuffer) AcquireRead(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if pl == nil || wanted <= 0 {
		return 0, ErrInvalidArg
	}
	if err := pl.Realloc(wanted); err != nil {
		return 0, err
	}
	n, err := r.Read(pl.Buf[:wanted], wait)
	pl.ValidSize = n
	r.mu.Lock()
	pl.IsDone = r.done && r.count == 0
	r.mu.Unlock()
	return n, err
}

// ReleaseRead implements Bus. Data was already copied out.
func (r *RingBuffer) ReleaseRead(pl *payload.Payload, wait time.Duration) error {
	return nil
}

// AcquireWrite implements Bus.
func (r *RingBuffer) AcquireWrite(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if pl == nil || wanted <= 0 {
		return 0, ErrInvalidArg
	}
	r.mu.Lock()
	aborted := r.aborted
	r.mu.Unlock()
	if aborted {
		return 0, ErrAbort
	}
	if err := pl.Realloc(wanted); err != nil {
		return 0, err
	}
	return wanted, nil
}

// ReleaseWrite implements Bus.
func (r *RingBuffer) ReleaseWrite(pl *payload.Payload, wait time.Duration) error {
	if pl == nil {
		return ErrInvalidArg
	}
	if _, err := r.Write(pl.Data(), wait); err != nil {
		return err
	}
	if pl.IsDone {
		r.DoneWrite()
	}
	return nil
}

// Reset drops buffered data and clears done and abort marks.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	if r.buf == nil {
		r.mu.Unlock()
		return
	}
	r.head, r.count = 0, 0
	r.resetFlags()
	r.mu.Unlock()
}

// Close aborts pending calls and frees the buffer.
func (r *RingBuffer) Close() error {
	r.Abort()
	r.mu.Lock()
	pool.Free(r.buf)
	r.buf, r.head, r.count = nil, 0, 0
	r.mu.Unlock()
	return nil
}

// TotalSize returns buffer size in bytes.
func (r *RingBuffer) TotalSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// FilledSize returns number of buffered bytes.
func (r *RingBuffer) FilledSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Available returns number of bytes that can be written without blocking.
func (r *RingBuffer) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.count
}

// pop copies buffered bytes to p. Must be called with the lock held.
func (r *RingBuffer) pop(p []byte) int {
	n := 0
	for n < len(p) && r.count > 0 {
		end := r.head + r.count
		if end > len(r.buf) {
			end = len(r.buf)
		}
		k := copy(p[n:], r.buf[r.head:end])
		r.head = (r.head + k) % len(r.buf)
		r.count -= k
		n += k
	}
	if r.count == 0 {
		r.head = 0
	}
	return n
}

// push copies p into free space. Must be called with the lock held.
func (r *RingBuffer) push(p []byte) int {
	n := 0
	for n < len(p) && r.count < len(r.buf) {
		tail := (r.head + r.count) % len(r.buf)
		end := len(r.buf)
		if tail < r.head {
			end = r.head
		}
		k := copy(r.buf[tail:end], p[n:])
		r.count += k
		n += k
	}
	return n
}

// left returns remaining wait since start. Negative waits never expire.
func (b *base) left(start time.Time, wait time.Duration) time.Duration {
	if wait <= 0 {
		return wait
	}
	left := wait - b.clock.Since(start)
	if left <= 0 {
		return 0
	}
	return left
}
