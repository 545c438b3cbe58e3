package databus

import (
	"fmt"
	"time"

	"github.com/dudk/gmf/internal/pool"
	"github.com/dudk/gmf/payload"
)

type block struct {
	buf   []byte
	valid int
	done  bool
}

// FIFO is a block bus of num blocks of size bytes. AcquireWrite and
// AcquireRead attach block buffers to payloads, so a block travels from
// the writer to the reader without a copy.
type FIFO struct {
	base

	size   int
	blocks []*block
	free   []*block
	filled []*block

	writing *block
	reading *block
}

var _ Bus = (*FIFO)(nil)

// NewFIFO returns a block bus.
func NewFIFO(num, size int, options ...Option) (*FIFO, error) {
	if num <= 0 || size <= 0 {
		return nil, fmt.Errorf("%w: fifo %dx%d", ErrInvalidArg, num, size)
	}
	f := &FIFO{size: size}
	f.init(Block, options)
	for i := 0; i < num; i++ {
		b := &block{buf: pool.Alloc(size)}
		f.blocks = append(f.blocks, b)
		f.free = append(f.free, b)
	}
	return f, nil
}

// BlockSize returns size of a single block.
func (f *FIFO) BlockSize() int {
	return f.size
}

// Read implements Bus. It copies one block.
func (f *FIFO) Read(buf []byte, wait time.Duration) (int, error) {
	b, err := f.takeFilled(wait)
	if err != nil || b == nil {
		return 0, err
	}
	n := copy(buf, b.buf[:b.valid])
	f.putFree(b)
	return n, nil
}

// Write implements Bus. Data is split into blocks.
func (f *FIFO) Write(buf []byte, wait time.Duration) (int, error) {
	n := 0
	for n < len(buf) {
		b, err := f.takeFree(wait)
		if err != nil {
			return n, err
		}
		b.valid = copy(b.buf, buf[n:])
		b.done = false
		n += b.valid
		f.putFilled(b)
	}
	return n, nil
}

// AcquireRead implements Bus. The block is attached to pl until
// ReleaseRead. A drained done stream gives an empty payload marked done.
func (f *FIFO) AcquireRead(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if pl == nil {
		return 0, ErrInvalidArg
	}
	b, err := f.takeFilled(wait)
	if err != nil {
		return 0, err
	}
	if b == nil {
		pl.ValidSize, pl.IsDone = 0, true
		return 0, nil
	}
	pl.Attach(b.buf)
	pl.ValidSize, pl.IsDone = b.valid, b.done
	f.mu.Lock()
	f.reading = b
	f.mu.Unlock()
	return b.valid, nil
}

// ReleaseRead implements Bus.
func (f *FIFO) ReleaseRead(pl *payload.Payload, wait time.Duration) error {
	f.mu.Lock()
	b := f.reading
	f.reading = nil
	f.mu.Unlock()
	if b == nil {
		return nil
	}
	if pl != nil && !pl.Owned() && len(pl.Buf) > 0 && &pl.Buf[0] == &b.buf[0] {
		pl.Detach()
	}
	f.putFree(b)
	return nil
}

// AcquireWrite implements Bus. An empty owned payload gets the block
// attached. A payload which already carries data, e.g. an input passed
// through in place, keeps its buffer and is copied on release.
func (f *FIFO) AcquireWrite(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if pl == nil || wanted > f.size {
		return 0, fmt.Errorf("%w: write of %d bytes to %d bytes blocks", ErrInvalidArg, wanted, f.size)
	}
	b, err := f.takeFree(wait)
	if err != nil {
		return 0, err
	}
	if pl.Owned() && pl.ValidSize == 0 {
		pl.Attach(b.buf)
	}
	f.mu.Lock()
	f.writing = b
	f.mu.Unlock()
	if wanted <= 0 {
		wanted = f.size
	}
	return wanted, nil
}

// ReleaseWrite implements Bus.
func (f *FIFO) ReleaseWrite(pl *payload.Payload, wait time.Duration) error {
	if pl == nil {
		return ErrInvalidArg
	}
	f.mu.Lock()
	b := f.writing
	f.writing = nil
	f.mu.Unlock()
	if b == nil {
		_, err := f.Write(pl.Data(), wait)
		if err == nil && pl.IsDone {
			f.DoneWrite()
		}
		return err
	}
	attached := !pl.Owned() && len(pl.Buf) > 0 && &pl.Buf[0] == &b.buf[0]
	if attached {
		b.valid = pl.ValidSize
	} else {
		b.valid = copy(b.buf, pl.Data())
	}
	b.done = pl.IsDone
	if attached {
		pl.Detach()
	}
	f.putFilled(b)
	if b.done {
		f.DoneWrite()
	}
	return nil
}

// Reset returns all blocks to the free list and clears done and abort
// marks.
func (f *FIFO) Reset() {
	f.mu.Lock()
	f.free = f.free[:0]
	for _, b := range f.blocks {
		b.valid, b.done = 0, false
		f.free = append(f.free, b)
	}
	f.filled = f.filled[:0]
	f.writing, f.reading = nil, nil
	f.resetFlags()
	f.mu.Unlock()
}

// Close aborts pending calls and frees blocks.
func (f *FIFO) Close() error {
	f.Abort()
	f.mu.Lock()
	for _, b := range f.blocks {
		pool.Free(b.buf)
		b.buf = nil
	}
	f.blocks, f.free, f.filled = nil, nil, nil
	f.writing, f.reading = nil, nil
	f.mu.Unlock()
	return nil
}

// TotalSize returns capacity in bytes.
func (f *FIFO) TotalSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocks) * f.size
}

// FilledSize returns number of valid bytes in published blocks.
func (f *FIFO) FilledSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.filled {
		n += b.valid
	}
	return n
}

// Available returns capacity of free blocks in bytes.
func (f *FIFO) Available() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.free) * f.size
}

// takeFilled returns the oldest published block, or nil when the stream
// is done and nothing is left.
func (f *FIFO) takeFilled(wait time.Duration) (*block, error) {
	start := f.clock.Now()
	for {
		f.mu.Lock()
		if f.aborted {
			f.mu.Unlock()
			return nil, ErrAbort
		}
		if len(f.filled) > 0 {
			b := f.filled[0]
			f.filled = f.filled[1:]
			f.mu.Unlock()
			return b, nil
		}
		done := f.done
		f.mu.Unlock()
		if done {
			return nil, nil
		}
		if err := f.wait(f.readable, f.left(start, wait)); err != nil {
			return nil, err
		}
	}
}

func (f *FIFO) takeFree(wait time.Duration) (*block, error) {
	start := f.clock.Now()
	for {
		f.mu.Lock()
		if f.aborted {
			f.mu.Unlock()
			return nil, ErrAbort
		}
		if f.done {
			f.mu.Unlock()
			return nil, ErrDone
		}
		if len(f.free) > 0 {
			b := f.free[0]
			f.free = f.free[1:]
			f.mu.Unlock()
			return b, nil
		}
		f.mu.Unlock()
		if err := f.wait(f.writable, f.left(start, wait)); err != nil {
			return nil, err
		}
	}
}

func (f *FIFO) putFree(b *block) {
	f.mu.Lock()
	b.valid, b.done = 0, false
	if b.buf != nil {
		f.free = append(f.free, b)
	}
	f.mu.Unlock()
	notify(f.writable)
}

func (f *FIFO) putFilled(b *block) {
	f.mu.Lock()
	if b.buf != nil {
		f.filled = append(f.filled, b)
	}
	f.mu.Unlock()
	notify(f.readable)
}
