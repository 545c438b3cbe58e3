// Package cache re-blocks a byte stream into fixed size frames.
//
// A cache holds at most one loaded payload and a staging buffer of one frame.
// Acquire returns a view of up to one frame: directly into the loaded payload
// when possible, or assembled in the staging buffer from a previous remainder
// and freshly loaded bytes. The loaded payload must stay valid until the
// cache is ready for the next load.
package cache

import (
	"errors"
	"fmt"

	"github.com/dudk/gmf/internal/pool"
	"github.com/dudk/gmf/payload"
)

var (
	// ErrNotReady is returned by Load while loaded data is not consumed.
	ErrNotReady = errors.New("cache: not ready for load")
	// ErrInvalidArg is returned for sizes outside of the frame.
	ErrInvalidArg = errors.New("cache: invalid argument")
)

// Cache is a frame staging buffer. It is not safe for concurrent use.
type Cache struct {
	frame  int
	stage  []byte
	cached int

	load   *payload.Payload
	offset int

	view    payload.Payload
	served  int
	partial bool
	staged  bool
	active  bool
	// ended is set once the last loaded payload was done and consumed.
	ended bool
}

// New returns a cache for frames of frameSize bytes.
func New(frameSize int) (*Cache, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("%w: frame size %d", ErrInvalidArg, frameSize)
	}
	return &Cache{
		frame: frameSize,
		stage: pool.Alloc(frameSize),
	}, nil
}

// FrameSize returns configured frame size.
func (c *Cache) FrameSize() int {
	return c.frame
}

// ReadyForLoad reports whether loaded data is fully consumed.
func (c *Cache) ReadyForLoad() bool {
	return c.load == nil
}

// Load appends payload to the cache. The cache borrows it until
// ReadyForLoad returns true again.
func (c *Cache) Load(pl *payload.Payload) error {
	if pl == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidArg)
	}
	if c.load != nil {
		return ErrNotReady
	}
	c.load, c.offset = pl, 0
	c.ended = false
	return nil
}

// Acquire returns a view of up to size bytes, size must not exceed the frame
// size. A view shorter than size means either more input is needed, or the
// stream ended, in which case IsDone is set.
func (c *Cache) Acquire(size int) (*payload.Payload, error) {
	if size <= 0 || size > c.frame {
		return nil, fmt.Errorf("%w: acquire %d of frame %d", ErrInvalidArg, size, c.frame)
	}
	remaining := c.remaining()
	done := c.ended || c.load != nil && c.load.IsDone
	c.view.Reset()
	c.partial, c.staged, c.active = false, false, true
	c.served = 0

	switch {
	case c.cached >= size:
		c.view.Attach(c.stage[:size])
		c.view.ValidSize = size
		c.served = size
		c.staged = true
	case c.cached == 0 && remaining >= size:
		c.view.Attach(c.load.Buf[c.offset : c.offset+size])
		c.view.ValidSize = size
		c.offset += size
	case c.cached+remaining >= size:
		n := copy(c.stage[c.cached:size], c.load.Buf[c.offset:])
		c.offset += n
		c.cached += n
		c.view.Attach(c.stage[:size])
		c.view.ValidSize = size
		c.served = size
		c.staged = true
	default:
		if remaining > 0 {
			copy(c.stage[c.cached:], c.load.Buf[c.offset:c.offset+remaining])
			c.offset += remaining
			c.cached += remaining
		}
		c.view.Attach(c.stage[:c.cached])
		c.view.ValidSize = c.cached
		c.served = c.cached
		c.staged = true
		c.partial = !done
	}
	if c.load != nil {
		c.view.PTS = c.load.PTS
		if c.offset >= c.load.ValidSize {
			c.ended = done
			c.load = nil
		}
	}
	c.view.IsDone = c.ended && c.cached <= c.view.ValidSize
	return &c.view, nil
}

// Release marks the last view consumed. A short view of an unfinished
// stream stays cached and is extended by the next load.
func (c *Cache) Release(pl *payload.Payload) error {
	if !c.active || pl != &c.view {
		return fmt.Errorf("%w: release of unknown view", ErrInvalidArg)
	}
	c.active = false
	if c.staged && !c.partial {
		// keep bytes staged beyond the view for the next acquire
		c.cached = copy(c.stage, c.stage[c.served:c.cached])
	}
	c.view.Detach()
	return nil
}

// CachedSize returns number of bytes held and not delivered yet.
func (c *Cache) CachedSize() int {
	return c.cached + c.remaining()
}

// Reset drops all cached data.
func (c *Cache) Reset() {
	c.load, c.offset, c.cached, c.served = nil, 0, 0, 0
	c.active, c.partial, c.staged, c.ended = false, false, false, false
	c.view.Detach()
}

// Close frees staging buffer.
func (c *Cache) Close() {
	c.Reset()
	pool.Free(c.stage)
	c.stage = nil
}

func (c *Cache) remaining() int {
	if c.load == nil {
		return 0
	}
	return c.load.ValidSize - c.offset
}
