/*
Package pool provides size-classed byte buffers shared by payloads and data
buses.

Buffers are grouped by power-of-two capacity, so payloads of similar sizes
reuse the same backing arrays. The package keeps the number of outstanding
buffers to detect leaks in tests.
*/
package pool

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const minClass = 6 // 64 bytes

var (
	m = struct {
		sync.Mutex
		pools map[int]*sync.Pool
	}{
		pools: map[int]*sync.Pool{},
	}
	outstanding int64
)

// get returns pool for provided size class. Pools are cached internally, so
// multiple calls for same class will return the same pool instance.
func get(class int) *sync.Pool {
	m.Lock()
	defer m.Unlock()
	if p, ok := m.pools[class]; ok {
		return p
	}
	size := 1 << class
	p := &sync.Pool{
		New: func() interface{} {
			b := make([]byte, size)
			return &b
		},
	}
	m.pools[class] = p
	return p
}

func classOf(size int) int {
	if size <= 1<<minClass {
		return minClass
	}
	return bits.Len(uint(size - 1))
}

// Alloc returns a zeroed buffer of len size. Its capacity is rounded up to
// the size class. Non-positive size returns nil.
func Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	bp := get(classOf(size)).Get().(*[]byte)
	atomic.AddInt64(&outstanding, 1)
	b := (*bp)[:size]
	clear(b)
	return b
}

// Free returns buffer to its size class. Buffers which capacity is not a
// size class are ignored.
func Free(b []byte) {
	c := cap(b)
	if c == 0 || c&(c-1) != 0 || c < 1<<minClass {
		return
	}
	b = b[:c]
	atomic.AddInt64(&outstanding, -1)
	get(classOf(c)).Put(&b)
}

// Outstanding returns number of allocated and not yet freed buffers.
func Outstanding() int64 {
	return atomic.LoadInt64(&outstanding)
}

// Wipe cleans up internal cache of pools.
func Wipe() {
	m.Lock()
	defer m.Unlock()
	m.pools = map[int]*sync.Pool{}
}
