package proctrace

import (
	"sync"
)

// maxPooledBuffer is the largest buffer capacity that is returned to the pool.
// Larger buffers (huge environments) are left to the garbage collector.
const maxPooledBuffer = 1 << 20

var bufferPool = sync.Pool{
	New: func() interface{} {
		return &buffer{}
	},
}

// releaser is an owned resource that an arena gives back when it is released.
type releaser interface {
	Release()
}

// buffer is a byte slice borrowed from bufferPool. It must be released exactly
// once, after which the slice must not be touched.
type buffer struct {
	b []byte
}

var _ releaser = &buffer{}

// getBuffer borrows a buffer of length size from the pool.
func getBuffer(size int) *buffer {
	buf := bufferPool.Get().(*buffer)
	if cap(buf.b) < size {
		buf.b = make([]byte, size)
	}
	buf.b = buf.b[:size]
	return buf
}

// grow doubles the length of the buffer, keeping its contents.
func (buf *buffer) grow() {
	next := make([]byte, 2*len(buf.b))
	copy(next, buf.b)
	buf.b = next
}

// Release returns the buffer to the pool.
func (buf *buffer) Release() {
	if cap(buf.b) > maxPooledBuffer {
		buf.b = nil
	}
	clear(buf.b[:cap(buf.b)])
	buf.b = buf.b[:0]
	bufferPool.Put(buf)
}

// arena owns every intermediate buffer created while building one event. All
// failure paths of a build end in a single call to Release, which gives every
// registered item back exactly once.
//
// An arena is used for exactly one build and is not safe for concurrent use.
type arena struct {
	items    []releaser
	released bool
}

// newArena returns an empty arena.
func newArena() *arena {
	return &arena{
		items: make([]releaser, 0, 8),
	}
}

// Add registers r with the arena. If the arena has already been released, r is
// released immediately and an error is returned, so the caller never has to
// clean up r itself.
func (a *arena) Add(r releaser) error {
	if a.released {
		r.Release()
		return errArenaReleased
	}
	a.items = append(a.items, r)
	return nil
}

// Buffer borrows a pooled buffer of length size and registers it with the
// arena.
func (a *arena) Buffer(size int) (*buffer, error) {
	buf := getBuffer(size)
	err := a.Add(buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Len returns the number of items currently registered.
func (a *arena) Len() int {
	return len(a.items)
}

// Release releases every registered item in registration order. Calling
// Release a second time returns an error and releases nothing.
func (a *arena) Release() error {
	if a.released {
		return errArenaReleased
	}
	a.released = true

	for i, r := range a.items {
		r.Release()
		a.items[i] = nil
	}
	a.items = nil
	return nil
}
