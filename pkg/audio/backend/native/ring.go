// ABOUTME: Lock-free single-producer single-consumer byte ring buffer
// ABOUTME: Sits between stream writers and the device callback thread
package native

import "sync/atomic"

const minRingSize = 64

// Ring is a fixed-capacity byte FIFO. One goroutine may write while another
// reads without locking; positions only ever grow.
type Ring struct {
	buf  []byte
	mask uint64
	head atomic.Uint64 // next byte to read
	tail atomic.Uint64 // next byte to write
}

// NewRing creates a ring holding at least capacity bytes
func NewRing(capacity int) *Ring {
	size := minRingSize
	for size < capacity {
		size <<= 1
	}
	return &Ring{buf: make([]byte, size), mask: uint64(size - 1)}
}

// Write copies as much of p as fits and returns the count
func (r *Ring) Write(p []byte) int {
	head := r.head.Load()
	tail := r.tail.Load()

	free := uint64(len(r.buf)) - (tail - head)
	n := uint64(len(p))
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	start := tail & r.mask
	first := uint64(copy(r.buf[start:], p[:n]))
	copy(r.buf, p[first:n])

	r.tail.Store(tail + n)
	return int(n)
}

// Read copies up to len(p) buffered bytes into p and returns the count
func (r *Ring) Read(p []byte) int {
	tail := r.tail.Load()
	head := r.head.Load()

	n := tail - head
	if uint64(len(p)) < n {
		n = uint64(len(p))
	}
	if n == 0 {
		return 0
	}

	start := head & r.mask
	first := uint64(copy(p[:n], r.buf[start:]))
	copy(p[first:n], r.buf)

	r.head.Store(head + n)
	return int(n)
}

// Len returns the number of buffered bytes
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the ring capacity in bytes
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Free returns how many bytes can be written without blocking
func (r *Ring) Free() int {
	return r.Cap() - r.Len()
}
