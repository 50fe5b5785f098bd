// Package buffer provides a bounded scrollback store for PTY output.
package buffer

import (
	"sync"
)

// RingBuffer keeps the most recent bytes written to it, up to its capacity.
// Older bytes are overwritten in place. It is safe for concurrent use.
//
// Hosts write raw PTY output here so a late viewer can replay recent history
// into a fresh terminal grid.
type RingBuffer struct {
	mu    sync.RWMutex
	buf   []byte
	start int // index of the oldest byte
	size  int
	total uint64
}

// NewRingBuffer creates a RingBuffer holding at most capacity bytes.
// A capacity below 1 is raised to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write appends p, evicting the oldest bytes when full. It never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.total += uint64(n)
	capacity := len(rb.buf)
	if n >= capacity {
		copy(rb.buf, p[n-capacity:])
		rb.start = 0
		rb.size = capacity
		return n, nil
	}

	end := (rb.start + rb.size) % capacity
	copied := copy(rb.buf[end:], p)
	copy(rb.buf, p[copied:])

	rb.size += n
	if rb.size > capacity {
		rb.start = (rb.start + rb.size - capacity) % capacity
		rb.size = capacity
	}
	return n, nil
}

// Bytes returns a copy of the buffered data, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	return rb.Tail(-1)
}

// Tail returns a copy of the newest n bytes. A negative n returns all.
func (rb *RingBuffer) Tail(n int) []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n < 0 || n > rb.size {
		n = rb.size
	}
	if n == 0 {
		return nil
	}

	out := make([]byte, n)
	from := (rb.start + rb.size - n) % len(rb.buf)
	copied := copy(out, rb.buf[from:])
	if copied < n {
		copy(out[copied:], rb.buf[:n-copied])
	}
	return out
}

// Reset discards the buffered data. Total is kept.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.start = 0
	rb.size = 0
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the capacity.
func (rb *RingBuffer) Cap() int {
	return len(rb.buf)
}

// Total returns the number of bytes ever written, including evicted ones.
func (rb *RingBuffer) Total() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.total
}
