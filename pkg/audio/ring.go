package audio

import "sync"

// RingBuffer is a fixed-capacity byte FIFO with a drop-oldest overflow
// policy. Write never blocks and never grows the backing store: when a write
// would exceed capacity, the oldest bytes are discarded so the most recent
// data is always retained.
//
// A RingBuffer is safe for exactly one writer and one reader operating
// concurrently. Cursor bookkeeping is guarded by a single short-held mutex;
// the copies inside the critical section are bounded by the buffer capacity,
// so neither side ever waits on the other for long. No allocation happens
// after construction.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	r       int // read cursor
	w       int // write cursor
	count   int // live bytes, 0 ≤ count ≤ len(buf)
	dropped int64
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
// Panics if capacity is not positive; buffer sizes come from static
// configuration, not user input.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic("audio: ring buffer capacity must be positive")
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write appends p to the buffer, discarding the oldest bytes on overflow.
// If len(p) exceeds the capacity, only the trailing capacity bytes of p are
// kept. Write never fails and never blocks beyond the internal bookkeeping
// lock.
func (b *RingBuffer) Write(p []byte) {
	if len(p) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.buf)

	if len(p) >= capacity {
		// The write alone fills the buffer: keep only its tail.
		b.dropped += int64(b.count + len(p) - capacity)
		copy(b.buf, p[len(p)-capacity:])
		b.r = 0
		b.w = 0
		b.count = capacity
		return
	}

	// Drop the oldest bytes to make room.
	if overflow := b.count + len(p) - capacity; overflow > 0 {
		b.r = (b.r + overflow) % capacity
		b.count -= overflow
		b.dropped += int64(overflow)
	}

	n := copy(b.buf[b.w:], p)
	if n < len(p) {
		copy(b.buf, p[n:])
	}
	b.w = (b.w + len(p)) % capacity
	b.count += len(p)
}

// Read copies up to len(p) bytes into p starting at the read cursor and
// advances the cursor. It returns the number of bytes copied, which is less
// than len(p) only when the buffer holds fewer bytes. Read never blocks;
// with an empty buffer it returns 0 and the caller zero-fills as needed.
func (b *RingBuffer) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(len(p), b.count)
	if n == 0 {
		return 0
	}

	m := copy(p[:n], b.buf[b.r:])
	if m < n {
		copy(p[m:n], b.buf)
	}
	b.r = (b.r + n) % len(b.buf)
	b.count -= n
	return n
}

// Reset discards all buffered content. Used for barge-in flushes and on
// session teardown.
func (b *RingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.r = 0
	b.w = 0
	b.count = 0
}

// Len returns the number of bytes currently buffered.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity in bytes.
func (b *RingBuffer) Cap() int {
	return len(b.buf)
}

// Dropped returns the cumulative number of bytes discarded by the overflow
// policy since construction. Exposed for metrics collection so the hot path
// never records instruments itself.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
