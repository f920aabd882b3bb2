// Package ring implements a fixed-capacity single-producer/single-consumer
// queue of float32 audio samples used to hand data from the realtime
// device callback to the pipeline worker without a lock.
package ring

import "sync/atomic"

// Buffer is a lock-free SPSC ring buffer. Exactly one goroutine may call
// Push, and exactly one (possibly different) goroutine may call Pop;
// mixing producers or mixing consumers is not safe.
type Buffer struct {
	data []float32
	mask uint64

	head atomic.Uint64 // next write index, producer-owned
	tail atomic.Uint64 // next read index, consumer-owned
}

// NewBuffer creates a buffer able to hold at least capacity samples. The
// actual capacity is rounded up to the next power of two so index
// arithmetic can use a mask instead of a modulo.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	sz := nextPow2(uint64(capacity))
	return &Buffer{
		data: make([]float32, sz),
		mask: sz - 1,
	}
}

// NewBufferForDuration sizes a buffer to hold the given number of seconds
// of audio at sampleRate.
func NewBufferForDuration(sampleRate int, seconds float64) *Buffer {
	return NewBuffer(int(float64(sampleRate) * seconds))
}

func nextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Cap returns the buffer's total capacity in samples.
func (b *Buffer) Cap() int { return len(b.data) }

// Available reports an advisory estimate of unread samples. It may be
// stale by the time the caller acts on it; it never blocks.
func (b *Buffer) Available() int {
	head := b.head.Load()
	tail := b.tail.Load()
	return int(head - tail)
}

// Push writes as many of samples as fit and returns the count actually
// written. It never blocks; once the buffer is full, the remaining tail
// of samples is silently dropped rather than overwriting unread data.
func (b *Buffer) Push(samples []float32) int {
	head := b.head.Load()
	tail := b.tail.Load()
	free := uint64(len(b.data)) - (head - tail)

	n := uint64(len(samples))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		b.data[(head+i)&b.mask] = samples[i]
	}
	b.head.Store(head + n)
	return int(n)
}

// Pop reads up to len(buf) samples into buf and returns the count
// actually read; 0 if the buffer is currently empty. It never blocks.
func (b *Buffer) Pop(buf []float32) int {
	tail := b.tail.Load()
	head := b.head.Load()
	avail := head - tail

	n := uint64(len(buf))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		buf[i] = b.data[(tail+i)&b.mask]
	}
	b.tail.Store(tail + n)
	return int(n)
}
