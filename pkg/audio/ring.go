package audio

import (
	"sync"
	"time"
)

// RingBuffer is a fixed-capacity circular store of timestamped audio frames.
// When full, pushing a new frame evicts the oldest one. A zero-capacity
// buffer silently discards every push.
//
// Each buffer is owned by a single speaker subscription, but pushes and reads
// may come from different goroutines, so all operations are mutex-guarded.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []Frame
	head  int // index of the oldest element
	count int
}

// WindowOptions constrains [RingBuffer.Window]. Zero values mean "no limit".
type WindowOptions struct {
	// MaxPackets caps the number of returned frames, keeping the most recent.
	MaxPackets int

	// MaxAge drops frames older than now - MaxAge.
	MaxAge time.Duration
}

// NewRingBuffer creates a buffer holding at most capacity frames.
// A capacity <= 0 yields a buffer that discards all pushes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &RingBuffer{buf: make([]Frame, capacity)}
}

// NewRingBufferForDuration derives the capacity from a wall-clock span and a
// fixed per-frame duration, e.g. 3 seconds of 20ms frames -> 150 slots.
func NewRingBufferForDuration(span, frameDuration time.Duration) *RingBuffer {
	if frameDuration <= 0 {
		return NewRingBuffer(0)
	}
	return NewRingBuffer(int(span / frameDuration))
}

// Push stores payload with the current time as its timestamp.
func (r *RingBuffer) Push(payload []byte) {
	r.PushAt(payload, time.Now())
}

// PushAt stores payload with an explicit timestamp. O(1); on overflow the
// oldest frame is evicted first. Never fails.
func (r *RingBuffer) PushAt(payload []byte, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == 0 {
		return
	}
	if r.count == len(r.buf) {
		// Full: overwrite the oldest slot and advance head.
		r.buf[r.head] = Frame{Data: payload, Timestamp: ts}
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[(r.head+r.count)%len(r.buf)] = Frame{Data: payload, Timestamp: ts}
	r.count++
}

// All returns every stored frame in chronological order without mutating the
// buffer. The returned slice is a copy.
func (r *RingBuffer) All() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Window returns the stored frames after applying the age filter first and
// then, if the result still exceeds MaxPackets, truncating to the most recent
// MaxPackets frames. Both constraints keep the newest frames, never the
// oldest.
func (r *RingBuffer) Window(opts WindowOptions) []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := r.snapshot()
	if opts.MaxAge > 0 {
		cutoff := time.Now().Add(-opts.MaxAge)
		i := 0
		for i < len(frames) && frames[i].Timestamp.Before(cutoff) {
			i++
		}
		frames = frames[i:]
	}
	if opts.MaxPackets > 0 && len(frames) > opts.MaxPackets {
		frames = frames[len(frames)-opts.MaxPackets:]
	}
	return frames
}

// Len returns the number of frames currently stored.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Clear resets the buffer to empty, preserving capacity.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = Frame{}
	}
	r.head = 0
	r.count = 0
}

// snapshot copies the stored frames oldest-first. Caller must hold r.mu.
func (r *RingBuffer) snapshot() []Frame {
	out := make([]Frame, 0, r.count)
	for i := range r.count {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
