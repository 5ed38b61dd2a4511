// Package output owns the speaking half of the voice pipeline: per-channel
// playback queues, barge-in detection, and playback statistics.
package output

import (
	"sync"
	"time"

	"github.com/parley-voice/parley/pkg/audio"
)

// Segment is one synthesized span of audio awaiting playback.
type Segment struct {
	// PCM is little-endian 16-bit signed audio.
	PCM []byte

	// Format describes the PCM layout.
	Format audio.Format

	// Text is the synthesized text, carried for logging.
	Text string

	// RequestedAt is when synthesis was requested, used for the
	// request-to-playback latency statistic.
	RequestedAt time.Time
}

// queueItem pairs a segment with its enqueue time.
type queueItem struct {
	segment    Segment
	enqueuedAt time.Time
}

// PlaybackQueue is a FIFO of segments waiting behind the one currently
// playing. At most one segment is playing outside the queue at any time
// per channel. Safe for concurrent use.
type PlaybackQueue struct {
	mu    sync.Mutex
	items []queueItem
}

// NewPlaybackQueue creates an empty queue.
func NewPlaybackQueue() *PlaybackQueue {
	return &PlaybackQueue{}
}

// Enqueue appends a segment.
func (q *PlaybackQueue) Enqueue(seg Segment) {
	q.mu.Lock()
	q.items = append(q.items, queueItem{segment: seg, enqueuedAt: time.Now()})
	q.mu.Unlock()
}

// Dequeue removes and returns the oldest segment. The second return value
// is false when the queue is empty.
func (q *PlaybackQueue) Dequeue() (Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Segment{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item.segment, true
}

// Len returns the number of queued segments.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all queued segments.
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
