// Package input owns the listening half of the voice pipeline: per-speaker
// transport subscriptions, buffering of inbound audio, and tracking of who
// is speaking right now.
package input

import (
	"sync"
	"time"
)

// speakerSession is the state of one in-progress speaking session.
type speakerSession struct {
	ssrc      uint32
	startTime time.Time
}

// Tracker maps transport-level stream identifiers (SSRCs) to stable speaker
// identities and tracks the set of currently active speakers together with
// cumulative speaking time per speaker.
//
// The tracker is floor-local: it knows nothing about whether the agent is
// speaking. That composition happens in the turn manager.
//
// All methods are safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	active     map[string]*speakerSession
	totals     map[string]time.Duration
	ssrcToUser map[uint32]string

	onStart func(userID string)
	onStop  func(userID string, sessionDuration time.Duration)

	// now is swapped out by tests.
	now func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:     make(map[string]*speakerSession),
		totals:     make(map[string]time.Duration),
		ssrcToUser: make(map[uint32]string),
		now:        time.Now,
	}
}

// OnSpeakingStart registers the callback invoked when a speaker becomes
// active. Re-entrant start calls for an already active speaker do not
// re-invoke it.
func (t *Tracker) OnSpeakingStart(cb func(userID string)) {
	t.mu.Lock()
	t.onStart = cb
	t.mu.Unlock()
}

// OnSpeakingStop registers the callback invoked when a speaker stops, with
// the duration of the session that just ended.
func (t *Tracker) OnSpeakingStop(cb func(userID string, sessionDuration time.Duration)) {
	t.mu.Lock()
	t.onStop = cb
	t.mu.Unlock()
}

// StartSpeaking marks the speaker active. Idempotent while the speaker is
// already active: the session is not reset and no event is re-emitted. The
// SSRC mapping is refreshed unconditionally on every call.
func (t *Tracker) StartSpeaking(userID string, ssrc uint32) {
	t.mu.Lock()
	t.ssrcToUser[ssrc] = userID
	if sess, ok := t.active[userID]; ok {
		sess.ssrc = ssrc
		t.mu.Unlock()
		return
	}
	t.active[userID] = &speakerSession{ssrc: ssrc, startTime: t.now()}
	cb := t.onStart
	t.mu.Unlock()

	if cb != nil {
		cb(userID)
	}
}

// StopSpeaking marks the speaker inactive, folds the elapsed session time
// into the speaker's cumulative total, and emits the stop notification with
// the session duration. A stop for a speaker that is not active is a no-op.
func (t *Tracker) StopSpeaking(userID string) {
	t.mu.Lock()
	sess, ok := t.active[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.active, userID)
	elapsed := t.now().Sub(sess.startTime)
	t.totals[userID] += elapsed
	cb := t.onStop
	t.mu.Unlock()

	if cb != nil {
		cb(userID, elapsed)
	}
}

// MapSSRC records an SSRC-to-speaker mapping from transport metadata. The
// mapping may arrive before or after the corresponding speaking-start.
func (t *Tracker) MapSSRC(ssrc uint32, userID string) {
	t.mu.Lock()
	t.ssrcToUser[ssrc] = userID
	t.mu.Unlock()
}

// UserForSSRC resolves an SSRC to a speaker identity.
func (t *Tracker) UserForSSRC(ssrc uint32) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	userID, ok := t.ssrcToUser[ssrc]
	return userID, ok
}

// SpeakingDuration returns the speaker's cumulative speaking time,
// including the in-progress session when the speaker is currently active.
func (t *Tracker) SpeakingDuration(userID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.totals[userID]
	if sess, ok := t.active[userID]; ok {
		total += t.now().Sub(sess.startTime)
	}
	return total
}

// IsSpeaking reports whether the speaker is currently active.
func (t *Tracker) IsSpeaking(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[userID]
	return ok
}

// ActiveSpeakers returns the identities of all currently active speakers.
func (t *Tracker) ActiveSpeakers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	return ids
}

// IsFloorOpen reports whether no speaker is currently active.
func (t *Tracker) IsFloorOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active) == 0
}

// ClearUser stops any active session for the speaker without emitting a
// stop event, removes every SSRC mapping pointing at them, and clears
// their cumulative duration.
func (t *Tracker) ClearUser(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, userID)
	delete(t.totals, userID)
	for ssrc, id := range t.ssrcToUser {
		if id == userID {
			delete(t.ssrcToUser, ssrc)
		}
	}
}
