package input

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for duration assertions.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTrackerStartStop(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	tr := NewTracker()
	tr.now = clock.now

	var stops []time.Duration
	tr.OnSpeakingStop(func(userID string, d time.Duration) {
		stops = append(stops, d)
	})

	tr.StartSpeaking("alice", 100)
	if tr.IsFloorOpen() {
		t.Error("floor should be closed while alice speaks")
	}
	if !tr.IsSpeaking("alice") {
		t.Error("alice should be active")
	}

	clock.advance(3 * time.Second)
	tr.StopSpeaking("alice")

	if !tr.IsFloorOpen() {
		t.Error("floor should reopen after stop")
	}
	if len(stops) != 1 || stops[0] != 3*time.Second {
		t.Errorf("stop events = %v, want one 3s event", stops)
	}
	if got := tr.SpeakingDuration("alice"); got != 3*time.Second {
		t.Errorf("SpeakingDuration = %v, want 3s", got)
	}
}

func TestTrackerStartIdempotent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	tr := NewTracker()
	tr.now = clock.now

	starts := 0
	tr.OnSpeakingStart(func(string) { starts++ })

	tr.StartSpeaking("alice", 100)
	clock.advance(2 * time.Second)
	// Re-entrant start must not reset the session or re-emit.
	tr.StartSpeaking("alice", 200)
	clock.advance(1 * time.Second)

	if starts != 1 {
		t.Errorf("start events = %d, want 1", starts)
	}
	if got := tr.SpeakingDuration("alice"); got != 3*time.Second {
		t.Errorf("SpeakingDuration = %v, want 3s (session not reset)", got)
	}
	// The ssrc mapping is refreshed even while already speaking.
	if userID, ok := tr.UserForSSRC(200); !ok || userID != "alice" {
		t.Errorf("UserForSSRC(200) = %q, %v", userID, ok)
	}
}

func TestTrackerStopWhenInactiveIsNoOp(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	stops := 0
	tr.OnSpeakingStop(func(string, time.Duration) { stops++ })

	tr.StopSpeaking("nobody")
	if stops != 0 {
		t.Errorf("stop events = %d, want 0", stops)
	}
}

func TestTrackerCumulativeDuration(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	tr := NewTracker()
	tr.now = clock.now

	tr.StartSpeaking("alice", 100)
	clock.advance(2 * time.Second)
	tr.StopSpeaking("alice")

	tr.StartSpeaking("alice", 100)
	clock.advance(1 * time.Second)

	// 2s folded total plus 1s live session.
	if got := tr.SpeakingDuration("alice"); got != 3*time.Second {
		t.Errorf("SpeakingDuration = %v, want 3s", got)
	}
}

func TestTrackerSSRCMappingOrderIndependent(t *testing.T) {
	t.Parallel()

	t.Run("mapping before start", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker()
		tr.MapSSRC(42, "bob")
		if userID, ok := tr.UserForSSRC(42); !ok || userID != "bob" {
			t.Errorf("UserForSSRC = %q, %v", userID, ok)
		}
		tr.StartSpeaking("bob", 42)
		if !tr.IsSpeaking("bob") {
			t.Error("bob should be active")
		}
	})

	t.Run("mapping after start", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker()
		tr.StartSpeaking("bob", 42)
		tr.MapSSRC(42, "bob")
		if userID, ok := tr.UserForSSRC(42); !ok || userID != "bob" {
			t.Errorf("UserForSSRC = %q, %v", userID, ok)
		}
	})
}

func TestTrackerClearUser(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	tr := NewTracker()
	tr.now = clock.now

	tr.StartSpeaking("alice", 100)
	tr.MapSSRC(101, "alice")
	tr.MapSSRC(200, "bob")
	clock.advance(time.Second)

	tr.ClearUser("alice")

	if tr.IsSpeaking("alice") {
		t.Error("alice should not be active after ClearUser")
	}
	if got := tr.SpeakingDuration("alice"); got != 0 {
		t.Errorf("SpeakingDuration = %v, want 0", got)
	}
	if _, ok := tr.UserForSSRC(100); ok {
		t.Error("ssrc 100 mapping should be removed")
	}
	if _, ok := tr.UserForSSRC(101); ok {
		t.Error("ssrc 101 mapping should be removed")
	}
	if userID, ok := tr.UserForSSRC(200); !ok || userID != "bob" {
		t.Error("bob's mapping should survive")
	}
}

func TestTrackerActiveSpeakers(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.StartSpeaking("alice", 1)
	tr.StartSpeaking("bob", 2)

	active := tr.ActiveSpeakers()
	if len(active) != 2 {
		t.Fatalf("ActiveSpeakers = %v, want 2 entries", active)
	}
	seen := map[string]bool{}
	for _, id := range active {
		seen[id] = true
	}
	if !seen["alice"] || !seen["bob"] {
		t.Errorf("ActiveSpeakers = %v", active)
	}
}
