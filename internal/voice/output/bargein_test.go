package output

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// bargeInRecorder collects accepted interruptions.
type bargeInRecorder struct {
	mu    sync.Mutex
	users []string
}

func (r *bargeInRecorder) record(userID string) {
	r.mu.Lock()
	r.users = append(r.users, userID)
	r.mu.Unlock()
}

func (r *bargeInRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func TestBargeInImmediateFire(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewBargeInDetector(BargeInConfig{Enabled: true})
	d.now = clock.now
	rec := &bargeInRecorder{}
	d.OnBargeIn(rec.record)

	d.StartPlayback()
	clock.advance(defaultBargeInCooldown)

	// MinSpeechDuration zero fires synchronously on onset.
	d.OnUserSpeechStart("alice")
	if rec.count() != 1 {
		t.Fatalf("barge-ins = %d, want 1", rec.count())
	}
}

func TestBargeInDisabledDetector(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewBargeInDetector(BargeInConfig{Enabled: false})
	d.now = clock.now
	rec := &bargeInRecorder{}
	d.OnBargeIn(rec.record)

	d.StartPlayback()
	clock.advance(time.Second)
	d.OnUserSpeechStart("alice")
	if rec.count() != 0 {
		t.Errorf("disabled detector fired %d barge-ins", rec.count())
	}
}

func TestBargeInIgnoredWithoutPlayback(t *testing.T) {
	t.Parallel()

	d := NewBargeInDetector(BargeInConfig{Enabled: true})
	rec := &bargeInRecorder{}
	d.OnBargeIn(rec.record)

	d.OnUserSpeechStart("alice")
	if rec.count() != 0 {
		t.Errorf("barge-ins without playback = %d, want 0", rec.count())
	}
}

func TestBargeInCooldownSuppressesOnset(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewBargeInDetector(BargeInConfig{Enabled: true, Cooldown: 200 * time.Millisecond})
	d.now = clock.now
	rec := &bargeInRecorder{}
	d.OnBargeIn(rec.record)

	d.StartPlayback()

	clock.advance(100 * time.Millisecond)
	d.OnUserSpeechStart("alice")
	if rec.count() != 0 {
		t.Errorf("onset inside cooldown fired %d barge-ins", rec.count())
	}

	clock.advance(100 * time.Millisecond)
	d.OnUserSpeechStart("alice")
	if rec.count() != 1 {
		t.Errorf("onset after cooldown fired %d barge-ins, want 1", rec.count())
	}
}

func TestBargeInMinSpeechDurationCancelledByStop(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewBargeInDetector(BargeInConfig{
		Enabled:           true,
		MinSpeechDuration: 300 * time.Millisecond,
	})
	d.now = clock.now
	rec := &bargeInRecorder{}
	d.OnBargeIn(rec.record)

	d.StartPlayback()
	clock.advance(defaultBargeInCooldown)

	d.OnUserSpeechStart("alice")
	// Speech stops at ~200 ms, before the 300 ms gate.
	time.Sleep(200 * time.Millisecond)
	d.OnUserSpeechStop("alice")

	// Even after the original window would have elapsed, nothing fires.
	time.Sleep(200 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("cancelled onset fired %d barge-ins", rec.count())
	}
}

func TestBargeInMinSpeechDurationFires(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewBargeInDetector(BargeInConfig{
		Enabled:           true,
		MinSpeechDuration: 50 * time.Millisecond,
	})
	d.now = clock.now
	rec := &bargeInRecorder{}
	d.OnBargeIn(rec.record)

	d.StartPlayback()
	clock.advance(defaultBargeInCooldown)

	d.OnUserSpeechStart("alice")
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("barge-ins = %d, want 1 after min speech duration", rec.count())
	}
}

func TestBargeInStopPlaybackCancelsPending(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewBargeInDetector(BargeInConfig{
		Enabled:           true,
		MinSpeechDuration: 50 * time.Millisecond,
	})
	d.now = clock.now
	rec := &bargeInRecorder{}
	d.OnBargeIn(rec.record)

	d.StartPlayback()
	clock.advance(defaultBargeInCooldown)
	d.OnUserSpeechStart("alice")
	d.StopPlayback()

	time.Sleep(120 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("pending onset fired %d barge-ins after playback stopped", rec.count())
	}
	if d.IsPlaying() {
		t.Error("detector should not be playing after StopPlayback")
	}
}

func TestBargeInResetClearsState(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewBargeInDetector(BargeInConfig{
		Enabled:           true,
		MinSpeechDuration: 50 * time.Millisecond,
	})
	d.now = clock.now
	rec := &bargeInRecorder{}
	d.OnBargeIn(rec.record)

	d.StartPlayback()
	clock.advance(defaultBargeInCooldown)
	d.OnUserSpeechStart("alice")
	d.Reset()

	time.Sleep(120 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("barge-ins after reset = %d, want 0", rec.count())
	}
	if d.IsPlaying() {
		t.Error("detector should not be playing after Reset")
	}
}
