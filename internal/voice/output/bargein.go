package output

import (
	"sync"
	"time"
)

const defaultBargeInCooldown = 200 * time.Millisecond

// BargeInConfig configures a [BargeInDetector].
type BargeInConfig struct {
	// Enabled turns detection on. A disabled detector ignores all speech
	// onsets.
	Enabled bool

	// Cooldown suppresses onset detection for this long after playback
	// starts, so echo of the playback onset is not mistaken for a user
	// interrupting. Defaults to 200 ms if zero.
	Cooldown time.Duration

	// MinSpeechDuration delays the interruption event by this long after a
	// speech onset; a speech-stop inside the window cancels it. Zero fires
	// immediately on onset.
	MinSpeechDuration time.Duration
}

// BargeInDetector is a time-gated interruption detector. During active
// playback it watches user speech onsets and emits a barge-in event for
// onsets that survive the cooldown and minimum-duration gates.
//
// All methods are safe for concurrent use.
type BargeInDetector struct {
	enabled           bool
	cooldown          time.Duration
	minSpeechDuration time.Duration

	mu          sync.Mutex
	playing     bool
	cooldownEnd time.Time
	pending     map[string]*time.Timer

	onBargeIn func(userID string)

	// now is swapped out by tests.
	now func() time.Time
}

// NewBargeInDetector creates a detector in the not-playing state.
func NewBargeInDetector(cfg BargeInConfig) *BargeInDetector {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultBargeInCooldown
	}
	return &BargeInDetector{
		enabled:           cfg.Enabled,
		cooldown:          cooldown,
		minSpeechDuration: cfg.MinSpeechDuration,
		pending:           make(map[string]*time.Timer),
		now:               time.Now,
	}
}

// OnBargeIn registers the callback invoked for an accepted interruption.
func (d *BargeInDetector) OnBargeIn(cb func(userID string)) {
	d.mu.Lock()
	d.onBargeIn = cb
	d.mu.Unlock()
}

// StartPlayback marks playback active and arms the onset cooldown.
func (d *BargeInDetector) StartPlayback() {
	d.mu.Lock()
	d.playing = true
	d.cooldownEnd = d.now().Add(d.cooldown)
	d.mu.Unlock()
}

// StopPlayback marks playback inactive and cancels any pending delayed
// interruption.
func (d *BargeInDetector) StopPlayback() {
	d.mu.Lock()
	d.playing = false
	d.cancelPendingLocked()
	d.mu.Unlock()
}

// OnUserSpeechStart reacts to a speech onset. It is a no-op unless
// detection is enabled, playback is active, and the cooldown has elapsed.
// With a minimum speech duration configured the interruption is delayed
// and may still be cancelled by [BargeInDetector.OnUserSpeechStop].
func (d *BargeInDetector) OnUserSpeechStart(userID string) {
	d.mu.Lock()
	if !d.enabled || !d.playing || d.now().Before(d.cooldownEnd) {
		d.mu.Unlock()
		return
	}

	if d.minSpeechDuration <= 0 {
		cb := d.onBargeIn
		d.mu.Unlock()
		if cb != nil {
			cb(userID)
		}
		return
	}

	if _, ok := d.pending[userID]; ok {
		d.mu.Unlock()
		return
	}
	d.pending[userID] = time.AfterFunc(d.minSpeechDuration, func() {
		d.fireDelayed(userID)
	})
	d.mu.Unlock()
}

// OnUserSpeechStop cancels a pending delayed interruption for the speaker.
func (d *BargeInDetector) OnUserSpeechStop(userID string) {
	d.mu.Lock()
	if timer, ok := d.pending[userID]; ok {
		timer.Stop()
		delete(d.pending, userID)
	}
	d.mu.Unlock()
}

// Reset clears playback state and all pending timers.
func (d *BargeInDetector) Reset() {
	d.mu.Lock()
	d.playing = false
	d.cooldownEnd = time.Time{}
	d.cancelPendingLocked()
	d.mu.Unlock()
}

// IsPlaying reports whether the detector considers playback active.
func (d *BargeInDetector) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// fireDelayed emits the interruption once the minimum speech duration has
// elapsed, unless playback stopped or the detector was reset in between.
func (d *BargeInDetector) fireDelayed(userID string) {
	d.mu.Lock()
	if _, ok := d.pending[userID]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, userID)
	if !d.playing {
		d.mu.Unlock()
		return
	}
	cb := d.onBargeIn
	d.mu.Unlock()

	if cb != nil {
		cb(userID)
	}
}

// cancelPendingLocked stops and forgets all pending timers. Caller holds
// d.mu.
func (d *BargeInDetector) cancelPendingLocked() {
	for userID, timer := range d.pending {
		timer.Stop()
		delete(d.pending, userID)
	}
}
