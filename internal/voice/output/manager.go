package output

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-voice/parley/pkg/audio"
)

// Stats are per-channel playback statistics.
type Stats struct {
	// TotalPlayed is the number of segments whose playback started.
	TotalPlayed int

	// InterruptionCount is the number of accepted barge-ins.
	InterruptionCount int

	// AverageLatency is the running average of synthesis-request to
	// playback-start time.
	AverageLatency time.Duration
}

// channelState is the per-channel playback state.
type channelState struct {
	player   audio.Player
	queue    *PlaybackQueue
	detector *BargeInDetector

	playing        bool
	stats          Stats
	latencySamples int
}

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// BargeIn configures the detector created for each attached channel.
	BargeIn BargeInConfig

	// Logger is the slog logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns playback for any number of channels: play-or-enqueue
// semantics, natural-completion queue chaining, barge-in handling, and
// statistics. A playback failure on one channel never affects another.
//
// All methods are safe for concurrent use.
type Manager struct {
	bargeIn BargeInConfig
	logger  *slog.Logger

	mu       sync.Mutex
	channels map[string]*channelState

	onPlaybackFinished func(channelID string)
	onBargeIn          func(channelID, userID string)
}

// NewManager creates a Manager with no attached channels.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bargeIn:  cfg.BargeIn,
		logger:   logger,
		channels: make(map[string]*channelState),
	}
}

// OnPlaybackFinished registers the callback invoked when a channel's last
// queued segment completes naturally and the queue is empty. It does not
// fire for explicit stops or barge-ins.
func (m *Manager) OnPlaybackFinished(cb func(channelID string)) {
	m.mu.Lock()
	m.onPlaybackFinished = cb
	m.mu.Unlock()
}

// OnBargeIn registers the callback invoked after an accepted barge-in has
// stopped the channel's playback.
func (m *Manager) OnBargeIn(cb func(channelID, userID string)) {
	m.mu.Lock()
	m.onBargeIn = cb
	m.mu.Unlock()
}

// AttachPlayer registers the playback device for a channel. Calling Play
// on a channel without an attached player is a hard error.
func (m *Manager) AttachPlayer(channelID string, player audio.Player) {
	state := &channelState{
		player:   player,
		queue:    NewPlaybackQueue(),
		detector: NewBargeInDetector(m.bargeIn),
	}
	state.detector.OnBargeIn(func(userID string) {
		m.handleBargeIn(channelID, userID)
	})
	player.OnFinished(func() {
		m.handlePlaybackFinished(channelID)
	})

	m.mu.Lock()
	m.channels[channelID] = state
	m.mu.Unlock()
}

// DetachPlayer stops and removes a channel. Safe to call when not attached.
func (m *Manager) DetachPlayer(channelID string) {
	m.Stop(channelID)
	m.mu.Lock()
	delete(m.channels, channelID)
	m.mu.Unlock()
}

// Play starts the segment immediately when the channel is idle, otherwise
// enqueues it behind the current playback. Statistics are updated
// immediately before playback starts.
func (m *Manager) Play(channelID string, seg Segment) error {
	m.mu.Lock()
	state, ok := m.channels[channelID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("output manager: play on channel %s with no attached player", channelID)
	}
	if state.playing {
		state.queue.Enqueue(seg)
		depth := state.queue.Len()
		m.mu.Unlock()
		m.logger.Debug("segment enqueued", "channel_id", channelID, "queue_depth", depth)
		return nil
	}
	return m.startSegmentLocked(channelID, state, seg) // unlocks
}

// Stop halts playback on the channel, clears its queue, and resets its
// barge-in state. Safe to call on an unknown or idle channel.
func (m *Manager) Stop(channelID string) {
	m.mu.Lock()
	state, ok := m.channels[channelID]
	if !ok {
		m.mu.Unlock()
		return
	}
	state.playing = false
	state.queue.Clear()
	player := state.player
	detector := state.detector
	m.mu.Unlock()

	player.Stop()
	detector.Reset()
}

// StopAll stops playback on every attached channel.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
}

// UserSpeechStart forwards a speech onset into the channel's barge-in
// detector.
func (m *Manager) UserSpeechStart(channelID, userID string) {
	if d := m.detectorFor(channelID); d != nil {
		d.OnUserSpeechStart(userID)
	}
}

// UserSpeechStop forwards a speech stop into the channel's barge-in
// detector.
func (m *Manager) UserSpeechStop(channelID, userID string) {
	if d := m.detectorFor(channelID); d != nil {
		d.OnUserSpeechStop(userID)
	}
}

// IsPlaying reports whether the channel is currently playing a segment.
func (m *Manager) IsPlaying(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.channels[channelID]
	return ok && state.playing
}

// QueueLen returns the number of segments queued behind the current
// playback.
func (m *Manager) QueueLen(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.channels[channelID]; ok {
		return state.queue.Len()
	}
	return 0
}

// Stats returns a snapshot of the channel's playback statistics.
func (m *Manager) Stats(channelID string) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.channels[channelID]; ok {
		return state.stats
	}
	return Stats{}
}

// startSegmentLocked records statistics and begins playback. Called with
// m.mu held; unlocks before touching the player.
func (m *Manager) startSegmentLocked(channelID string, state *channelState, seg Segment) error {
	state.stats.TotalPlayed++
	if !seg.RequestedAt.IsZero() {
		sample := time.Since(seg.RequestedAt)
		state.latencySamples++
		state.stats.AverageLatency += (sample - state.stats.AverageLatency) / time.Duration(state.latencySamples)
	}
	state.playing = true
	player := state.player
	detector := state.detector
	m.mu.Unlock()

	detector.StartPlayback()
	if err := player.Play(seg.PCM, seg.Format); err != nil {
		detector.StopPlayback()
		m.mu.Lock()
		state.playing = false
		m.mu.Unlock()
		return fmt.Errorf("output manager: play on channel %s: %w", channelID, err)
	}
	return nil
}

// handlePlaybackFinished reacts to a segment completing naturally: the
// next queued segment starts, or the channel goes idle and the finished
// event fires.
func (m *Manager) handlePlaybackFinished(channelID string) {
	m.mu.Lock()
	state, ok := m.channels[channelID]
	if !ok || !state.playing {
		m.mu.Unlock()
		return
	}

	if next, ok := state.queue.Dequeue(); ok {
		if err := m.startSegmentLocked(channelID, state, next); err != nil { // unlocks
			m.logger.Warn("queued segment playback failed", "channel_id", channelID, "error", err)
		}
		return
	}

	state.playing = false
	detector := state.detector
	cb := m.onPlaybackFinished
	m.mu.Unlock()

	detector.StopPlayback()
	if cb != nil {
		cb(channelID)
	}
}

// handleBargeIn reacts to an accepted interruption: playback stops, the
// queue is cleared, and the interruption counter increments.
func (m *Manager) handleBargeIn(channelID, userID string) {
	m.mu.Lock()
	state, ok := m.channels[channelID]
	if !ok {
		m.mu.Unlock()
		return
	}
	state.playing = false
	state.stats.InterruptionCount++
	state.queue.Clear()
	player := state.player
	detector := state.detector
	cb := m.onBargeIn
	m.mu.Unlock()

	player.Stop()
	detector.StopPlayback()
	m.logger.Info("barge-in accepted", "channel_id", channelID, "user_id", userID)
	if cb != nil {
		cb(channelID, userID)
	}
}

// detectorFor returns the channel's detector, or nil when not attached.
func (m *Manager) detectorFor(channelID string) *BargeInDetector {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.channels[channelID]; ok {
		return state.detector
	}
	return nil
}
