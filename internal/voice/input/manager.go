package input

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-voice/parley/pkg/audio"
)

const (
	defaultBufferSeconds   = 5
	defaultFrameDurationMs = 20
)

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// Conn is the joined voice connection supplying per-speaker audio.
	Conn audio.Conn

	// BufferSeconds is the span of audio each speaker's ring buffer holds.
	// Defaults to 5 seconds if zero.
	BufferSeconds int

	// FrameDurationMs is the expected duration of one transport frame,
	// used to size the ring buffers. Defaults to 20 ms if zero.
	FrameDurationMs int

	// Logger is the slog logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// subscription is the per-speaker state owned by the Manager.
type subscription struct {
	sub  *audio.Subscription
	ring *audio.RingBuffer
	done chan struct{}
}

// Manager owns per-speaker subscriptions to the voice transport. Each
// subscribed speaker gets a ring buffer fed by their frame stream; speaking
// updates from the transport drive the [Tracker]. A stream-level error for
// one speaker never affects the others.
//
// All methods are safe for concurrent use.
type Manager struct {
	conn    audio.Conn
	tracker *Tracker
	logger  *slog.Logger

	bufferSeconds   int
	frameDurationMs int

	mu            sync.Mutex
	subs          map[string]*subscription
	autoSubscribe bool
	destroyed     bool

	onAudio func(userID string, frame audio.Frame)
	onError func(userID string, err error)
}

// NewManager creates a Manager and registers for the connection's speaking
// updates. Call [Manager.Destroy] when done.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bufferSeconds := cfg.BufferSeconds
	if bufferSeconds <= 0 {
		bufferSeconds = defaultBufferSeconds
	}
	frameDurationMs := cfg.FrameDurationMs
	if frameDurationMs <= 0 {
		frameDurationMs = defaultFrameDurationMs
	}

	m := &Manager{
		conn:            cfg.Conn,
		tracker:         NewTracker(),
		logger:          logger,
		bufferSeconds:   bufferSeconds,
		frameDurationMs: frameDurationMs,
		subs:            make(map[string]*subscription),
	}
	m.conn.OnSpeaking(m.handleSpeakingUpdate)
	return m
}

// Tracker returns the speaker state tracker driven by this manager.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// OnAudio registers the callback invoked for every inbound frame, after it
// has been pushed into the speaker's ring buffer.
func (m *Manager) OnAudio(cb func(userID string, frame audio.Frame)) {
	m.mu.Lock()
	m.onAudio = cb
	m.mu.Unlock()
}

// OnError registers the callback invoked for per-speaker stream errors.
func (m *Manager) OnError(cb func(userID string, err error)) {
	m.mu.Lock()
	m.onError = cb
	m.mu.Unlock()
}

// Subscribe opens an audio subscription for the speaker. Idempotent: a
// second call for an already subscribed speaker is a no-op.
func (m *Manager) Subscribe(userID string) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return fmt.Errorf("input manager: subscribe %s: manager destroyed", userID)
	}
	if _, ok := m.subs[userID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	sub, err := m.conn.Subscribe(userID)
	if err != nil {
		return fmt.Errorf("input manager: subscribe %s: %w", userID, err)
	}

	entry := &subscription{
		sub:  sub,
		ring: audio.NewRingBufferForDuration(time.Duration(m.bufferSeconds)*time.Second, time.Duration(m.frameDurationMs)*time.Millisecond),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		m.conn.Unsubscribe(userID)
		return fmt.Errorf("input manager: subscribe %s: manager destroyed", userID)
	}
	if _, ok := m.subs[userID]; ok {
		// Lost the race with a concurrent Subscribe; keep the winner.
		m.mu.Unlock()
		m.conn.Unsubscribe(userID)
		return nil
	}
	m.subs[userID] = entry
	m.mu.Unlock()

	go m.streamLoop(userID, entry)
	m.logger.Debug("speaker subscribed", "user_id", userID)
	return nil
}

// Unsubscribe tears down the speaker's subscription, clears their buffer,
// and removes their tracker state. Safe to call when not subscribed.
func (m *Manager) Unsubscribe(userID string) {
	m.mu.Lock()
	entry, ok := m.subs[userID]
	if ok {
		delete(m.subs, userID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(entry.done)
	m.conn.Unsubscribe(userID)
	entry.ring.Clear()
	m.tracker.ClearUser(userID)
	m.logger.Debug("speaker unsubscribed", "user_id", userID)
}

// SubscribeAll enables auto-subscribe mode: every speaking-start from the
// transport triggers a Subscribe for that speaker.
func (m *Manager) SubscribeAll() {
	m.mu.Lock()
	m.autoSubscribe = true
	m.mu.Unlock()
}

// StopSubscribeAll stops accepting new automatic subscriptions. Speakers
// already subscribed stay subscribed until they end naturally or are
// explicitly unsubscribed.
func (m *Manager) StopSubscribeAll() {
	m.mu.Lock()
	m.autoSubscribe = false
	m.mu.Unlock()
}

// Buffer returns the speaker's ring buffer, or nil when not subscribed.
func (m *Manager) Buffer(userID string) *audio.RingBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.subs[userID]; ok {
		return entry.ring
	}
	return nil
}

// Subscribed returns the identities of all currently subscribed speakers.
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	return ids
}

// Destroy tears down all subscriptions and callbacks. Idempotent.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.autoSubscribe = false
	subs := m.subs
	m.subs = make(map[string]*subscription)
	m.onAudio = nil
	m.onError = nil
	m.mu.Unlock()

	for userID, entry := range subs {
		close(entry.done)
		m.conn.Unsubscribe(userID)
		entry.ring.Clear()
		m.tracker.ClearUser(userID)
	}
	m.logger.Debug("input manager destroyed")
}

// streamLoop consumes one speaker's frame and error streams until the
// stream ends or the subscription is torn down.
func (m *Manager) streamLoop(userID string, entry *subscription) {
	for {
		select {
		case <-entry.done:
			return
		case frame, ok := <-entry.sub.Frames:
			if !ok {
				m.handleStreamEnd(userID)
				return
			}
			entry.ring.PushAt(frame.Data, frame.Timestamp)
			m.mu.Lock()
			cb := m.onAudio
			m.mu.Unlock()
			if cb != nil {
				cb(userID, frame)
			}
		case err, ok := <-entry.sub.Errs:
			if !ok {
				continue
			}
			m.mu.Lock()
			cb := m.onError
			m.mu.Unlock()
			m.logger.Warn("speaker stream error", "user_id", userID, "error", err)
			if cb != nil {
				cb(userID, err)
			}
		}
	}
}

// handleStreamEnd reacts to a speaker's frame stream closing. The speaker
// is marked stopped; outside auto-subscribe mode the subscription is also
// torn down.
func (m *Manager) handleStreamEnd(userID string) {
	m.tracker.StopSpeaking(userID)

	m.mu.Lock()
	auto := m.autoSubscribe
	m.mu.Unlock()
	if !auto {
		m.Unsubscribe(userID)
	}
}

// handleSpeakingUpdate forwards transport speaking events into the tracker
// and, in auto-subscribe mode, opens subscriptions for new speakers.
func (m *Manager) handleSpeakingUpdate(update audio.SpeakingUpdate) {
	m.mu.Lock()
	destroyed := m.destroyed
	auto := m.autoSubscribe
	m.mu.Unlock()
	if destroyed || update.UserID == "" {
		return
	}

	if !update.Speaking {
		m.tracker.StopSpeaking(update.UserID)
		return
	}

	m.tracker.StartSpeaking(update.UserID, update.SSRC)
	if auto {
		if err := m.Subscribe(update.UserID); err != nil {
			m.logger.Warn("auto-subscribe failed", "user_id", update.UserID, "error", err)
		}
	}
}
