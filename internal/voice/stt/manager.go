// Package stt bridges per-speaker audio streams into transcription events:
// the Manager fans out one streaming STT session per speaker, and the
// Aggregator merges the resulting partials into complete utterances.
package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-voice/parley/pkg/provider/stt"
)

// TranscriptionEvent is a speaker-attributed transcript. Events without a
// known speaker are attributed to [UnknownSpeaker] by the Aggregator.
type TranscriptionEvent struct {
	SpeakerID  string
	Text       string
	IsFinal    bool
	Confidence float64
}

// userSession is the per-speaker state owned by the Manager.
type userSession struct {
	handle stt.SessionHandle
	done   chan struct{}

	mu       sync.Mutex
	lastSend time.Time
}

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// Provider is the STT backend.
	Provider stt.Provider

	// Stream is the audio format for every opened session.
	Stream stt.StreamConfig

	// Logger is the slog logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns one streaming STT session per speaker. Provider results are
// stamped with the speaker identity and re-emitted; finals additionally go
// to the final-transcript callback. The manager also tracks a rolling
// average of provider latency, measured from the last audio send to the
// next transcript for that speaker.
//
// All methods are safe for concurrent use.
type Manager struct {
	provider stt.Provider
	stream   stt.StreamConfig
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*userSession

	onTranscript      func(ev TranscriptionEvent)
	onFinalTranscript func(ev TranscriptionEvent)
	onError           func(userID string, err error)
	onLatency         func(sample time.Duration)

	latencySamples int
	latencyAvg     time.Duration
}

// NewManager creates a Manager. Call [Manager.StopAll] when done.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: cfg.Provider,
		stream:   cfg.Stream,
		logger:   logger,
		sessions: make(map[string]*userSession),
	}
}

// OnTranscript registers the callback invoked for every transcript event,
// partial and final alike.
func (m *Manager) OnTranscript(cb func(ev TranscriptionEvent)) {
	m.mu.Lock()
	m.onTranscript = cb
	m.mu.Unlock()
}

// OnFinalTranscript registers the callback additionally invoked for final
// transcripts.
func (m *Manager) OnFinalTranscript(cb func(ev TranscriptionEvent)) {
	m.mu.Lock()
	m.onFinalTranscript = cb
	m.mu.Unlock()
}

// OnError registers the callback invoked for per-speaker session errors.
func (m *Manager) OnError(cb func(userID string, err error)) {
	m.mu.Lock()
	m.onError = cb
	m.mu.Unlock()
}

// OnLatency registers the callback invoked with each provider latency
// sample as it is folded into the rolling average.
func (m *Manager) OnLatency(cb func(sample time.Duration)) {
	m.mu.Lock()
	m.onLatency = cb
	m.mu.Unlock()
}

// StartUser opens a streaming session for the speaker. Idempotent: a
// second call for an already started speaker is a no-op.
func (m *Manager) StartUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	if _, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	handle, err := m.provider.StartStream(ctx, m.stream)
	if err != nil {
		return fmt.Errorf("transcription manager: start %s: %w", userID, err)
	}

	sess := &userSession{handle: handle, done: make(chan struct{})}

	m.mu.Lock()
	if _, ok := m.sessions[userID]; ok {
		// Lost the race with a concurrent StartUser; keep the winner.
		m.mu.Unlock()
		_ = handle.Close()
		return nil
	}
	m.sessions[userID] = sess
	m.mu.Unlock()

	go m.readLoop(userID, sess)
	m.logger.Debug("transcription session started", "user_id", userID)
	return nil
}

// StopUser closes the speaker's session. Safe to call when not started.
func (m *Manager) StopUser(userID string) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(sess.done)
	if err := sess.handle.Close(); err != nil {
		m.logger.Warn("transcription session close failed", "user_id", userID, "error", err)
	}
	m.logger.Debug("transcription session stopped", "user_id", userID)
}

// StopAll closes every open session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	users := make([]string, 0, len(m.sessions))
	for userID := range m.sessions {
		users = append(users, userID)
	}
	m.mu.Unlock()

	for _, userID := range users {
		m.StopUser(userID)
	}
}

// SendAudio forwards an audio chunk to the speaker's session. Chunks for
// speakers without an open session are silently dropped.
func (m *Manager) SendAudio(userID string, chunk []byte) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	sess.lastSend = time.Now()
	sess.mu.Unlock()

	if err := sess.handle.SendAudio(chunk); err != nil {
		m.emitError(userID, err)
	}
}

// ActiveUsers returns the number of speakers with an open session.
func (m *Manager) ActiveUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// AverageLatency returns the rolling average of send-to-transcript latency
// across all speakers.
func (m *Manager) AverageLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latencyAvg
}

// readLoop consumes one session's transcript and error streams until the
// session closes.
func (m *Manager) readLoop(userID string, sess *userSession) {
	partials := sess.handle.Partials()
	finals := sess.handle.Finals()
	errs := sess.handle.Errs()

	for partials != nil || finals != nil || errs != nil {
		select {
		case <-sess.done:
			return
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			m.handleTranscript(userID, sess, tr)
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			m.handleTranscript(userID, sess, tr)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.emitError(userID, err)
		}
	}
}

// handleTranscript stamps the speaker identity onto a provider result,
// records latency, and re-emits it.
func (m *Manager) handleTranscript(userID string, sess *userSession, tr stt.Transcript) {
	sess.mu.Lock()
	lastSend := sess.lastSend
	sess.mu.Unlock()
	if !lastSend.IsZero() {
		m.recordLatency(time.Since(lastSend))
	}

	ev := TranscriptionEvent{
		SpeakerID:  userID,
		Text:       tr.Text,
		IsFinal:    tr.IsFinal,
		Confidence: tr.Confidence,
	}

	m.mu.Lock()
	onTranscript := m.onTranscript
	onFinal := m.onFinalTranscript
	m.mu.Unlock()

	if onTranscript != nil {
		onTranscript(ev)
	}
	if ev.IsFinal && onFinal != nil {
		onFinal(ev)
	}
}

// recordLatency folds a sample into the running average.
func (m *Manager) recordLatency(sample time.Duration) {
	m.mu.Lock()
	m.latencySamples++
	m.latencyAvg += (sample - m.latencyAvg) / time.Duration(m.latencySamples)
	cb := m.onLatency
	m.mu.Unlock()
	if cb != nil {
		cb(sample)
	}
}

func (m *Manager) emitError(userID string, err error) {
	m.mu.Lock()
	cb := m.onError
	m.mu.Unlock()
	m.logger.Warn("transcription error", "user_id", userID, "error", err)
	if cb != nil {
		cb(userID, err)
	}
}
