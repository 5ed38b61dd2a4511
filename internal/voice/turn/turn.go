// Package turn decides whether the agent may take the floor. It is a pure
// in-memory state machine with no I/O: the orchestrator feeds it speaking
// events and asks CanBotSpeak before responding.
package turn

import (
	"sync"
	"time"
)

// defaultCooldown is the window after the agent stops speaking during
// which it will not immediately speak again.
const defaultCooldown = time.Second

// Manager tracks the set of active human speakers, whether the agent is
// speaking, and the post-speech cooldown window. The floor is open iff no
// human is speaking and the agent is not speaking; the agent may speak iff
// the floor is open and the cooldown has elapsed.
//
// The machine has no terminal state; it is reset only by process restart.
// All methods are safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	activeSpeakers map[string]struct{}
	agentSpeaking  bool
	lastSpeaker    string
	cooldownEnd    time.Time
	cooldown       time.Duration

	// now is swapped out by tests.
	now func() time.Time
}

// Option is a functional option for Manager.
type Option func(*Manager)

// WithCooldown overrides the post-speech cooldown. Zero means no
// restriction beyond the floor being open.
func WithCooldown(d time.Duration) Option {
	return func(m *Manager) {
		m.cooldown = d
	}
}

// NewManager creates a Manager with an open floor.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		activeSpeakers: make(map[string]struct{}),
		cooldown:       defaultCooldown,
		now:            time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// UserStartedSpeaking adds the speaker to the active set. Idempotent.
func (m *Manager) UserStartedSpeaking(userID string) {
	m.mu.Lock()
	m.activeSpeakers[userID] = struct{}{}
	m.mu.Unlock()
}

// UserStoppedSpeaking removes the speaker from the active set and records
// them as the last speaker. A stop for a speaker not in the active set is
// a no-op and does not overwrite lastSpeaker.
func (m *Manager) UserStoppedSpeaking(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activeSpeakers[userID]; !ok {
		return
	}
	delete(m.activeSpeakers, userID)
	m.lastSpeaker = userID
}

// BotStartedSpeaking marks the agent as holding the floor.
func (m *Manager) BotStartedSpeaking() {
	m.mu.Lock()
	m.agentSpeaking = true
	m.mu.Unlock()
}

// BotStoppedSpeaking clears the agent-speaking flag and arms the cooldown
// window.
func (m *Manager) BotStoppedSpeaking() {
	m.mu.Lock()
	m.agentSpeaking = false
	m.cooldownEnd = m.now().Add(m.cooldown)
	m.mu.Unlock()
}

// IsFloorOpen reports whether no one, human or agent, is speaking.
func (m *Manager) IsFloorOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activeSpeakers) == 0 && !m.agentSpeaking
}

// CanBotSpeak reports whether the agent may take the floor: the floor is
// open and the post-speech cooldown has elapsed.
func (m *Manager) CanBotSpeak() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.activeSpeakers) > 0 || m.agentSpeaking {
		return false
	}
	return !m.now().Before(m.cooldownEnd)
}

// LastSpeaker returns the identity of the most recently stopped speaker,
// or "" when no one has spoken yet.
func (m *Manager) LastSpeaker() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSpeaker
}

// ActiveSpeakerCount returns the size of the active speaker set.
func (m *Manager) ActiveSpeakerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activeSpeakers)
}
