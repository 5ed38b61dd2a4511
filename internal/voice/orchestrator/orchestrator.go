// Package orchestrator coordinates a single voice conversation: it watches
// finalized utterances for a direct address to the agent, calls the
// conversational backend, synthesizes the reply, and hands the audio to the
// output layer, reacting to playback-finished and barge-in notifications to
// drive its own state machine.
//
// The orchestrator holds only outbound capability references (agent,
// synthesizer, playback commands) and receives inbound events through
// exported handler methods that the wiring layer connects to the upstream
// components' callbacks. It never subscribes to anything itself, so there is
// no reference cycle between it and the output layer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-voice/parley/internal/voice/output"
	"github.com/parley-voice/parley/internal/voice/stt"
	"github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/provider/agent"
	"github.com/parley-voice/parley/pkg/provider/tts"
)

// State enumerates the orchestrator's lifecycle phases.
type State int

const (
	// StateIdle means the orchestrator is waiting for an addressed utterance.
	StateIdle State = iota
	// StateProcessing means an agent call is in flight.
	StateProcessing
	// StateSpeaking means a synthesized reply is playing or queued.
	StateSpeaking
	// StateStopped means the orchestrator was shut down and ignores events.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Playback is the subset of the output layer the orchestrator commands.
type Playback interface {
	Play(channelID string, seg output.Segment) error
	Stop(channelID string)
}

// Synthesizer converts reply text into audio. The resilience layer's
// fallback chain satisfies this, as does any single tts.Provider.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error)
}

// TurnCoordinator receives the agent's speaking state and answers whether
// the agent may take the floor.
type TurnCoordinator interface {
	CanBotSpeak() bool
	BotStartedSpeaking()
	BotStoppedSpeaking()
}

// MemoryAttacher attaches per-user context around an agent call. Failures
// are logged and ignored; the conversation proceeds without memory.
type MemoryAttacher interface {
	AttachUser(ctx context.Context, userID string) error
	DetachUser(ctx context.Context, userID string) error
}

// HistoryEntry is one recorded conversation turn.
type HistoryEntry struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Config assembles an [Orchestrator]. ChannelID, AgentName, Agent, Synth,
// and Output are required; Turn and Memory are optional integrations.
type Config struct {
	// ChannelID identifies the voice channel this orchestrator serves.
	// Playback and barge-in events for other channels are ignored.
	ChannelID string

	// AgentID scopes agent calls to one conversation on the backend.
	AgentID string

	// AgentName is the spoken name users address the agent by.
	AgentName string

	Agent  agent.Provider
	Synth  Synthesizer
	Output Playback

	// Turn, when set, receives the agent's speaking state and gates
	// responses on the conversational floor being open.
	Turn TurnCoordinator

	// Memory, when set, is attached before and detached after every agent
	// call for the speaking user.
	Memory MemoryAttacher

	// MaxResponsesPerMinute caps replies in a sliding 60-second window.
	// Zero or less disables the limit.
	MaxResponsesPerMinute int

	// Voice selects the synthesis voice. Empty uses the provider default.
	Voice string

	// AddressOptions tune how the agent name is recognized in transcripts.
	AddressOptions []AddressOption

	Logger *slog.Logger
}

// Orchestrator is the per-channel conversation coordinator. Create it with
// [New]. All exported methods are safe for concurrent use.
type Orchestrator struct {
	channelID string
	agentID   string
	voice     string

	agt     agent.Provider
	synth   Synthesizer
	out     Playback
	turn    TurnCoordinator
	memory  MemoryAttacher
	address *AddressDetector
	limiter *RateLimiter
	logger  *slog.Logger

	mu             sync.Mutex
	state          State
	history        []HistoryEntry
	lastResponseAt time.Time

	onError       func(err error)
	onInterrupted func(userID string)
	onStateChange func(from, to State)
}

// New validates cfg and returns a ready orchestrator in the idle state.
func New(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.ChannelID == "" {
		errs = append(errs, errors.New("channel id is required"))
	}
	if cfg.AgentName == "" {
		errs = append(errs, errors.New("agent name is required"))
	}
	if cfg.Agent == nil {
		errs = append(errs, errors.New("agent provider is required"))
	}
	if cfg.Synth == nil {
		errs = append(errs, errors.New("synthesizer is required"))
	}
	if cfg.Output == nil {
		errs = append(errs, errors.New("output playback is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("orchestrator config: %w", errors.Join(errs...))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		channelID: cfg.ChannelID,
		agentID:   cfg.AgentID,
		voice:     cfg.Voice,
		agt:       cfg.Agent,
		synth:     cfg.Synth,
		out:       cfg.Output,
		turn:      cfg.Turn,
		memory:    cfg.Memory,
		address:   NewAddressDetector(cfg.AgentName, cfg.AddressOptions...),
		limiter:   NewRateLimiter(cfg.MaxResponsesPerMinute),
		logger:    logger.With("component", "orchestrator", "channel_id", cfg.ChannelID),
		state:     StateIdle,
	}, nil
}

// OnError registers the callback invoked when an agent call, synthesis, or
// playback hand-off fails. Called from the turn goroutine.
func (o *Orchestrator) OnError(cb func(err error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onError = cb
}

// OnInterrupted registers the callback invoked when a user barges in over
// the agent's reply.
func (o *Orchestrator) OnInterrupted(cb func(userID string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onInterrupted = cb
}

// OnStateChange registers the callback invoked after every state
// transition.
func (o *Orchestrator) OnStateChange(cb func(from, to State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onStateChange = cb
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// HandleUtterance feeds one aggregated utterance into the orchestrator.
// Non-final utterances, utterances that do not address the agent, and
// utterances arriving while a turn is already in progress are ignored. An
// accepted utterance starts the agent call asynchronously.
func (o *Orchestrator) HandleUtterance(ctx context.Context, u stt.Utterance) {
	if !u.IsFinal {
		return
	}

	text, addressed := o.address.Address(u.Text)
	if !addressed {
		return
	}

	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		o.logger.Debug("utterance ignored, turn in progress", "state", state.String(), "speaker_id", u.SpeakerID)
		return
	}
	if o.turn != nil && !o.turn.CanBotSpeak() {
		o.mu.Unlock()
		o.logger.Debug("utterance ignored, floor not available", "speaker_id", u.SpeakerID)
		return
	}
	if !o.limiter.Allow() {
		o.mu.Unlock()
		o.logger.Warn("utterance ignored, response rate limit reached", "speaker_id", u.SpeakerID)
		return
	}
	changed := o.setStateLocked(StateProcessing)
	o.mu.Unlock()
	notify(changed)

	go o.runTurn(ctx, u.SpeakerID, text)
}

// runTurn executes one conversation turn: agent call, synthesis, playback
// hand-off. It always leaves the orchestrator idle or speaking.
func (o *Orchestrator) runTurn(ctx context.Context, speakerID, text string) {
	o.attachMemory(ctx, speakerID)
	reply, err := o.agt.Respond(ctx, o.agentID, []agent.Message{
		{Role: "user", Content: text},
	})
	o.detachMemory(ctx, speakerID)

	if err != nil {
		o.logger.Error("agent call failed", "speaker_id", speakerID, "error", err)
		o.toIdle()
		o.emitError(fmt.Errorf("agent call: %w", err))
		return
	}
	if reply == "" {
		o.logger.Debug("agent returned no usable reply", "speaker_id", speakerID)
		o.toIdle()
		return
	}

	now := time.Now()
	o.mu.Lock()
	if o.state != StateProcessing {
		// Stopped while the agent call was in flight.
		o.mu.Unlock()
		return
	}
	o.lastResponseAt = now
	o.history = append(o.history,
		HistoryEntry{Role: "user", Content: text, Timestamp: now},
		HistoryEntry{Role: "assistant", Content: reply, Timestamp: now},
	)
	changed := o.setStateLocked(StateSpeaking)
	o.mu.Unlock()
	notify(changed)

	if o.turn != nil {
		o.turn.BotStartedSpeaking()
	}

	if err := o.speak(ctx, reply); err != nil {
		o.logger.Error("reply playback failed", "error", err)
		if o.turn != nil {
			o.turn.BotStoppedSpeaking()
		}
		o.toIdle()
		o.emitError(err)
	}
}

// speak synthesizes reply and hands the audio to the output layer.
func (o *Orchestrator) speak(ctx context.Context, reply string) error {
	syn, err := o.synth.Synthesize(ctx, reply, tts.Options{Voice: o.voice})
	if err != nil {
		return fmt.Errorf("synthesize reply: %w", err)
	}
	seg := output.Segment{
		PCM: syn.Data,
		Format: audio.Format{
			SampleRate: syn.SampleRate,
			Channels:   syn.Channels,
		},
		Text:        syn.Text,
		RequestedAt: syn.RequestedAt,
	}
	if err := o.out.Play(o.channelID, seg); err != nil {
		return fmt.Errorf("enqueue reply playback: %w", err)
	}
	return nil
}

// HandlePlaybackFinished reacts to the output layer finishing the agent's
// reply. Events for other channels are ignored.
func (o *Orchestrator) HandlePlaybackFinished(channelID string) {
	if channelID != o.channelID {
		return
	}
	o.mu.Lock()
	if o.state != StateSpeaking {
		o.mu.Unlock()
		return
	}
	changed := o.setStateLocked(StateIdle)
	o.mu.Unlock()
	notify(changed)

	if o.turn != nil {
		o.turn.BotStoppedSpeaking()
	}
}

// HandleBargeIn reacts to a user interrupting the agent's reply. Playback
// stops and the orchestrator returns to idle. Events for other channels are
// ignored.
func (o *Orchestrator) HandleBargeIn(channelID, userID string) {
	if channelID != o.channelID {
		return
	}
	o.mu.Lock()
	if o.state != StateSpeaking {
		o.mu.Unlock()
		return
	}
	changed := o.setStateLocked(StateIdle)
	cb := o.onInterrupted
	o.mu.Unlock()
	notify(changed)

	o.out.Stop(o.channelID)
	if o.turn != nil {
		o.turn.BotStoppedSpeaking()
	}
	o.logger.Info("reply interrupted", "user_id", userID)
	if cb != nil {
		cb(userID)
	}
}

// Stop shuts the orchestrator down. All subsequent events are ignored.
// Idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state == StateStopped {
		o.mu.Unlock()
		return
	}
	wasSpeaking := o.state == StateSpeaking
	changed := o.setStateLocked(StateStopped)
	o.mu.Unlock()
	notify(changed)

	if wasSpeaking {
		o.out.Stop(o.channelID)
		if o.turn != nil {
			o.turn.BotStoppedSpeaking()
		}
	}
}

// History returns a copy of the recorded conversation turns, oldest first.
func (o *Orchestrator) History() []HistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]HistoryEntry, len(o.history))
	copy(out, o.history)
	return out
}

// HistoryLen returns the number of recorded conversation turns.
func (o *Orchestrator) HistoryLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.history)
}

// ResetHistory discards the recorded conversation turns.
func (o *Orchestrator) ResetHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}

// LastResponseAt returns when the agent last produced a reply, or the zero
// time when it has not replied yet.
func (o *Orchestrator) LastResponseAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastResponseAt
}

func (o *Orchestrator) toIdle() {
	o.mu.Lock()
	if o.state == StateStopped {
		o.mu.Unlock()
		return
	}
	changed := o.setStateLocked(StateIdle)
	o.mu.Unlock()
	notify(changed)
}

// setStateLocked transitions to next and returns the state-change
// notification for the caller to invoke after releasing o.mu, keeping
// notifications in transition order. Caller holds o.mu.
func (o *Orchestrator) setStateLocked(next State) func() {
	if o.state == next {
		return nil
	}
	prev := o.state
	o.state = next
	cb := o.onStateChange
	if cb == nil {
		return nil
	}
	return func() { cb(prev, next) }
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

func (o *Orchestrator) attachMemory(ctx context.Context, userID string) {
	if o.memory == nil {
		return
	}
	if err := o.memory.AttachUser(ctx, userID); err != nil {
		o.logger.Warn("memory attach failed, continuing without", "user_id", userID, "error", err)
	}
}

func (o *Orchestrator) detachMemory(ctx context.Context, userID string) {
	if o.memory == nil {
		return
	}
	if err := o.memory.DetachUser(ctx, userID); err != nil {
		o.logger.Warn("memory detach failed", "user_id", userID, "error", err)
	}
}

func (o *Orchestrator) emitError(err error) {
	o.mu.Lock()
	cb := o.onError
	o.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
