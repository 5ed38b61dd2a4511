package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parley-voice/parley/internal/voice/output"
	"github.com/parley-voice/parley/internal/voice/stt"
	"github.com/parley-voice/parley/pkg/provider/agent"
	agentmock "github.com/parley-voice/parley/pkg/provider/agent/mock"
	"github.com/parley-voice/parley/pkg/provider/tts"
)

type fakeSynth struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (s *fakeSynth) Synthesize(_ context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Synthesis{
		Data:        make([]byte, 320),
		SampleRate:  16000,
		Channels:    1,
		Text:        text,
		Voice:       opts.Voice,
		RequestedAt: time.Now(),
	}, nil
}

func (s *fakeSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakePlayback struct {
	mu      sync.Mutex
	playErr error
	plays   []output.Segment
	stops   int
}

func (p *fakePlayback) Play(_ string, seg output.Segment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.plays = append(p.plays, seg)
	return nil
}

func (p *fakePlayback) Stop(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayback) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

func (p *fakePlayback) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type fakeTurn struct {
	mu       sync.Mutex
	canSpeak bool
	started  int
	stopped  int
}

func (t *fakeTurn) CanBotSpeak() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canSpeak
}

func (t *fakeTurn) BotStartedSpeaking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started++
}

func (t *fakeTurn) BotStoppedSpeaking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
}

type fakeMemory struct {
	mu        sync.Mutex
	attachErr error
	attaches  []string
	detaches  []string
}

func (m *fakeMemory) AttachUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attaches = append(m.attaches, userID)
	return m.attachErr
}

func (m *fakeMemory) DetachUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detaches = append(m.detaches, userID)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return o.State() == want })
}

type harness struct {
	orch  *Orchestrator
	agent *agentmock.Provider
	synth *fakeSynth
	out   *fakePlayback
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		agent: &agentmock.Provider{Reply: "hello there"},
		synth: &fakeSynth{},
		out:   &fakePlayback{},
	}
	cfg := Config{
		ChannelID: "chan-1",
		AgentID:   "agent-1",
		AgentName: "Bot",
		Agent:     h.agent,
		Synth:     h.synth,
		Output:    h.out,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
	return h
}

func finalUtterance(speakerID, text string) stt.Utterance {
	return stt.Utterance{SpeakerID: speakerID, Text: text, Confidence: 0.9, IsFinal: true}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("empty config should be rejected")
	}
	if _, err := New(Config{ChannelID: "c", AgentName: "Bot", Synth: &fakeSynth{}, Output: &fakePlayback{}}); err == nil {
		t.Error("missing agent provider should be rejected")
	}
}

func TestUnaddressedUtteranceIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "what time is it"))

	time.Sleep(20 * time.Millisecond)
	if h.agent.CallCount() != 0 {
		t.Errorf("agent calls = %d, want 0", h.agent.CallCount())
	}
	if got := h.orch.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestAddressedUtteranceCallsAgentOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{name: "exact name", text: "hey Bot, hello"},
		{name: "lower case", text: "bot are you there"},
		{name: "mention", text: "@bot are you there"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.orch.HandleUtterance(context.Background(), finalUtterance("alice", tt.text))

			waitFor(t, "agent call", func() bool { return h.agent.CallCount() == 1 })
			waitState(t, h.orch, StateSpeaking)
			if h.agent.CallCount() != 1 {
				t.Errorf("agent calls = %d, want 1", h.agent.CallCount())
			}
		})
	}
}

func TestNonFinalUtteranceIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.orch.HandleUtterance(context.Background(), stt.Utterance{
		SpeakerID: "alice", Text: "hey Bot hello", Confidence: 0.9, IsFinal: false,
	})

	time.Sleep(20 * time.Millisecond)
	if h.agent.CallCount() != 0 {
		t.Errorf("agent calls = %d, want 0 for partial", h.agent.CallCount())
	}
}

func TestNameStrippedBeforeAgentCall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot, hello"))

	waitFor(t, "agent call", func() bool { return h.agent.CallCount() == 1 })
	call := h.agent.LastCall()
	if call.AgentID != "agent-1" {
		t.Errorf("agent id = %q, want agent-1", call.AgentID)
	}
	if len(call.Messages) != 1 || call.Messages[0].Content != "hey hello" {
		t.Errorf("messages = %+v, want single user message %q", call.Messages, "hey hello")
	}
	if call.Messages[0].Role != "user" {
		t.Errorf("role = %q, want user", call.Messages[0].Role)
	}
}

func TestSecondUtteranceDuringTurnIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) {})
	h.agent.RespondDelay = 50 * time.Millisecond

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot, hello"))
	waitState(t, h.orch, StateProcessing)

	// While processing.
	h.orch.HandleUtterance(context.Background(), finalUtterance("bob", "Bot me too"))

	waitState(t, h.orch, StateSpeaking)

	// While speaking.
	h.orch.HandleUtterance(context.Background(), finalUtterance("bob", "Bot again"))

	time.Sleep(20 * time.Millisecond)
	if got := h.agent.CallCount(); got != 1 {
		t.Errorf("agent calls = %d, want exactly 1", got)
	}
}

func TestHappyPathEndToEnd(t *testing.T) {
	t.Parallel()

	turn := &fakeTurn{canSpeak: true}
	h := newHarness(t, func(cfg *Config) {
		cfg.Turn = turn
	})

	var states []State
	var stateMu sync.Mutex
	h.orch.OnStateChange(func(from, to State) {
		stateMu.Lock()
		states = append(states, to)
		stateMu.Unlock()
	})

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot, hello"))

	waitState(t, h.orch, StateSpeaking)
	waitFor(t, "played segment", func() bool { return h.out.playCount() == 1 })

	if h.synth.callCount() != 1 {
		t.Errorf("synthesis calls = %d, want 1", h.synth.callCount())
	}
	if h.orch.LastResponseAt().IsZero() {
		t.Error("response timestamp should be recorded")
	}

	h.orch.HandlePlaybackFinished("chan-1")
	waitState(t, h.orch, StateIdle)

	if got := h.orch.HistoryLen(); got != 2 {
		t.Errorf("history length = %d, want 2", got)
	}
	hist := h.orch.History()
	if hist[0].Role != "user" || hist[1].Role != "assistant" {
		t.Errorf("history roles = %q, %q", hist[0].Role, hist[1].Role)
	}

	turn.mu.Lock()
	started, stopped := turn.started, turn.stopped
	turn.mu.Unlock()
	if started != 1 || stopped != 1 {
		t.Errorf("turn speaking transitions = %d/%d, want 1/1", started, stopped)
	}

	waitFor(t, "state transitions", func() bool {
		stateMu.Lock()
		defer stateMu.Unlock()
		return len(states) == 3
	})
	stateMu.Lock()
	defer stateMu.Unlock()
	want := []State{StateProcessing, StateSpeaking, StateIdle}
	for i, s := range want {
		if states[i] != s {
			t.Errorf("transition %d = %v, want %v", i, states[i], s)
		}
	}
}

func TestAgentErrorRevertsToIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.agent.RespondErr = errors.New("backend down")

	var errCount int
	var mu sync.Mutex
	h.orch.OnError(func(error) {
		mu.Lock()
		errCount++
		mu.Unlock()
	})

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))

	waitState(t, h.orch, StateIdle)
	waitFor(t, "error event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return errCount == 1
	})
	if h.synth.callCount() != 0 {
		t.Error("no synthesis should happen after agent failure")
	}
	if h.orch.HistoryLen() != 0 {
		t.Error("failed turn should not be recorded")
	}
}

func TestEmptyReplyRevertsToIdleWithoutError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.agent.Reply = ""

	errCh := make(chan error, 1)
	h.orch.OnError(func(err error) { errCh <- err })

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))

	waitFor(t, "agent call", func() bool { return h.agent.CallCount() == 1 })
	waitState(t, h.orch, StateIdle)

	select {
	case err := <-errCh:
		t.Errorf("unexpected error event: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	if h.orch.HistoryLen() != 0 {
		t.Error("empty reply should not be recorded")
	}
}

func TestSynthesisFailureRevertsSpeakingState(t *testing.T) {
	t.Parallel()

	turn := &fakeTurn{canSpeak: true}
	h := newHarness(t, func(cfg *Config) { cfg.Turn = turn })
	h.synth.err = errors.New("both providers failed")

	errCh := make(chan error, 1)
	h.orch.OnError(func(err error) { errCh <- err })

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))

	waitState(t, h.orch, StateIdle)
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an error event")
	}

	turn.mu.Lock()
	defer turn.mu.Unlock()
	if turn.started != 1 || turn.stopped != 1 {
		t.Errorf("turn speaking transitions = %d/%d, want 1/1", turn.started, turn.stopped)
	}
	if h.out.playCount() != 0 {
		t.Error("nothing should reach playback")
	}
}

func TestBargeInStopsPlayback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	interruptedCh := make(chan string, 1)
	h.orch.OnInterrupted(func(userID string) { interruptedCh <- userID })

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	waitState(t, h.orch, StateSpeaking)

	// An event for another channel is ignored.
	h.orch.HandleBargeIn("chan-other", "bob")
	if got := h.orch.State(); got != StateSpeaking {
		t.Fatalf("state after foreign barge-in = %v, want speaking", got)
	}

	h.orch.HandleBargeIn("chan-1", "bob")
	waitState(t, h.orch, StateIdle)

	if h.out.stopCount() != 1 {
		t.Errorf("playback stops = %d, want 1", h.out.stopCount())
	}
	select {
	case userID := <-interruptedCh:
		if userID != "bob" {
			t.Errorf("interrupted by %q, want bob", userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an interrupted event")
	}
}

func TestPlaybackFinishedForOtherChannelIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	waitState(t, h.orch, StateSpeaking)

	h.orch.HandlePlaybackFinished("chan-other")
	if got := h.orch.State(); got != StateSpeaking {
		t.Errorf("state = %v, want speaking after foreign event", got)
	}
}

func TestRateLimitBlocksAgentCall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) {
		cfg.MaxResponsesPerMinute = 1
	})

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	waitState(t, h.orch, StateSpeaking)
	h.orch.HandlePlaybackFinished("chan-1")
	waitState(t, h.orch, StateIdle)

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "Bot again"))
	time.Sleep(20 * time.Millisecond)
	if got := h.agent.CallCount(); got != 1 {
		t.Errorf("agent calls = %d, want 1 after rate limit", got)
	}
}

func TestClosedFloorBlocksAgentCall(t *testing.T) {
	t.Parallel()

	turn := &fakeTurn{canSpeak: false}
	h := newHarness(t, func(cfg *Config) { cfg.Turn = turn })

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	time.Sleep(20 * time.Millisecond)
	if h.agent.CallCount() != 0 {
		t.Error("agent should not be called while the floor is closed")
	}
}

func TestMemoryAttachedAroundAgentCall(t *testing.T) {
	t.Parallel()

	mem := &fakeMemory{}
	h := newHarness(t, func(cfg *Config) { cfg.Memory = mem })

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	waitState(t, h.orch, StateSpeaking)

	mem.mu.Lock()
	defer mem.mu.Unlock()
	if len(mem.attaches) != 1 || mem.attaches[0] != "alice" {
		t.Errorf("attaches = %v, want [alice]", mem.attaches)
	}
	if len(mem.detaches) != 1 || mem.detaches[0] != "alice" {
		t.Errorf("detaches = %v, want [alice]", mem.detaches)
	}
}

func TestMemoryFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	mem := &fakeMemory{attachErr: errors.New("store unavailable")}
	h := newHarness(t, func(cfg *Config) { cfg.Memory = mem })

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	waitState(t, h.orch, StateSpeaking)

	if h.agent.CallCount() != 1 {
		t.Error("agent call should proceed despite memory failure")
	}
}

func TestStopIgnoresSubsequentEvents(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.orch.Stop()
	h.orch.Stop() // idempotent

	if got := h.orch.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}

	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	time.Sleep(20 * time.Millisecond)
	if h.agent.CallCount() != 0 {
		t.Error("stopped orchestrator should ignore utterances")
	}
}

func TestStopWhileSpeakingHaltsPlayback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	waitState(t, h.orch, StateSpeaking)

	h.orch.Stop()
	if h.out.stopCount() != 1 {
		t.Errorf("playback stops = %d, want 1", h.out.stopCount())
	}
}

func TestResetHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.orch.HandleUtterance(context.Background(), finalUtterance("alice", "hey Bot"))
	waitState(t, h.orch, StateSpeaking)
	waitFor(t, "history", func() bool { return h.orch.HistoryLen() == 2 })

	h.orch.ResetHistory()
	if got := h.orch.HistoryLen(); got != 0 {
		t.Errorf("history length after reset = %d, want 0", got)
	}
}

var _ agent.Provider = (*agentmock.Provider)(nil)
