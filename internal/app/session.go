package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/internal/voice/input"
	"github.com/parley-voice/parley/internal/voice/orchestrator"
	"github.com/parley-voice/parley/internal/voice/output"
	vstt "github.com/parley-voice/parley/internal/voice/stt"
	"github.com/parley-voice/parley/internal/voice/turn"
	"github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/memory"
	"github.com/parley-voice/parley/pkg/provider/agent"
	"github.com/parley-voice/parley/pkg/provider/stt"
	"github.com/parley-voice/parley/pkg/provider/tts"
)

// Transcription runs at 16 kHz mono regardless of the transport format;
// inbound frames are mixed down and resampled before they reach the STT
// stream.
const (
	sttSampleRate = 16000
	sttChannels   = 1
)

var (
	// ErrSessionActive is returned by Start when a session is already
	// running.
	ErrSessionActive = errors.New("a session is already active")

	// ErrNoSession is returned by Stop when no session is running.
	ErrNoSession = errors.New("no active session")
)

// Providers holds one provider implementation per slot, built from the
// config registry. TTS and STT are typically resilience fallback chains
// wrapping the configured primary and secondary backends. Memory is nil
// when per-user memory is disabled.
type Providers struct {
	STT    stt.Provider
	TTS    tts.Provider
	Agent  agent.Provider
	Memory memory.Store
}

// SessionInfo describes an active voice session.
type SessionInfo struct {
	// ID is the unique identifier for this session.
	ID string

	// ChannelID is the voice channel the session is connected to.
	ChannelID string

	// StartedBy is the user ID that invoked /join.
	StartedBy string

	// StartedAt is when the session came up.
	StartedAt time.Time
}

// SessionManagerConfig configures a [SessionManager].
type SessionManagerConfig struct {
	// Transport joins voice channels.
	Transport audio.Transport

	// Providers are the STT, TTS, agent, and memory backends.
	Providers *Providers

	// Config is the loaded application configuration.
	Config *config.Config

	// Metrics receives pipeline metrics. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger is the slog logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// SessionManager brings voice sessions up and down. One session is active
// at a time; Start wires the full pipeline for a channel and Stop tears it
// down in reverse order.
//
// All exported methods are safe for concurrent use.
type SessionManager struct {
	transport audio.Transport
	providers *Providers
	cfg       *config.Config
	metrics   *observe.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	active bool
	info   SessionInfo

	conn  audio.Conn
	pipe  *audio.Pipeline
	in    *input.Manager
	trans *vstt.Manager
	agg   *vstt.Aggregator
	turns *turn.Manager
	out   *output.Manager
	mem   *memory.Manager
	orch  *orchestrator.Orchestrator
}

// NewSessionManager creates a SessionManager with no active session.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		transport: cfg.Transport,
		providers: cfg.Providers,
		cfg:       cfg.Config,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start joins channelID and wires the voice pipeline: per-speaker capture,
// streaming transcription, utterance aggregation, turn taking, the
// conversation orchestrator, and playback with barge-in. Returns
// [ErrSessionActive] when a session is already running.
func (sm *SessionManager) Start(ctx context.Context, channelID, startedBy string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active {
		return ErrSessionActive
	}

	conn, err := sm.transport.Join(ctx, channelID)
	if err != nil {
		return fmt.Errorf("app: join channel %q: %w", channelID, err)
	}

	pcfg := sm.cfg.Pipeline

	in := input.NewManager(input.ManagerConfig{
		Conn:          conn,
		BufferSeconds: pcfg.Input.BufferSeconds,
		Logger:        sm.logger,
	})

	trans := vstt.NewManager(vstt.ManagerConfig{
		Provider: sm.providers.STT,
		Stream:   stt.StreamConfig{SampleRate: sttSampleRate, Channels: sttChannels},
		Logger:   sm.logger,
	})

	agg := vstt.NewAggregator(vstt.AggregatorConfig{
		FlushTimeout:  pcfg.Aggregator.FlushTimeout.Std(),
		MinConfidence: pcfg.Aggregator.MinConfidence,
		MaxBufferSize: pcfg.Aggregator.MaxBufferSize,
		HistoryLimit:  pcfg.Aggregator.HistoryLimit,
		Logger:        sm.logger,
	})

	var turnOpts []turn.Option
	if pcfg.Turn.Cooldown != nil {
		turnOpts = append(turnOpts, turn.WithCooldown(pcfg.Turn.Cooldown.Std()))
	}
	turns := turn.NewManager(turnOpts...)

	out := output.NewManager(output.ManagerConfig{
		BargeIn: output.BargeInConfig{
			Enabled:           pcfg.BargeIn.Enabled,
			Cooldown:          pcfg.BargeIn.Cooldown.Std(),
			MinSpeechDuration: pcfg.BargeIn.MinSpeechDuration.Std(),
		},
		Logger: sm.logger,
	})
	out.AttachPlayer(channelID, conn.Player())

	var mem *memory.Manager
	if sm.providers.Memory != nil {
		memOpts := []memory.Option{memory.WithLogger(sm.logger)}
		if d := sm.cfg.Memory.Timeout.Std(); d > 0 {
			memOpts = append(memOpts, memory.WithTimeout(d))
		}
		mem = memory.NewManager(sm.providers.Memory, sm.cfg.Agent.ID, memOpts...)
	}

	var addrOpts []orchestrator.AddressOption
	if sm.cfg.Agent.DisablePhoneticMatching {
		addrOpts = append(addrOpts, orchestrator.WithPhoneticMatching(false))
	}

	orchCfg := orchestrator.Config{
		ChannelID:             channelID,
		AgentID:               sm.cfg.Agent.ID,
		AgentName:             sm.cfg.Agent.Name,
		Agent:                 &instrumentedAgent{next: sm.providers.Agent, metrics: sm.metrics},
		Synth:                 &instrumentedTTS{next: sm.providers.TTS, metrics: sm.metrics},
		Output:                out,
		Turn:                  turns,
		MaxResponsesPerMinute: sm.cfg.Agent.MaxResponsesPerMinute,
		Voice:                 sm.cfg.Agent.Voice,
		AddressOptions:        addrOpts,
		Logger:                sm.logger,
	}
	if mem != nil {
		orchCfg.Memory = mem
	}

	orch, err := orchestrator.New(orchCfg)
	if err != nil {
		out.DetachPlayer(channelID)
		in.Destroy()
		agg.Destroy()
		_ = conn.Close()
		return fmt.Errorf("app: build orchestrator: %w", err)
	}

	pipe := audio.NewPipeline(sttSampleRate)
	sm.wire(channelID, pipe, in, trans, agg, turns, out, orch)

	if pcfg.Input.AutoSubscribe {
		in.SubscribeAll()
	}

	sm.active = true
	sm.info = SessionInfo{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		StartedBy: startedBy,
		StartedAt: time.Now(),
	}
	sm.conn = conn
	sm.pipe = pipe
	sm.in = in
	sm.trans = trans
	sm.agg = agg
	sm.turns = turns
	sm.out = out
	sm.mem = mem
	sm.orch = orch

	sm.metrics.ActiveSessions.Add(ctx, 1)
	sm.logger.Info("session started",
		"session_id", sm.info.ID,
		"channel_id", channelID,
		"started_by", startedBy,
	)
	return nil
}

// wire connects the pipeline stages: transport frames flow to STT, STT
// events to the aggregator, utterances to the orchestrator, and playback
// events back to the orchestrator. References run strictly downstream;
// upstream stages never see their consumers.
func (sm *SessionManager) wire(
	channelID string,
	pipe *audio.Pipeline,
	in *input.Manager,
	trans *vstt.Manager,
	agg *vstt.Aggregator,
	turns *turn.Manager,
	out *output.Manager,
	orch *orchestrator.Orchestrator,
) {
	tracker := in.Tracker()
	tracker.OnSpeakingStart(func(userID string) {
		ctx := context.Background()
		if err := trans.StartUser(ctx, userID); err != nil {
			sm.logger.Warn("open transcription stream", "user_id", userID, "error", err)
			sm.metrics.RecordProviderError(ctx, "stt", "stream")
		}
		turns.UserStartedSpeaking(userID)
		out.UserSpeechStart(channelID, userID)
		sm.metrics.ActiveSpeakers.Add(ctx, 1)
	})
	tracker.OnSpeakingStop(func(userID string, _ time.Duration) {
		turns.UserStoppedSpeaking(userID)
		out.UserSpeechStop(channelID, userID)
		sm.metrics.ActiveSpeakers.Add(context.Background(), -1)
	})

	in.OnAudio(func(userID string, frame audio.Frame) {
		trans.SendAudio(userID, pipe.Process(frame))
	})
	in.OnError(func(userID string, err error) {
		sm.metrics.RecordProviderError(context.Background(), "transport", "stream")
	})

	trans.OnTranscript(agg.HandleTranscript)
	trans.OnLatency(func(sample time.Duration) {
		sm.metrics.STTDuration.Record(context.Background(), sample.Seconds())
	})
	trans.OnError(func(userID string, err error) {
		sm.metrics.RecordProviderError(context.Background(), "stt", "session")
	})

	agg.OnUtterance(func(u vstt.Utterance) {
		ctx := context.Background()
		sm.metrics.RecordUtterance(ctx, "user")
		orch.HandleUtterance(ctx, u)
	})
	agg.OnOverlap(func(speakerIDs []string) {
		sm.logger.Debug("overlapping speakers", "speakers", speakerIDs)
	})

	out.OnPlaybackFinished(orch.HandlePlaybackFinished)
	out.OnBargeIn(func(channelID, userID string) {
		sm.metrics.RecordBargeIn(context.Background())
		orch.HandleBargeIn(channelID, userID)
	})

	orch.OnError(func(err error) {
		sm.logger.Error("conversation turn failed", "error", err)
	})
	orch.OnInterrupted(func(userID string) {
		sm.logger.Info("agent interrupted", "user_id", userID)
	})
}

// Stop tears the active session down in reverse order of Start and leaves
// the voice channel. Returns [ErrNoSession] when nothing is running.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	if !sm.active {
		sm.mu.Unlock()
		return ErrNoSession
	}
	info := sm.info
	conn, pipe, in, trans, agg, out, mem, orch := sm.conn, sm.pipe, sm.in, sm.trans, sm.agg, sm.out, sm.mem, sm.orch
	sm.active = false
	sm.info = SessionInfo{}
	sm.conn, sm.pipe, sm.in, sm.trans, sm.agg, sm.turns, sm.out, sm.mem, sm.orch = nil, nil, nil, nil, nil, nil, nil, nil, nil
	sm.mu.Unlock()

	orch.Stop()
	in.StopSubscribeAll()
	in.Destroy()
	trans.StopAll()
	agg.Flush()
	agg.Destroy()
	out.StopAll()
	out.DetachPlayer(info.ChannelID)
	if mem != nil {
		mem.DetachAll(ctx)
	}

	var closeErr error
	if err := conn.Close(); err != nil {
		closeErr = fmt.Errorf("app: leave channel %q: %w", info.ChannelID, err)
	}

	sm.metrics.ActiveSessions.Add(ctx, -1)
	stats := pipe.Stats()
	sm.logger.Info("session stopped",
		"session_id", info.ID,
		"channel_id", info.ChannelID,
		"duration", time.Since(info.StartedAt).Truncate(time.Second),
		"frames_converted", stats.PacketsProcessed,
		"avg_convert_latency", stats.AverageLatency,
	)
	return closeErr
}

// Active reports the current session's channel and start time.
func (sm *SessionManager) Active() (string, time.Time, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active {
		return "", time.Time{}, false
	}
	return sm.info.ChannelID, sm.info.StartedAt, true
}

// Info returns a copy of the active session's metadata.
func (sm *SessionManager) Info() (SessionInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info, sm.active
}
