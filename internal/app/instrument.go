package app

import (
	"context"
	"time"

	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/pkg/provider/agent"
	"github.com/parley-voice/parley/pkg/provider/tts"
)

// instrumentedTTS records synthesis latency and outcome counters around a
// tts.Provider.
type instrumentedTTS struct {
	next    tts.Provider
	metrics *observe.Metrics
}

var _ tts.Provider = (*instrumentedTTS)(nil)

func (t *instrumentedTTS) Name() string { return t.next.Name() }

func (t *instrumentedTTS) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	start := time.Now()
	s, err := t.next.Synthesize(ctx, text, opts)
	t.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		t.metrics.RecordSynthesis(ctx, t.next.Name(), "error")
		return nil, err
	}
	t.metrics.RecordSynthesis(ctx, t.next.Name(), "ok")
	return s, nil
}

// instrumentedAgent records round-trip latency and reply counts around an
// agent.Provider.
type instrumentedAgent struct {
	next    agent.Provider
	metrics *observe.Metrics
}

var _ agent.Provider = (*instrumentedAgent)(nil)

func (a *instrumentedAgent) Name() string { return a.next.Name() }

func (a *instrumentedAgent) Respond(ctx context.Context, agentID string, messages []agent.Message) (string, error) {
	start := time.Now()
	reply, err := a.next.Respond(ctx, agentID, messages)
	a.metrics.AgentDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(ctx, a.next.Name(), "agent")
		return "", err
	}
	if reply != "" {
		a.metrics.AgentReplies.Add(ctx, 1)
	}
	return reply, nil
}
