package resilience

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-voice/parley/pkg/provider/agent"
)

// AgentFallback implements [agent.Provider] across multiple conversational
// backends. A secondary backend answering instead of the primary loses any
// server-side conversation state the primary held, so fallbacks here are
// best reserved for stateless backends.
type AgentFallback struct {
	chain *Chain[agent.Provider]
}

var _ agent.Provider = (*AgentFallback)(nil)

// NewAgentFallback creates an [AgentFallback] with primary as the preferred
// backend.
func NewAgentFallback(primary agent.Provider, cfg ChainConfig) *AgentFallback {
	return &AgentFallback{
		chain: NewChain(primary.Name(), primary, cfg),
	}
}

// AddFallback registers provider as the next backend in preference order.
func (f *AgentFallback) AddFallback(provider agent.Provider) {
	f.chain.Add(provider.Name(), provider)
}

// Name identifies the composed provider.
func (f *AgentFallback) Name() string {
	return fmt.Sprintf("fallback(%s)", strings.Join(f.chain.Names(), ","))
}

// Respond forwards the conversation turn to the first healthy backend.
func (f *AgentFallback) Respond(ctx context.Context, agentID string, messages []agent.Message) (string, error) {
	return RunWith(f.chain, func(_ string, p agent.Provider) (string, error) {
		return p.Respond(ctx, agentID, messages)
	})
}
