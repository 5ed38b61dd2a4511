// Package mock provides a mock conversational-agent provider for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/parley-voice/parley/pkg/provider/agent"
)

// Compile-time interface assertion.
var _ agent.Provider = (*Provider)(nil)

// RespondCall records the arguments of one Respond invocation.
type RespondCall struct {
	AgentID  string
	Messages []agent.Message
}

// Provider is a mock implementation of agent.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Reply is returned by Respond when RespondErr is nil.
	Reply string

	// RespondErr, when set, is returned by every Respond call.
	RespondErr error

	// RespondDelay, when positive, blocks Respond until the delay elapses
	// or the context is cancelled.
	RespondDelay time.Duration

	// RespondCalls records every Respond invocation.
	RespondCalls []RespondCall
}

// Name implements agent.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Respond implements agent.Provider.
func (p *Provider) Respond(ctx context.Context, agentID string, messages []agent.Message) (string, error) {
	p.mu.Lock()
	p.RespondCalls = append(p.RespondCalls, RespondCall{
		AgentID:  agentID,
		Messages: append([]agent.Message(nil), messages...),
	})
	delay := p.RespondDelay
	reply := p.Reply
	err := p.RespondErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// CallCount returns the number of Respond invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RespondCalls)
}

// LastCall returns the most recent Respond invocation, or nil.
func (p *Provider) LastCall() *RespondCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.RespondCalls) == 0 {
		return nil
	}
	call := p.RespondCalls[len(p.RespondCalls)-1]
	return &call
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RespondCalls = nil
}
