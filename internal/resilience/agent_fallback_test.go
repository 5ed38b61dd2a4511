package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/parley-voice/parley/pkg/provider/agent"
	"github.com/parley-voice/parley/pkg/provider/agent/mock"
)

func userMessage(text string) []agent.Message {
	return []agent.Message{{Role: "user", Content: text}}
}

func TestAgentFallbackPrimaryServes(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{ProviderName: "letta", Reply: "from letta"}
	secondary := &mock.Provider{ProviderName: "openai", Reply: "from openai"}
	f := NewAgentFallback(primary, ChainConfig{})
	f.AddFallback(secondary)

	reply, err := f.Respond(context.Background(), "agent-1", userMessage("hi"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "from letta" {
		t.Errorf("reply = %q, want primary's reply", reply)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary calls = %d, want 0", secondary.CallCount())
	}
}

func TestAgentFallbackSecondaryServesOnPrimaryFailure(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{ProviderName: "letta", RespondErr: errors.New("letta down")}
	secondary := &mock.Provider{ProviderName: "openai", Reply: "from openai"}
	f := NewAgentFallback(primary, ChainConfig{})
	f.AddFallback(secondary)

	reply, err := f.Respond(context.Background(), "agent-1", userMessage("hi"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "from openai" {
		t.Errorf("reply = %q, want fallback's reply", reply)
	}
}

func TestAgentFallbackBothFailing(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{ProviderName: "letta", RespondErr: errors.New("letta down")}
	secondary := &mock.Provider{ProviderName: "openai", RespondErr: errors.New("openai 429")}
	f := NewAgentFallback(primary, ChainConfig{})
	f.AddFallback(secondary)

	_, err := f.Respond(context.Background(), "agent-1", userMessage("hi"))
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("err = %v, want ErrAllProvidersFailed", err)
	}
}

func TestAgentFallbackName(t *testing.T) {
	t.Parallel()

	f := NewAgentFallback(&mock.Provider{ProviderName: "letta"}, ChainConfig{})
	f.AddFallback(&mock.Provider{ProviderName: "openai"})
	if got := f.Name(); got != "fallback(letta,openai)" {
		t.Errorf("Name = %q", got)
	}
}
