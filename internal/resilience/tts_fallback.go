package resilience

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-voice/parley/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] across multiple synthesis backends.
// The preferred backend serves every request while healthy; when it fails or
// its breaker is open, the next backend takes over for that request. Both
// backends failing yields one combined error naming each.
type TTSFallback struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, cfg ChainConfig) *TTSFallback {
	return &TTSFallback{
		chain: NewChain(primary.Name(), primary, cfg),
	}
}

// AddFallback registers provider as the next backend in preference order.
func (f *TTSFallback) AddFallback(provider tts.Provider) {
	f.chain.Add(provider.Name(), provider)
}

// Name identifies the composed provider, e.g. "fallback(cartesia,elevenlabs)".
func (f *TTSFallback) Name() string {
	return fmt.Sprintf("fallback(%s)", strings.Join(f.chain.Names(), ","))
}

// Synthesize converts text to speech using the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	return RunWith(f.chain, func(_ string, p tts.Provider) (*tts.Synthesis, error) {
		return p.Synthesize(ctx, text, opts)
	})
}
