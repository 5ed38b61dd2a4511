package resilience

import (
	"context"

	"github.com/parley-voice/parley/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] across multiple transcription
// backends. Failover covers stream establishment only; once a session is
// open, per-session errors stay on that session's error channel.
type STTFallback struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend. name labels the backend in logs and combined errors.
func NewSTTFallback(name string, primary stt.Provider, cfg ChainConfig) *STTFallback {
	return &STTFallback{
		chain: NewChain(name, primary, cfg),
	}
}

// AddFallback registers provider as the next backend in preference order.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.chain.Add(name, provider)
}

// StartStream opens a transcription session on the first healthy backend.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return RunWith(f.chain, func(_ string, p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
