// Package mock provides a mock TTS provider for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/parley-voice/parley/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records the arguments of one Synthesize invocation.
type SynthesizeCall struct {
	Text string
	Opts tts.Options
}

// Provider is a mock implementation of tts.Provider. Configure the fields
// before use; the zero value returns an empty 16 kHz mono synthesis.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// SynthesizeResult is returned by Synthesize when SynthesizeErr is nil.
	// When nil, a minimal non-empty synthesis is fabricated from the text.
	SynthesizeResult *tts.Synthesis

	// SynthesizeErr, when set, is returned by every Synthesize call.
	SynthesizeErr error

	// SynthesizeDelay, when positive, blocks Synthesize until the delay
	// elapses or the context is cancelled.
	SynthesizeDelay time.Duration

	// SynthesizeCalls records every Synthesize invocation.
	SynthesizeCalls []SynthesizeCall
}

// Name implements tts.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Opts: opts})
	delay := p.SynthesizeDelay
	result := p.SynthesizeResult
	err := p.SynthesizeErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
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

// CallCount returns the number of Synthesize invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}
