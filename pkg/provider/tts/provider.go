// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Cartesia or
// ElevenLabs) and presents a uniform request/response interface: text in, PCM
// audio out. Providers may stream internally; the caller receives the
// complete utterance so playback can be queued as one segment.
//
// The orchestration layer composes two providers with automatic fallback: a
// failing primary is bypassed in favour of the secondary, and only a failure
// of both propagates to the caller. See the resilience package.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel.
type Provider interface {
	// Name returns a short stable identifier for the provider (e.g.
	// "cartesia"), used in logs, metrics, and combined fallback errors.
	Name() string

	// Synthesize converts text into speech audio using the supplied options.
	// It blocks until the full utterance is available or ctx is cancelled.
	//
	// Returns an error if the provider cannot synthesize (network failure,
	// rejected request, cancelled ctx). An empty text input is an error.
	Synthesize(ctx context.Context, text string, opts Options) (*Synthesis, error)
}
