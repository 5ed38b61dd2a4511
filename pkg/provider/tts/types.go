package tts

import "time"

// Options configures a single synthesis request.
type Options struct {
	// Voice is the provider-specific voice identifier. Empty selects the
	// provider's configured default voice.
	Voice string

	// SampleRate is the desired PCM output rate in Hz. Zero selects the
	// provider default.
	SampleRate int

	// Speed adjusts speaking rate (0.5 to 2.0, 0 or 1.0 = default).
	Speed float64
}

// Synthesis is the result of one text-to-speech request.
type Synthesis struct {
	// Data is the synthesized audio as little-endian 16-bit signed mono PCM.
	Data []byte

	// SampleRate is the PCM sample rate of Data in Hz.
	SampleRate int

	// Channels is the channel count of Data.
	Channels int

	// Text is the input text that was synthesized.
	Text string

	// Voice is the voice identifier that produced the audio.
	Voice string

	// RequestedAt marks when the synthesis request was issued. Playback
	// statistics measure latency from this point to playback start.
	RequestedAt time.Time
}
