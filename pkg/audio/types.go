package audio

import "time"

// Frame is a single frame of audio flowing through the pipeline. Frames are
// the atomic unit of transport: captured from per-speaker input streams,
// buffered, converted, and forwarded to streaming transcription.
type Frame struct {
	// Data is little-endian 16-bit signed PCM.
	Data []byte

	// SampleRate in Hz (e.g. 48000 for Discord Opus, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured.
	Timestamp time.Time
}

// SpeakingUpdate is a transport-level speaking notification. SSRC is the
// stream identifier the transport uses on the wire; UserID is the stable
// speaker identity it maps to. UserID may be empty when the transport has not
// resolved the mapping yet.
type SpeakingUpdate struct {
	SSRC     uint32
	UserID   string
	Speaking bool
}
