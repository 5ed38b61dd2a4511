package stt

import "time"

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
//
// Partial transcripts are cumulative: each new partial carries the full
// utterance text recognised so far, not a delta. Downstream aggregation
// replaces rather than appends. A provider emitting true deltas would need an
// accumulation shim before it can satisfy this contract.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0 to 1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available. May be nil for providers
	// without word-level output.
	Words []WordDetail

	// SpeakerID identifies the speaker. Empty at the provider boundary; the
	// transcription manager stamps it before re-emitting.
	SpeakerID string

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}
