// Package audio defines the types and transport contracts for real-time
// voice-channel connectivity within Parley, plus the buffering and PCM
// transform primitives the input pipeline is built on.
//
// The two primary abstractions are:
//
//   - [Transport] — joins a voice channel and returns a [Conn].
//   - [Conn] — an active session on that channel, giving callers per-speaker
//     inbound audio subscriptions, speaking notifications, and a playback
//     [Player].
//
// Implementations are provided by platform-specific adapter packages (e.g.
// audio/discord). The interfaces are intentionally narrow to keep the voice
// pipeline decoupled from transport details.
package audio

import "context"

// Subscription is a per-speaker inbound audio stream. Frames is closed when
// the stream ends; Errs carries stream-level errors and is closed together
// with Frames. An error on one subscription never affects other speakers.
type Subscription struct {
	Frames <-chan Frame
	Errs   <-chan error
}

// Player plays synthesized audio into the channel. Implementations play one
// stream at a time; queueing is the caller's concern.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Play starts playback of the supplied PCM data and returns once playback
	// has been handed to the transport (not once it completes). Calling Play
	// while a previous stream is still playing replaces it.
	Play(pcm []byte, format Format) error

	// Stop halts the current playback immediately. The finished callback is
	// NOT invoked for a stopped stream, only for natural completion.
	Stop()

	// OnFinished registers cb to be invoked on an internal goroutine whenever
	// a stream completes naturally. Only one callback may be registered at a
	// time; subsequent calls replace the previous registration.
	OnFinished(cb func())
}

// Conn represents an active session on a voice channel.
//
// A Conn is obtained from [Transport.Join] and remains valid until
// [Conn.Close] is called. All channels handed out by a Conn are closed when
// the connection terminates.
//
// Implementations must be safe for concurrent use.
type Conn interface {
	// Subscribe opens an inbound audio stream for one speaker. Subscribing
	// the same speaker twice returns the existing subscription.
	Subscribe(userID string) (*Subscription, error)

	// Unsubscribe tears down the speaker's stream, closing its channels.
	// Safe to call for a speaker that was never subscribed.
	Unsubscribe(userID string)

	// OnSpeaking registers cb for transport speaking notifications. The ssrc
	// to speaker mapping inside the update may lag the first audio packets;
	// callers must tolerate either order. Only one callback may be registered
	// at a time; subsequent calls replace the previous registration.
	OnSpeaking(cb func(SpeakingUpdate))

	// Player returns the playback device for this channel.
	Player() Player

	// Close tears down the connection and closes all subscription channels.
	// Safe to call more than once; subsequent calls are no-ops.
	Close() error
}

// Transport is the entry point for a voice-channel provider. Implementations
// wrap provider-specific SDKs and expose a uniform [Conn] abstraction.
type Transport interface {
	// Join connects to the voice channel identified by channelID. The ctx
	// governs the connection attempt only; once established, the Conn lives
	// until [Conn.Close].
	Join(ctx context.Context, channelID string) (Conn, error)
}
