// Package mock provides in-memory mock implementations of the
// [audio.Transport], [audio.Conn], and [audio.Player] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	conn := mock.NewConn()
//	transport := &mock.Transport{JoinResult: conn}
//	got, err := transport.Join(ctx, "channel-42")
//	conn.EmitSpeaking(audio.SpeakingUpdate{SSRC: 1, UserID: "u1", Speaking: true})
package mock

import (
	"context"
	"sync"

	"github.com/parley-voice/parley/pkg/audio"
)

// ─── Conn ─────────────────────────────────────────────────────────────────────

// Conn is a mock implementation of [audio.Conn]. Create it with [NewConn].
// Tests push inbound audio via [Conn.PushFrame] and speaking notifications
// via [Conn.EmitSpeaking].
type Conn struct {
	mu sync.Mutex

	// SubscribeError, when set, is returned by every Subscribe call.
	SubscribeError error

	// CloseError is returned by Close.
	CloseError error

	// PlayerImpl is returned by Player. Defaults to a fresh [Player].
	PlayerImpl *Player

	// SubscribeCalls records the user IDs passed to Subscribe, in order.
	SubscribeCalls []string

	// UnsubscribeCalls records the user IDs passed to Unsubscribe, in order.
	UnsubscribeCalls []string

	// CallCountClose records how many times Close was called.
	CallCountClose int

	subs       map[string]*subEntry
	speakingCb func(audio.SpeakingUpdate)
}

type subEntry struct {
	sub    *audio.Subscription
	frames chan audio.Frame
	errs   chan error
}

// NewConn returns a ready-to-use mock connection.
func NewConn() *Conn {
	return &Conn{
		PlayerImpl: &Player{},
		subs:       make(map[string]*subEntry),
	}
}

// Subscribe implements [audio.Conn]. Repeated calls for the same user return
// the same subscription, matching the real contract.
func (c *Conn) Subscribe(userID string) (*audio.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SubscribeCalls = append(c.SubscribeCalls, userID)
	if c.SubscribeError != nil {
		return nil, c.SubscribeError
	}
	if e, ok := c.subs[userID]; ok {
		return e.sub, nil
	}
	e := &subEntry{
		frames: make(chan audio.Frame, 64),
		errs:   make(chan error, 4),
	}
	e.sub = &audio.Subscription{Frames: e.frames, Errs: e.errs}
	c.subs[userID] = e
	return e.sub, nil
}

// Unsubscribe implements [audio.Conn].
func (c *Conn) Unsubscribe(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UnsubscribeCalls = append(c.UnsubscribeCalls, userID)
	if e, ok := c.subs[userID]; ok {
		close(e.frames)
		close(e.errs)
		delete(c.subs, userID)
	}
}

// OnSpeaking implements [audio.Conn].
func (c *Conn) OnSpeaking(cb func(audio.SpeakingUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakingCb = cb
}

// Player implements [audio.Conn].
func (c *Conn) Player() audio.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PlayerImpl
}

// Close implements [audio.Conn]. All open subscriptions are closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	for id, e := range c.subs {
		close(e.frames)
		close(e.errs)
		delete(c.subs, id)
	}
	return c.CloseError
}

// PushFrame delivers frame on userID's subscription. Returns false when the
// user has no open subscription or the channel is full.
func (c *Conn) PushFrame(userID string, frame audio.Frame) bool {
	c.mu.Lock()
	e, ok := c.subs[userID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case e.frames <- frame:
		return true
	default:
		return false
	}
}

// PushError delivers a stream-level error on userID's subscription.
func (c *Conn) PushError(userID string, err error) bool {
	c.mu.Lock()
	e, ok := c.subs[userID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case e.errs <- err:
		return true
	default:
		return false
	}
}

// EndStream closes userID's subscription channels to simulate end-of-stream
// without going through Unsubscribe.
func (c *Conn) EndStream(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.subs[userID]; ok {
		close(e.frames)
		close(e.errs)
		delete(c.subs, userID)
	}
}

// EmitSpeaking invokes the registered speaking callback synchronously.
func (c *Conn) EmitSpeaking(update audio.SpeakingUpdate) {
	c.mu.Lock()
	cb := c.speakingCb
	c.mu.Unlock()
	if cb != nil {
		cb(update)
	}
}

// ─── Transport ────────────────────────────────────────────────────────────────

// JoinCall records the arguments of a single [Transport.Join] invocation.
type JoinCall struct {
	ChannelID string
}

// Transport is a mock implementation of [audio.Transport].
type Transport struct {
	mu sync.Mutex

	// JoinResult is the [audio.Conn] returned by Join.
	JoinResult audio.Conn

	// JoinError is the error returned by Join.
	JoinError error

	// JoinCalls records all Join invocations.
	JoinCalls []JoinCall
}

// Join implements [audio.Transport].
func (t *Transport) Join(_ context.Context, channelID string) (audio.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.JoinCalls = append(t.JoinCalls, JoinCall{ChannelID: channelID})
	return t.JoinResult, t.JoinError
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Player.Play] invocation.
type PlayCall struct {
	PCM    []byte
	Format audio.Format
}

// Player is a mock implementation of [audio.Player]. Playback never completes
// on its own; call [Player.Finish] to simulate natural completion.
type Player struct {
	mu sync.Mutex

	// PlayError is returned by Play.
	PlayError error

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	finishedCb func()
}

// Play implements [audio.Player].
func (p *Player) Play(pcm []byte, format audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, PlayCall{PCM: pcm, Format: format})
	return p.PlayError
}

// Stop implements [audio.Player].
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
}

// PlayCallCount returns the number of Play invocations so far.
func (p *Player) PlayCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PlayCalls)
}

// OnFinished implements [audio.Player].
func (p *Player) OnFinished(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishedCb = cb
}

// Finish simulates natural completion of the current playback by invoking the
// registered finished callback synchronously.
func (p *Player) Finish() {
	p.mu.Lock()
	cb := p.finishedCb
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}
