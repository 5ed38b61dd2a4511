package discord

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/parley-voice/parley/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Conn = (*Conn)(nil)

const (
	frameChannelBuffer = 64
	errChannelBuffer   = 4
)

// Conn wraps a discordgo.VoiceConnection and adapts it to the [audio.Conn]
// interface. Incoming Opus packets are demuxed by SSRC, mapped to user IDs
// via speaking notifications, decoded to PCM, and delivered on per-speaker
// subscriptions.
//
// Conn is safe for concurrent use.
type Conn struct {
	vc     *discordgo.VoiceConnection
	player *player

	mu         sync.Mutex
	subs       map[string]*subEntry
	ssrcUser   map[uint32]string
	speakingCb func(audio.SpeakingUpdate)

	done      chan struct{}
	closeOnce sync.Once
}

type subEntry struct {
	sub    *audio.Subscription
	frames chan audio.Frame
	errs   chan error
}

// newConn initialises a Conn for an already-joined voice channel and starts
// the receive loop.
func newConn(vc *discordgo.VoiceConnection) *Conn {
	c := &Conn{
		vc:       vc,
		subs:     make(map[string]*subEntry),
		ssrcUser: make(map[uint32]string),
		done:     make(chan struct{}),
	}
	c.player = newPlayer(vc)

	vc.AddHandler(c.handleSpeakingUpdate)
	go c.recvLoop()

	return c
}

// Subscribe opens (or returns the existing) inbound audio stream for userID.
func (c *Conn) Subscribe(userID string) (*audio.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.subs[userID]; ok {
		return e.sub, nil
	}
	e := &subEntry{
		frames: make(chan audio.Frame, frameChannelBuffer),
		errs:   make(chan error, errChannelBuffer),
	}
	e.sub = &audio.Subscription{Frames: e.frames, Errs: e.errs}
	c.subs[userID] = e
	return e.sub, nil
}

// Unsubscribe closes the speaker's stream. No-op for unknown speakers.
func (c *Conn) Unsubscribe(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.subs[userID]; ok {
		close(e.frames)
		close(e.errs)
		delete(c.subs, userID)
	}
}

// OnSpeaking registers cb for speaking notifications. Subsequent calls
// replace the previous registration.
func (c *Conn) OnSpeaking(cb func(audio.SpeakingUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakingCb = cb
}

// Player returns the playback device for this channel.
func (c *Conn) Player() audio.Player {
	return c.player
}

// Close tears down the voice connection, stops playback, and closes all
// subscription channels. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.player.Stop()
		err = c.vc.Disconnect()

		c.mu.Lock()
		for id, e := range c.subs {
			close(e.frames)
			close(e.errs)
			delete(c.subs, id)
		}
		c.mu.Unlock()
	})
	return err
}

// handleSpeakingUpdate records the SSRC-to-user mapping from Discord speaking
// notifications and forwards the update to the registered callback. The
// mapping is refreshed unconditionally since a user may change SSRC over a
// session.
func (c *Conn) handleSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	update := audio.SpeakingUpdate{
		SSRC:     uint32(vs.SSRC),
		UserID:   vs.UserID,
		Speaking: vs.Speaking,
	}

	c.mu.Lock()
	if vs.UserID != "" {
		c.ssrcUser[update.SSRC] = vs.UserID
	}
	cb := c.speakingCb
	c.mu.Unlock()

	if cb != nil {
		go cb(update)
	}
}

// recvLoop reads Opus packets from the voice connection, demuxes them by
// SSRC, decodes to PCM, and delivers frames to the matching subscription.
// Packets for SSRCs with no known user mapping yet are attributed by SSRC
// string so early audio is not lost when the speaking notification lags.
func (c *Conn) recvLoop() {
	// Each SSRC gets its own decoder to maintain state across frames.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				c.deliverError(pkt.SSRC, err)
				continue
			}

			c.deliverFrame(pkt.SSRC, audio.Frame{
				Data:       pcm,
				SampleRate: opusSampleRate,
				Channels:   opusChannels,
				Timestamp:  time.Now(),
			})
		}
	}
}

// deliverFrame routes a decoded frame to the subscription for the speaker
// behind ssrc. Full subscription channels drop the frame rather than block
// the receive loop.
func (c *Conn) deliverFrame(ssrc uint32, frame audio.Frame) {
	c.mu.Lock()
	e, ok := c.subs[c.resolveSSRC(ssrc)]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case e.frames <- frame:
	default:
	}
}

// deliverError surfaces a per-stream decode error on the speaker's error
// channel, or logs it when no subscription exists.
func (c *Conn) deliverError(ssrc uint32, err error) {
	c.mu.Lock()
	e, ok := c.subs[c.resolveSSRC(ssrc)]
	c.mu.Unlock()
	if !ok {
		slog.Warn("discord: opus decode error", "ssrc", ssrc, "error", err)
		return
	}
	select {
	case e.errs <- err:
	default:
	}
}

// resolveSSRC maps an SSRC to a user ID, falling back to the decimal SSRC
// string when no mapping is known yet. Caller must hold c.mu.
func (c *Conn) resolveSSRC(ssrc uint32) string {
	if userID, ok := c.ssrcUser[ssrc]; ok {
		return userID
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}
