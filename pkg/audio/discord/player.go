package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/parley-voice/parley/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Player = (*player)(nil)

// player implements [audio.Player] on top of a discordgo voice connection.
// Each Play call spawns a goroutine that converts the PCM to Discord's
// 48 kHz stereo format, encodes 20 ms Opus frames, and streams them out.
// A new Play replaces any in-flight playback.
type player struct {
	vc *discordgo.VoiceConnection

	mu         sync.Mutex
	cancel     chan struct{}
	finishedCb func()
}

func newPlayer(vc *discordgo.VoiceConnection) *player {
	return &player{vc: vc}
}

// Play starts streaming pcm to the channel and returns immediately.
func (p *player) Play(pcm []byte, format audio.Format) error {
	enc, err := newOpusEncoder()
	if err != nil {
		return fmt.Errorf("discord: start playback: %w", err)
	}

	p.mu.Lock()
	if p.cancel != nil {
		close(p.cancel)
	}
	cancel := make(chan struct{})
	p.cancel = cancel
	p.mu.Unlock()

	go p.sendLoop(enc, pcm, format, cancel)
	return nil
}

// Stop halts the in-flight playback, if any. The finished callback is not
// invoked for stopped streams.
func (p *player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		close(p.cancel)
		p.cancel = nil
	}
}

// OnFinished registers cb for natural playback completion. Subsequent calls
// replace the previous registration.
func (p *player) OnFinished(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishedCb = cb
}

// sendLoop converts, encodes, and streams one PCM buffer. It exits early when
// cancel is closed and fires the finished callback only on natural completion.
func (p *player) sendLoop(enc *opusEncoder, pcm []byte, format audio.Format, cancel chan struct{}) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}}
	frame := conv.Convert(audio.Frame{Data: pcm, SampleRate: format.SampleRate, Channels: format.Channels})
	data := frame.Data

	// One Opus frame of PCM input: 960 samples x 2 channels x 2 bytes.
	const opusFrameBytes = opusFrameSize * opusChannels * 2

	// Pad the tail to a whole frame with silence.
	if rem := len(data) % opusFrameBytes; rem != 0 {
		data = append(data, make([]byte, opusFrameBytes-rem)...)
	}

	p.setSpeaking(true)
	defer p.setSpeaking(false)

	for len(data) >= opusFrameBytes {
		select {
		case <-cancel:
			return
		default:
		}

		encoded, err := enc.encode(data[:opusFrameBytes])
		data = data[opusFrameBytes:]
		if err != nil {
			slog.Warn("discord: opus encode error", "error", err)
			continue
		}

		select {
		case p.vc.OpusSend <- encoded:
		case <-cancel:
			return
		}
	}

	p.mu.Lock()
	if p.cancel == cancel {
		p.cancel = nil
	}
	cb := p.finishedCb
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// setSpeaking sends the speaking flag to Discord, logging any error.
func (p *player) setSpeaking(b bool) {
	if err := p.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
