// Package discord provides an [audio.Transport] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// Discord's Opus-based voice transport with Parley's PCM [audio.Frame]
// pipeline: inbound packets are demuxed by SSRC, decoded, and delivered on
// per-speaker subscriptions; outbound PCM is encoded and sent through the
// channel's [audio.Player].
//
// The transport requires an active *discordgo.Session (owned by the bot
// layer) and a guild ID. Each call to [Transport.Join] joins the specified
// voice channel and returns a [Conn].
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/parley-voice/parley/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Transport = (*Transport)(nil)

// Transport implements [audio.Transport] using discordgo voice connections.
//
// Transport is safe for concurrent use.
type Transport struct {
	session *discordgo.Session
	guildID string
}

// New creates a Discord Transport for the given session and guild.
func New(session *discordgo.Session, guildID string) *Transport {
	return &Transport{
		session: session,
		guildID: guildID,
	}
}

// Join connects to the voice channel identified by channelID and returns an
// active [audio.Conn]. The supplied ctx governs the connection-setup phase
// only; once the Conn is returned it lives until [audio.Conn.Close].
func (t *Transport) Join(_ context.Context, channelID string) (audio.Conn, error) {
	// mute=false (we send audio), deaf=false (we receive audio).
	vc, err := t.session.ChannelVoiceJoin(t.guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	return newConn(vc), nil
}
