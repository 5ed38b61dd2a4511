// Package discordbot provides the Discord gateway layer for Parley. It owns
// the discordgo.Session lifecycle, registers the /join and /leave slash
// commands, and exposes the voice [audio.Transport] backed by the gateway
// connection.
package discordbot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/parley-voice/parley/pkg/audio"
	discordaudio "github.com/parley-voice/parley/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// GuildID is the target guild. Parley serves a single guild per process.
	GuildID string
}

// Bot owns the Discord gateway connection and routes slash command
// interactions to registered handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	transport *discordaudio.Transport
	router    *Router
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, connects to the Discord gateway, and installs the
// interaction dispatch handler.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discordbot: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discordbot: open gateway: %w", err)
	}

	b := &Bot{
		session:   session,
		transport: discordaudio.New(session, cfg.GuildID),
		router:    NewRouter(),
		guildID:   cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Transport returns the voice transport for joining channels in the guild.
func (b *Bot) Transport() audio.Transport {
	return b.transport
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Session returns the underlying discordgo session for subsystems that need
// direct API access.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *Router {
	return b.router
}

// Run registers the router's slash commands with the Discord API and blocks
// until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discordbot: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close unregisters the slash commands and disconnects from the gateway.
// Safe to call more than once.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discordbot: delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discordbot: close gateway: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
