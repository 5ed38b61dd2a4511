package discordbot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// sessionTimeout bounds session start and stop, which include joining or
// leaving the voice channel and opening provider streams.
const sessionTimeout = 30 * time.Second

// SessionController starts and stops voice sessions. Implemented by the app
// layer's session manager; one session is active at a time.
type SessionController interface {
	// Start joins channelID and brings up the voice pipeline. startedBy is
	// the Discord user ID of the command invoker.
	Start(ctx context.Context, channelID, startedBy string) error

	// Stop tears down the active session and leaves the channel.
	Stop(ctx context.Context) error

	// Active reports the current session's channel and start time. ok is
	// false when no session is running.
	Active() (channelID string, since time.Time, ok bool)
}

// VoiceCommands implements the /join and /leave slash commands.
type VoiceCommands struct {
	sessions SessionController
	guildID  string

	// Response seams, replaced in tests to capture output without a live
	// gateway connection.
	respond  func(s *discordgo.Session, i *discordgo.InteractionCreate, content string)
	deferFn  func(s *discordgo.Session, i *discordgo.InteractionCreate)
	followUp func(s *discordgo.Session, i *discordgo.InteractionCreate, content string)
}

// NewVoiceCommands creates the voice command set and registers it with the
// bot's router.
func NewVoiceCommands(bot *Bot, sessions SessionController) *VoiceCommands {
	vc := &VoiceCommands{
		sessions: sessions,
		guildID:  bot.GuildID(),
		respond:  RespondEphemeral,
		deferFn:  DeferReply,
		followUp: FollowUp,
	}
	vc.RegisterWith(bot.Router())
	return vc
}

// RegisterWith registers /join and /leave with the router.
func (vc *VoiceCommands) RegisterWith(router *Router) {
	router.Register("join", joinDefinition(), vc.handleJoin)
	router.Register("leave", leaveDefinition(), vc.handleLeave)
}

func joinDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "join",
		Description: "Join a voice channel and start listening",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "channel",
				Description:  "Voice channel to join (defaults to yours)",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
			},
		},
	}
}

func leaveDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "leave",
		Description: "Leave the voice channel and stop the session",
	}
}

// handleJoin handles /join. The target channel is the explicit channel
// option when given, otherwise the invoker's current voice channel.
func (vc *VoiceCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := channelOption(i.ApplicationCommandData())
	if channelID == "" {
		channelID = voiceChannelOf(s.State, vc.guildID, interactionUserID(i))
	}
	if channelID == "" {
		vc.respond(s, i, "Join a voice channel first, or pass one with the `channel` option.")
		return
	}

	if active, _, ok := vc.sessions.Active(); ok {
		vc.respond(s, i, fmt.Sprintf("Already connected to <#%s>. Use `/leave` first.", active))
		return
	}

	// Joining the channel and opening provider streams can take a while.
	vc.deferFn(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()

	if err := vc.sessions.Start(ctx, channelID, interactionUserID(i)); err != nil {
		vc.followUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return
	}
	vc.followUp(s, i, fmt.Sprintf("Joined <#%s>. Say my name to talk to me.", channelID))
}

// handleLeave handles /leave.
func (vc *VoiceCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID, since, ok := vc.sessions.Active()
	if !ok {
		vc.respond(s, i, "Not connected to a voice channel.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()

	if err := vc.sessions.Stop(ctx); err != nil {
		vc.respond(s, i, fmt.Sprintf("Failed to leave: %v", err))
		return
	}

	duration := time.Since(since).Truncate(time.Second)
	vc.respond(s, i, fmt.Sprintf("Left <#%s> after %s.", channelID, duration))
}

// channelOption extracts the channel option value, if present.
func channelOption(data discordgo.ApplicationCommandInteractionData) string {
	for _, opt := range data.Options {
		if opt.Name == "channel" && opt.Type == discordgo.ApplicationCommandOptionChannel {
			return opt.ChannelValue(nil).ID
		}
	}
	return ""
}

// voiceChannelOf resolves the voice channel a user is currently in, or ""
// when the user is not in voice.
func voiceChannelOf(st *discordgo.State, guildID, userID string) string {
	if st == nil || userID == "" {
		return ""
	}
	vs, err := st.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

// interactionUserID extracts the invoking user's ID, handling both guild
// (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
