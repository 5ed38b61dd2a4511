package discordbot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestNewRouterEmpty(t *testing.T) {
	t.Parallel()

	r := NewRouter()
	if r == nil {
		t.Fatal("NewRouter() returned nil")
	}
	if got := len(r.ApplicationCommands()); got != 0 {
		t.Errorf("ApplicationCommands() = %d entries, want 0", got)
	}
}

func TestRouterApplicationCommands(t *testing.T) {
	t.Parallel()

	r := NewRouter()
	r.Register("join", &discordgo.ApplicationCommand{Name: "join"}, func(*discordgo.Session, *discordgo.InteractionCreate) {})

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 {
		t.Fatalf("ApplicationCommands() = %d entries, want 1", len(cmds))
	}
	if cmds[0].Name != "join" {
		t.Errorf("command name = %q, want %q", cmds[0].Name, "join")
	}
}

func TestRouterApplicationCommandsDedup(t *testing.T) {
	t.Parallel()

	r := NewRouter()
	cmd := &discordgo.ApplicationCommand{Name: "session"}
	r.Register("session/start", cmd, func(*discordgo.Session, *discordgo.InteractionCreate) {})
	r.Register("session/stop", cmd, func(*discordgo.Session, *discordgo.InteractionCreate) {})

	if got := len(r.ApplicationCommands()); got != 1 {
		t.Fatalf("ApplicationCommands() = %d entries, want 1 after dedup", got)
	}
}

func TestRouterRegisterHandlerHasNoDefinition(t *testing.T) {
	t.Parallel()

	r := NewRouter()
	r.RegisterHandler("leave", func(*discordgo.Session, *discordgo.InteractionCreate) {})

	if got := len(r.ApplicationCommands()); got != 0 {
		t.Errorf("ApplicationCommands() = %d entries, want 0", got)
	}
}

func TestRouterHandleDispatches(t *testing.T) {
	t.Parallel()

	r := NewRouter()
	called := false
	r.RegisterHandler("join", func(*discordgo.Session, *discordgo.InteractionCreate) {
		called = true
	})

	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: "join"},
		},
	}
	r.Handle(nil, i)

	if !called {
		t.Error("handler was not invoked")
	}
}

func TestInteractionKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{
			name: "top-level command",
			data: discordgo.ApplicationCommandInteractionData{Name: "join"},
			want: "join",
		},
		{
			name: "subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "session",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "start", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
			want: "session/start",
		},
		{
			name: "non-subcommand option does not extend the key",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "join",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "vc-1"},
				},
			},
			want: "join",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := interactionKey(tt.data); got != tt.want {
				t.Errorf("interactionKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
