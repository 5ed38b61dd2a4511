package memory

import "testing"

func TestBlockLabel(t *testing.T) {
	t.Parallel()
	got := BlockLabel("agent-1", "user-42")
	want := "agent-1/discord/users/user-42"
	if got != want {
		t.Errorf("BlockLabel = %q, want %q", got, want)
	}
}

func TestParseBlockLabel(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		agentID, userID, err := ParseBlockLabel(BlockLabel("agent-1", "user-42"))
		if err != nil {
			t.Fatalf("ParseBlockLabel: %v", err)
		}
		if agentID != "agent-1" || userID != "user-42" {
			t.Errorf("got (%q, %q)", agentID, userID)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		for _, label := range []string{
			"",
			"agent-1",
			"agent-1/discord/users",
			"agent-1/slack/users/user-42",
			"agent-1/discord/channels/user-42",
			"/discord/users/user-42",
			"agent-1/discord/users/",
			"a/b/c/d/e",
		} {
			if _, _, err := ParseBlockLabel(label); err == nil {
				t.Errorf("ParseBlockLabel(%q): expected error", label)
			}
		}
	})
}
