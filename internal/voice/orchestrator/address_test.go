package orchestrator

import "testing"

func TestAddressDetectorLiteral(t *testing.T) {
	t.Parallel()

	d := NewAddressDetector("Bot")

	tests := []struct {
		name          string
		text          string
		wantAddressed bool
		wantRemainder string
	}{
		{name: "exact case", text: "hey Bot, hello", wantAddressed: true, wantRemainder: "hey hello"},
		{name: "lower case", text: "hey bot what time is it", wantAddressed: true, wantRemainder: "hey what time is it"},
		{name: "upper case", text: "BOT tell me a story", wantAddressed: true, wantRemainder: "tell me a story"},
		{name: "mention", text: "@bot how are you", wantAddressed: true, wantRemainder: "how are you"},
		{name: "not addressed", text: "what time is it", wantAddressed: false, wantRemainder: "what time is it"},
		{name: "name only", text: "Bot", wantAddressed: true, wantRemainder: "Bot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remainder, ok := d.Address(tt.text)
			if ok != tt.wantAddressed {
				t.Fatalf("Address(%q) addressed = %v, want %v", tt.text, ok, tt.wantAddressed)
			}
			if remainder != tt.wantRemainder {
				t.Errorf("Address(%q) remainder = %q, want %q", tt.text, remainder, tt.wantRemainder)
			}
		})
	}
}

func TestAddressDetectorPhonetic(t *testing.T) {
	t.Parallel()

	d := NewAddressDetector("Parley")

	// A transcription that mangles the spelling but keeps the sound.
	if !d.IsAddressed("hey parlay can you help") {
		t.Error("phonetically similar token should address the agent")
	}
	if d.IsAddressed("the meeting starts soon") {
		t.Error("unrelated text should not address the agent")
	}
}

func TestAddressDetectorPhoneticDisabled(t *testing.T) {
	t.Parallel()

	d := NewAddressDetector("Parley", WithPhoneticMatching(false))

	if d.IsAddressed("hey parlay can you help") {
		t.Error("phonetic match should be ignored when disabled")
	}
	if !d.IsAddressed("hey parley can you help") {
		t.Error("literal match should still work")
	}
}

func TestAddressDetectorEmptyName(t *testing.T) {
	t.Parallel()

	d := NewAddressDetector("")
	if d.IsAddressed("anything at all") {
		t.Error("empty name should never match")
	}
}
