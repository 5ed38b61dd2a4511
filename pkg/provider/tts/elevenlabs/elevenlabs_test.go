package elevenlabs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/parley-voice/parley/pkg/provider/tts"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty api key", func(t *testing.T) {
		t.Parallel()
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty api key")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		p, err := New("key")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if p.model != defaultModel {
			t.Errorf("model = %q, want %q", p.model, defaultModel)
		}
		if p.outputFormat != defaultOutputFmt {
			t.Errorf("outputFormat = %q, want %q", p.outputFormat, defaultOutputFmt)
		}
	})

	t.Run("options", func(t *testing.T) {
		t.Parallel()
		p, err := New("key",
			WithModel("eleven_turbo_v2"),
			WithOutputFormat("pcm_24000"),
			WithVoice("voice-1"),
		)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if p.model != "eleven_turbo_v2" {
			t.Errorf("model = %q", p.model)
		}
		if p.outputFormat != "pcm_24000" {
			t.Errorf("outputFormat = %q", p.outputFormat)
		}
		if p.voice != "voice-1" {
			t.Errorf("voice = %q", p.voice)
		}
	})
}

func TestName(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Name(); got != "elevenlabs" {
		t.Errorf("Name() = %q, want %q", got, "elevenlabs")
	}
}

func TestSynthesizeValidation(t *testing.T) {
	t.Parallel()

	t.Run("empty text", func(t *testing.T) {
		t.Parallel()
		p, _ := New("key", WithVoice("voice-1"))
		if _, err := p.Synthesize(context.Background(), "", tts.Options{}); err == nil {
			t.Fatal("expected error for empty text")
		}
	})

	t.Run("no voice", func(t *testing.T) {
		t.Parallel()
		p, _ := New("key")
		if _, err := p.Synthesize(context.Background(), "hello", tts.Options{}); err == nil {
			t.Fatal("expected error when no voice is configured")
		}
	})
}

func TestBuildWSMessage(t *testing.T) {
	t.Parallel()

	t.Run("text only", func(t *testing.T) {
		t.Parallel()
		raw, err := buildWSMessage("hello world", nil)
		if err != nil {
			t.Fatalf("buildWSMessage: %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg["text"] != "hello world" {
			t.Errorf("text = %v", msg["text"])
		}
		if _, ok := msg["voice_settings"]; ok {
			t.Error("voice_settings present, want omitted")
		}
	})

	t.Run("with settings", func(t *testing.T) {
		t.Parallel()
		raw, err := buildWSMessage("hi", &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75})
		if err != nil {
			t.Fatalf("buildWSMessage: %v", err)
		}
		var msg textMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.VoiceSettings == nil || msg.VoiceSettings.Stability != 0.5 {
			t.Errorf("voice settings = %+v", msg.VoiceSettings)
		}
	})
}

func TestBuildURLForVoice(t *testing.T) {
	t.Parallel()
	got := buildURLForVoice("abc", "eleven_flash_v2_5")
	want := "wss://api.elevenlabs.io/v1/text-to-speech/abc/stream-input?model_id=eleven_flash_v2_5"
	if got != want {
		t.Errorf("buildURLForVoice = %q, want %q", got, want)
	}
}

func TestOutputFormatRate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format string
		want   int
	}{
		{"pcm_16000", 16000},
		{"pcm_24000", 24000},
		{"pcm_44100", 44100},
		{"mp3_44100_128", 16000},
		{"", 16000},
	}
	for _, tc := range tests {
		if got := outputFormatRate(tc.format); got != tc.want {
			t.Errorf("outputFormatRate(%q) = %d, want %d", tc.format, got, tc.want)
		}
	}
}
