// Package config provides the configuration schema, loader, file watcher,
// and provider registry for the Parley voice agent.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML values like "200ms" or "2s" decode
// directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for Parley. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Agent     AgentConfig     `yaml:"agent"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// ServerConfig holds the observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz, and /metrics
	// (e.g., ":8080"). Empty disables the HTTP endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the bot credentials and voice channel selection.
type DiscordConfig struct {
	// Token is the Discord bot token. Supports ${ENV_VAR} interpolation.
	Token string `yaml:"token"`

	// GuildID is the server the bot registers its slash commands in. Empty
	// registers the commands globally.
	GuildID string `yaml:"guild_id"`

	// ChannelID, when set, is a voice channel the bot joins on startup
	// without waiting for a /join command.
	ChannelID string `yaml:"channel_id"`
}

// AgentConfig describes the conversational agent: how users address it and
// which backend answers.
type AgentConfig struct {
	// Name is the spoken name users address the agent by (e.g., "Parley").
	Name string `yaml:"name"`

	// ID scopes conversations on the backend (e.g., a Letta agent id).
	ID string `yaml:"id"`

	// Provider selects the conversational backend. Known values: "letta",
	// "openai", and "anyllm-<backend>" (e.g., "anyllm-anthropic").
	Provider string `yaml:"provider"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the backend. Supports ${ENV_VAR}
	// interpolation.
	APIKey string `yaml:"api_key"`

	// Model selects a backend-specific model. Empty uses the default.
	Model string `yaml:"model"`

	// SystemPrompt is injected ahead of the conversation for stateless
	// backends. Stateful backends (Letta) ignore it.
	SystemPrompt string `yaml:"system_prompt"`

	// Voice selects the TTS voice for replies. Empty uses the provider
	// default.
	Voice string `yaml:"voice"`

	// MaxResponsesPerMinute caps replies in a sliding 60-second window.
	// Zero disables the limit.
	MaxResponsesPerMinute int `yaml:"max_responses_per_minute"`

	// PhoneticMatching toggles sound-alike matching of the agent name in
	// transcripts. Defaults to true; set disable_phonetic_matching to turn
	// it off.
	DisablePhoneticMatching bool `yaml:"disable_phonetic_matching"`

	// Fallback names a secondary backend tried when the primary fails.
	// Server-side conversation state does not carry over, so stateless
	// backends make the safest fallbacks.
	Fallback *AgentFallbackConfig `yaml:"fallback"`
}

// AgentFallbackConfig selects a secondary conversational backend. Only the
// backend selection fields live here; the agent's name, voice, and rate
// limit come from the enclosing [AgentConfig].
type AgentFallbackConfig struct {
	// Provider selects the fallback backend. Same values as
	// AgentConfig.Provider.
	Provider string `yaml:"provider"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the backend. Supports ${ENV_VAR}
	// interpolation.
	APIKey string `yaml:"api_key"`

	// Model selects a backend-specific model. Empty uses the default.
	Model string `yaml:"model"`

	// SystemPrompt overrides the primary's prompt for the fallback. Empty
	// inherits it.
	SystemPrompt string `yaml:"system_prompt"`
}

// FallbackConfig derives the [AgentConfig] for the configured fallback
// backend, inheriting the primary's identity fields. The second return is
// false when no fallback is configured.
func (c AgentConfig) FallbackConfig() (AgentConfig, bool) {
	if c.Fallback == nil {
		return AgentConfig{}, false
	}
	out := c
	out.Fallback = nil
	out.Provider = c.Fallback.Provider
	out.BaseURL = c.Fallback.BaseURL
	out.APIKey = c.Fallback.APIKey
	out.Model = c.Fallback.Model
	if c.Fallback.SystemPrompt != "" {
		out.SystemPrompt = c.Fallback.SystemPrompt
	}
	return out, true
}

// ProvidersConfig declares the STT and TTS backends. Each stage takes a
// primary entry and an optional fallback tried when the primary fails.
type ProvidersConfig struct {
	STT ProviderPair `yaml:"stt"`
	TTS ProviderPair `yaml:"tts"`
}

// ProviderPair is a primary provider plus an optional fallback.
type ProviderPair struct {
	Primary  ProviderEntry  `yaml:"primary"`
	Fallback *ProviderEntry `yaml:"fallback"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper",
	// "cartesia", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Supports ${ENV_VAR} interpolation.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice is the provider-specific voice identifier (TTS only).
	Voice string `yaml:"voice"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// PipelineConfig tunes the audio and transcript pipeline.
type PipelineConfig struct {
	Input      InputConfig      `yaml:"input"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Turn       TurnConfig       `yaml:"turn"`
	BargeIn    BargeInConfig    `yaml:"barge_in"`
}

// InputConfig tunes per-speaker audio capture.
type InputConfig struct {
	// BufferSeconds is the per-speaker ring buffer capacity. Default: 5.
	BufferSeconds int `yaml:"buffer_seconds"`

	// AutoSubscribe subscribes to speakers as they start talking instead of
	// requiring an explicit subscription per user.
	AutoSubscribe bool `yaml:"auto_subscribe"`
}

// AggregatorConfig tunes how partial transcripts become utterances.
type AggregatorConfig struct {
	// FlushTimeout is the silence window after the last partial before the
	// buffered text is flushed as an utterance. Default: 2s.
	FlushTimeout Duration `yaml:"flush_timeout"`

	// MinConfidence drops transcription events below this confidence.
	MinConfidence float64 `yaml:"min_confidence"`

	// MaxBufferSize force-flushes a speaker's buffer past this many
	// characters. Default: 1000.
	MaxBufferSize int `yaml:"max_buffer_size"`

	// HistoryLimit bounds the conversation history ring. Default: 200.
	HistoryLimit int `yaml:"history_limit"`
}

// TurnConfig tunes conversational floor handling.
type TurnConfig struct {
	// Cooldown is how long after the agent stops speaking before it may
	// speak again. Default: 1s. "0s" disables the cooldown.
	Cooldown *Duration `yaml:"cooldown"`
}

// BargeInConfig tunes interruption detection during agent playback.
type BargeInConfig struct {
	// Enabled turns barge-in detection on.
	Enabled bool `yaml:"enabled"`

	// Cooldown suppresses onsets for this long after playback starts.
	// Default: 200ms.
	Cooldown Duration `yaml:"cooldown"`

	// MinSpeechDuration is how long a user must keep speaking before the
	// interruption fires. Zero interrupts immediately.
	MinSpeechDuration Duration `yaml:"min_speech_duration"`
}

// MemoryConfig holds settings for the per-user memory store.
type MemoryConfig struct {
	// Enabled turns per-user memory attachment on.
	Enabled bool `yaml:"enabled"`

	// Store selects the backing store: "letta" or "postgres".
	Store string `yaml:"store"`

	// BaseURL is the Letta server endpoint (letta store only).
	BaseURL string `yaml:"base_url"`

	// Token authenticates against the Letta server. Supports ${ENV_VAR}
	// interpolation.
	Token string `yaml:"token"`

	// PostgresDSN is the PostgreSQL connection string (postgres store only).
	// Supports ${ENV_VAR} interpolation.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Timeout bounds each store operation. Default: 5s.
	Timeout Duration `yaml:"timeout"`
}
