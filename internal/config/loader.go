package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. [Validate]
// warns about unrecognised names but does not reject them, so third-party
// registrations still work.
var ValidProviderNames = map[string][]string{
	"stt":    {"whisper", "deepgram"},
	"tts":    {"cartesia", "elevenlabs"},
	"agent":  {"letta", "openai", "anyllm-openai", "anyllm-anthropic", "anyllm-gemini", "anyllm-ollama", "anyllm-deepseek", "anyllm-mistral", "anyllm-groq", "anyllm-llamacpp", "anyllm-llamafile"},
	"memory": {"letta", "postgres"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, interpolates ${ENV_VAR}
// references in credential fields, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets resolves ${ENV_VAR} references in the fields that carry
// credentials, so keys never have to live in the config file itself.
func expandSecrets(cfg *Config) {
	cfg.Discord.Token = os.ExpandEnv(cfg.Discord.Token)
	cfg.Agent.APIKey = os.ExpandEnv(cfg.Agent.APIKey)
	if cfg.Agent.Fallback != nil {
		cfg.Agent.Fallback.APIKey = os.ExpandEnv(cfg.Agent.Fallback.APIKey)
	}
	cfg.Memory.Token = os.ExpandEnv(cfg.Memory.Token)
	cfg.Memory.PostgresDSN = os.ExpandEnv(cfg.Memory.PostgresDSN)

	expandEntry := func(e *ProviderEntry) {
		if e != nil {
			e.APIKey = os.ExpandEnv(e.APIKey)
		}
	}
	expandEntry(&cfg.Providers.STT.Primary)
	expandEntry(cfg.Providers.STT.Fallback)
	expandEntry(&cfg.Providers.TTS.Primary)
	expandEntry(cfg.Providers.TTS.Fallback)
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found; soft problems are
// logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}

	if cfg.Agent.Name == "" {
		errs = append(errs, errors.New("agent.name is required"))
	}
	if cfg.Agent.Provider == "" {
		errs = append(errs, errors.New("agent.provider is required"))
	}
	if cfg.Agent.MaxResponsesPerMinute < 0 {
		errs = append(errs, fmt.Errorf("agent.max_responses_per_minute %d is negative", cfg.Agent.MaxResponsesPerMinute))
	}

	validateProviderName("agent", cfg.Agent.Provider)
	if fb := cfg.Agent.Fallback; fb != nil {
		if fb.Provider == "" {
			errs = append(errs, errors.New("agent.fallback.provider is required when agent.fallback is set"))
		}
		validateProviderName("agent", fb.Provider)
	}
	if cfg.Providers.STT.Primary.Name == "" {
		errs = append(errs, errors.New("providers.stt.primary.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Primary.Name)
	if cfg.Providers.STT.Fallback != nil {
		validateProviderName("stt", cfg.Providers.STT.Fallback.Name)
	}
	if cfg.Providers.TTS.Primary.Name == "" {
		errs = append(errs, errors.New("providers.tts.primary.name is required"))
	}
	validateProviderName("tts", cfg.Providers.TTS.Primary.Name)
	if cfg.Providers.TTS.Fallback != nil {
		validateProviderName("tts", cfg.Providers.TTS.Fallback.Name)
	} else {
		slog.Warn("providers.tts.fallback is not configured; a primary TTS outage will silence the agent")
	}

	if cfg.Pipeline.Aggregator.MinConfidence < 0 || cfg.Pipeline.Aggregator.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("pipeline.aggregator.min_confidence %.2f is out of range [0, 1]", cfg.Pipeline.Aggregator.MinConfidence))
	}
	if cfg.Pipeline.Input.BufferSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.input.buffer_seconds %d is negative", cfg.Pipeline.Input.BufferSeconds))
	}

	if cfg.Memory.Enabled {
		switch cfg.Memory.Store {
		case "letta":
			if cfg.Memory.BaseURL == "" {
				slog.Warn("memory.base_url is empty; the letta store will use its default endpoint")
			}
		case "postgres":
			if cfg.Memory.PostgresDSN == "" {
				errs = append(errs, errors.New("memory.postgres_dsn is required when memory.store is postgres"))
			}
		case "":
			errs = append(errs, errors.New("memory.store is required when memory is enabled"))
		default:
			validateProviderName("memory", cfg.Memory.Store)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
