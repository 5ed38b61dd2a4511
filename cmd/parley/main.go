// Command parley is the main entry point for the Parley voice agent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/parley-voice/parley/internal/app"
	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/discordbot"
	"github.com/parley-voice/parley/internal/health"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/internal/resilience"
	"github.com/parley-voice/parley/pkg/memory"
	lettamem "github.com/parley-voice/parley/pkg/memory/letta"
	"github.com/parley-voice/parley/pkg/memory/postgres"
	"github.com/parley-voice/parley/pkg/provider/agent"
	"github.com/parley-voice/parley/pkg/provider/agent/anyllm"
	"github.com/parley-voice/parley/pkg/provider/agent/letta"
	oaagent "github.com/parley-voice/parley/pkg/provider/agent/openai"
	"github.com/parley-voice/parley/pkg/provider/stt"
	"github.com/parley-voice/parley/pkg/provider/stt/deepgram"
	"github.com/parley-voice/parley/pkg/provider/stt/whisper"
	"github.com/parley-voice/parley/pkg/provider/tts"
	"github.com/parley-voice/parley/pkg/provider/tts/cartesia"
	"github.com/parley-voice/parley/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "parley",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, checkers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:   cfg.Discord.Token,
		GuildID: cfg.Discord.GuildID,
	})
	if err != nil {
		slog.Error("failed to connect to Discord", "err", err)
		return 1
	}
	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	checkers = append(checkers, health.Checker{
		Name: "discord",
		Check: func(context.Context) error {
			if bot.Session().HeartbeatLatency() <= 0 {
				return errors.New("gateway heartbeat not established")
			}
			return nil
		},
	})

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(app.Config{
		Config:     cfg,
		Transport:  bot.Transport(),
		Providers:  providers,
		Checkers:   checkers,
		ConfigPath: *configPath,
		LogLevel:   logLevel,
	})
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	discordbot.NewVoiceCommands(bot, application.Sessions())

	// Start the Discord interaction loop in a separate goroutine.
	go func() {
		if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("discord bot error", "err", err)
		}
	}()

	slog.Info("agent ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	// Close the Discord bot first (unregister commands, disconnect).
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives its config block and constructs the provider from
// the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("cartesia", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []cartesia.Option
		if entry.Model != "" {
			opts = append(opts, cartesia.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, cartesia.WithVoice(entry.Voice))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, cartesia.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, cartesia.WithBaseURL(entry.BaseURL))
		}
		return cartesia.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(entry.Voice))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Agent ─────────────────────────────────────────────────────────────────

	reg.RegisterAgent("letta", func(cfg config.AgentConfig) (agent.Provider, error) {
		var opts []letta.Option
		if cfg.BaseURL != "" {
			opts = append(opts, letta.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			opts = append(opts, letta.WithToken(cfg.APIKey))
		}
		return letta.New(opts...), nil
	})

	reg.RegisterAgent("openai", func(cfg config.AgentConfig) (agent.Provider, error) {
		var opts []oaagent.Option
		if cfg.Model != "" {
			opts = append(opts, oaagent.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, oaagent.WithBaseURL(cfg.BaseURL))
		}
		if cfg.SystemPrompt != "" {
			opts = append(opts, oaagent.WithSystemPrompt(cfg.SystemPrompt))
		}
		return oaagent.New(cfg.APIKey, opts...)
	})

	// anyllm-* backends share one pattern: optional APIKey + optional BaseURL.
	// ollama, llamacpp, and llamafile are local servers addressed via BaseURL.
	for _, backend := range []string{
		"openai", "anthropic", "gemini", "ollama",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterAgent("anyllm-"+backend, func(cfg config.AgentConfig) (agent.Provider, error) {
			var opts []anyllmlib.Option
			if cfg.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
			}
			if cfg.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
			}
			p, err := anyllm.New(backend, cfg.Model, opts...)
			if err != nil {
				return nil, err
			}
			if cfg.SystemPrompt != "" {
				p.SetSystemPrompt(cfg.SystemPrompt)
			}
			return p, nil
		})
	}
}

// buildProviders instantiates the providers named in cfg, wraps the STT and
// TTS stages in fallback chains when a fallback is configured, and returns
// them together with the readiness checks they contribute.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, []health.Checker, error) {
	ps := &app.Providers{}
	var checkers []health.Checker

	// ── STT ───────────────────────────────────────────────────────────────────
	sttPrimary, err := reg.CreateSTT(cfg.Providers.STT.Primary)
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Primary.Name, err)
	}
	ps.STT = sttPrimary
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Primary.Name)

	if fb := cfg.Providers.STT.Fallback; fb != nil {
		sttFallback, err := reg.CreateSTT(*fb)
		if err != nil {
			return nil, nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		chain := resilience.NewSTTFallback(cfg.Providers.STT.Primary.Name, sttPrimary, resilience.ChainConfig{})
		chain.AddFallback(fb.Name, sttFallback)
		ps.STT = chain
		slog.Info("provider created", "kind", "stt", "name", fb.Name, "role", "fallback")
	}

	// ── TTS ───────────────────────────────────────────────────────────────────
	ttsPrimary, err := reg.CreateTTS(cfg.Providers.TTS.Primary)
	if err != nil {
		return nil, nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Primary.Name, err)
	}
	ps.TTS = ttsPrimary
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Primary.Name)

	if fb := cfg.Providers.TTS.Fallback; fb != nil {
		ttsFallback, err := reg.CreateTTS(*fb)
		if err != nil {
			return nil, nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
		}
		chain := resilience.NewTTSFallback(ttsPrimary, resilience.ChainConfig{
			OnFallback: func(name string) {
				observe.DefaultMetrics().RecordTTSFallback(context.Background(), name)
			},
		})
		chain.AddFallback(ttsFallback)
		ps.TTS = chain
		slog.Info("provider created", "kind", "tts", "name", fb.Name, "role", "fallback")
	}

	// ── Agent ─────────────────────────────────────────────────────────────────
	agentPrimary, err := reg.CreateAgent(cfg.Agent)
	if err != nil {
		return nil, nil, fmt.Errorf("create agent provider %q: %w", cfg.Agent.Provider, err)
	}
	ps.Agent = agentPrimary
	slog.Info("provider created", "kind", "agent", "name", cfg.Agent.Provider)

	if fbCfg, ok := cfg.Agent.FallbackConfig(); ok {
		agentFallback, err := reg.CreateAgent(fbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create agent fallback %q: %w", fbCfg.Provider, err)
		}
		chain := resilience.NewAgentFallback(agentPrimary, resilience.ChainConfig{})
		chain.AddFallback(agentFallback)
		ps.Agent = chain
		slog.Info("provider created", "kind", "agent", "name", fbCfg.Provider, "role", "fallback")
	}

	// ── Memory ────────────────────────────────────────────────────────────────
	if cfg.Memory.Enabled {
		store, checker, err := buildMemoryStore(ctx, cfg.Memory)
		if err != nil {
			return nil, nil, err
		}
		ps.Memory = store
		if checker != nil {
			checkers = append(checkers, *checker)
		}
		slog.Info("memory store created", "store", cfg.Memory.Store)
	}

	return ps, checkers, nil
}

func buildMemoryStore(ctx context.Context, cfg config.MemoryConfig) (memory.Store, *health.Checker, error) {
	switch cfg.Store {
	case "letta":
		var opts []lettamem.Option
		if cfg.BaseURL != "" {
			opts = append(opts, lettamem.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Token != "" {
			opts = append(opts, lettamem.WithToken(cfg.Token))
		}
		return lettamem.New(opts...), nil, nil
	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres memory store: %w", err)
		}
		return store, &health.Checker{Name: "memory", Check: store.Ping}, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory store %q", cfg.Store)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Parley — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Primary.Name, cfg.Providers.STT.Primary.Model)
	printFallback("STT fb", cfg.Providers.STT.Fallback)
	printProvider("TTS", cfg.Providers.TTS.Primary.Name, cfg.Providers.TTS.Primary.Model)
	printFallback("TTS fb", cfg.Providers.TTS.Fallback)
	printProvider("Agent", cfg.Agent.Provider, cfg.Agent.Model)
	if fb := cfg.Agent.Fallback; fb != nil {
		printProvider("Agent fb", fb.Provider, fb.Model)
	}
	if cfg.Memory.Enabled {
		printProvider("Memory", cfg.Memory.Store, "")
	} else {
		printProvider("Memory", "", "")
	}
	if cfg.Discord.ChannelID != "" {
		fmt.Printf("║  Startup channel : %-19s ║\n", cfg.Discord.ChannelID)
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func printFallback(kind string, entry *config.ProviderEntry) {
	if entry == nil {
		return
	}
	printProvider(kind, entry.Name, entry.Model)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The returned LevelVar is shared with
// the app layer so config hot reload can retune verbosity in place.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	switch level {
	case config.LogDebug:
		lvl.Set(slog.LevelDebug)
	case config.LogWarn:
		lvl.Set(slog.LevelWarn)
	case config.LogError:
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
