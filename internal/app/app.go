// Package app wires the Parley subsystems into a running application.
//
// [SessionManager] owns voice session lifecycles: it joins a channel and
// connects capture, transcription, aggregation, turn taking, the
// conversation orchestrator, and playback. [App] owns the process-level
// surface around it: the HTTP observability endpoint and the config
// watcher, run under one errgroup until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/health"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/pkg/audio"
)

// shutdownTimeout bounds HTTP server drain and session teardown during
// shutdown.
const shutdownTimeout = 15 * time.Second

// Config configures an [App].
type Config struct {
	// Config is the loaded application configuration.
	Config *config.Config

	// Transport joins voice channels. Provided by the Discord bot layer.
	Transport audio.Transport

	// Providers are the STT, TTS, agent, and memory backends.
	Providers *Providers

	// Checkers are the readiness checks served on /readyz.
	Checkers []health.Checker

	// Metrics receives pipeline metrics. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// ConfigPath, when set, enables hot reload of the file at that path.
	ConfigPath string

	// LogLevel is the shared level of the process logger. When set, config
	// hot reload adjusts it in place so the change reaches the installed
	// handler.
	LogLevel *slog.LevelVar

	// Logger is the slog logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// App owns the process-level lifecycle around the session manager.
type App struct {
	cfg      *config.Config
	sessions *SessionManager
	metrics  *observe.Metrics
	logger   *slog.Logger

	handler    http.Handler
	configPath string
	logLevel   *slog.LevelVar
}

// New creates an App and its [SessionManager]. No goroutines start until
// [App.Run].
func New(cfg Config) (*App, error) {
	if cfg.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("app: transport is required")
	}
	if cfg.Providers == nil {
		return nil, errors.New("app: providers are required")
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessions := NewSessionManager(SessionManagerConfig{
		Transport: cfg.Transport,
		Providers: cfg.Providers,
		Config:    cfg.Config,
		Metrics:   metrics,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	health.New(cfg.Checkers).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &App{
		cfg:        cfg.Config,
		sessions:   sessions,
		metrics:    metrics,
		logger:     logger,
		handler:    observe.Middleware(metrics)(mux),
		configPath: cfg.ConfigPath,
		logLevel:   cfg.LogLevel,
	}, nil
}

// Sessions returns the session manager, for wiring slash commands.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}

// Handler returns the HTTP handler serving /healthz, /readyz, and /metrics.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run starts the HTTP endpoint and optional config watcher, joins the
// startup channel when one is configured, and blocks until ctx is
// cancelled. The active session, if any, is stopped on the way out.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("http endpoint listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(drainCtx); err != nil {
				a.logger.Warn("http shutdown", "error", err)
			}
			return ctx.Err()
		})
	} else {
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	}

	if a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, a.handleConfigChange,
			config.WithWatcherLogger(a.logger))
		if err != nil {
			a.logger.Warn("config watcher disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	// Optional startup channel: join without waiting for /join. A failure
	// here leaves the bot usable via slash commands.
	if ch := a.cfg.Discord.ChannelID; ch != "" {
		if err := a.sessions.Start(ctx, ch, "startup"); err != nil {
			a.logger.Warn("startup channel join failed", "channel_id", ch, "error", err)
		}
	}

	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := a.sessions.Stop(stopCtx); stopErr != nil && !errors.Is(stopErr, ErrNoSession) {
		a.logger.Warn("session teardown", "error", stopErr)
	}

	return err
}

// handleConfigChange applies hot-reloadable settings from a rewritten
// config file. Provider and credential changes require a restart and are
// deliberately not applied.
func (a *App) handleConfigChange(oldCfg, newCfg *config.Config) {
	diff := config.Diff(oldCfg, newCfg)
	if diff.Empty() {
		return
	}

	if diff.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(slogLevel(diff.NewLogLevel))
			a.logger.Info("log level updated", "level", diff.NewLogLevel)
		} else {
			a.logger.Warn("log level change requires a restart", "level", diff.NewLogLevel)
		}
	}
	if diff.AgentChanged || diff.BargeInChanged || diff.AggregatorChanged {
		a.sessions.mu.Lock()
		a.sessions.cfg = newCfg
		active := a.sessions.active
		a.sessions.mu.Unlock()
		if active {
			a.logger.Info("config updated; pipeline changes apply on next session")
		} else {
			a.logger.Info("config updated")
		}
	}
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
