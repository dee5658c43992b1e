// Package app wires the speech studio subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context ends, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via [Providers] (a mock speech provider and a
// mock audio output) and functional options. When an option is not provided,
// New uses the defaults derived from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speechstudio/internal/config"
	"github.com/MrWong99/speechstudio/internal/health"
	"github.com/MrWong99/speechstudio/internal/mcpserver"
	"github.com/MrWong99/speechstudio/internal/observe"
	"github.com/MrWong99/speechstudio/internal/studio"
	"github.com/MrWong99/speechstudio/internal/web"
	"github.com/MrWong99/speechstudio/pkg/audio"
	"github.com/MrWong99/speechstudio/pkg/playback"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
	"github.com/MrWong99/speechstudio/pkg/visual"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after Run's
// context ends.
const shutdownGrace = 5 * time.Second

// Providers holds the two external dependencies of the studio. Populated by
// main.go via the config registry.
type Providers struct {
	Speech speech.Provider
	Output playback.Output
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	levelVar       *slog.LevelVar
	log            *slog.Logger
	extraSinks     []visual.Sink
	pacer          func() visual.Pacer

	// Subsystems, initialised in New and torn down in Shutdown.
	ctrl   *playback.Controller
	hub    *web.Hub
	feed   *visual.Feed
	studio *studio.Studio
	server *web.Server
	mcp    *mcpserver.Server

	mu       sync.Mutex
	listener net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics shared by every subsystem.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets config reloads change the log level of a logger built on v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithSink adds a visualization sink next to the WebSocket hub, e.g. a
// terminal renderer.
func WithSink(s visual.Sink) Option {
	return func(a *App) { a.extraSinks = append(a.extraSinks, s) }
}

// WithPacer replaces the feed's frame clock.
func WithPacer(newPacer func() visual.Pacer) Option {
	return func(a *App) { a.pacer = newPacer }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Speech == nil {
		return nil, errors.New("app: a speech provider is required")
	}
	if providers.Output == nil {
		return nil, errors.New("app: an audio output is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	format := audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 1. Playback controller ───────────────────────────────────────────
	a.ctrl = playback.NewController(providers.Output,
		playback.WithFFTSize(cfg.Audio.FFTSize),
		playback.WithLogger(a.log),
	)

	// ── 2. Visualization feed ────────────────────────────────────────────
	a.hub = web.NewHub(web.WithHubLogger(a.log), web.WithHubMetrics(a.metrics))
	sinks := append([]visual.Sink{a.hub}, a.extraSinks...)
	feedOpts := []visual.Option{
		visual.WithBins(cfg.Visualizer.Bins),
		visual.WithCanvas(cfg.Visualizer.Width, cfg.Visualizer.Height),
		visual.WithFPS(cfg.Visualizer.FPS),
		visual.WithLogger(a.log),
	}
	if a.pacer != nil {
		feedOpts = append(feedOpts, visual.WithPacer(a.pacer))
	}
	a.feed = visual.NewFeed(a.ctrl, newFanout(a.metrics, sinks...), feedOpts...)

	// ── 3. Studio ────────────────────────────────────────────────────────
	a.studio = studio.New(providers.Speech, a.ctrl,
		studio.WithFeed(a.feed),
		studio.WithFormat(format),
		studio.WithDefaultVoice(cfg.Voice.Default),
		studio.WithAppName(cfg.Export.AppName),
		studio.WithProviderName(cfg.Provider.Name),
		studio.WithLogger(a.log),
		studio.WithMetrics(a.metrics),
	)

	// ── 4. Outer surfaces ────────────────────────────────────────────────
	hh := health.New(
		health.VoicesCheck("provider", providers.Speech),
		health.OpenCheck("studio", a.studio.Closed),
	)
	serverOpts := []web.Option{
		web.WithHealth(hh),
		web.WithMetrics(a.metrics),
		web.WithLogger(a.log),
	}
	if a.metricsHandler != nil {
		serverOpts = append(serverOpts, web.WithMetricsHandler(a.metricsHandler))
	}
	a.server = web.NewServer(a.studio, a.hub, serverOpts...)
	a.mcp = mcpserver.New(a.studio,
		mcpserver.WithExportDir(cfg.Export.Dir),
		mcpserver.WithMetrics(a.metrics),
		mcpserver.WithLogger(a.log),
	)

	// The studio closes the feed and controller; the controller closes the
	// output.
	a.closers = append(a.closers,
		func() error { a.hub.Close(); return nil },
		a.studio.Close,
	)

	a.log.InfoContext(ctx, "app initialised",
		"provider", cfg.Provider.Name,
		"output", cfg.Audio.Output,
		"format", format.String(),
		"voice", cfg.Voice.Default,
	)
	return a, nil
}

// Studio returns the studio driven by every surface.
func (a *App) Studio() *studio.Studio { return a.studio }

// Handler returns the HTTP handler serving the API, the visualizer stream and
// the operational endpoints.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// MCP returns the MCP tool server.
func (a *App) MCP() *mcpserver.Server { return a.mcp }

// Addr returns the address Run is listening on, or nil before Run binds.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on the configured address and blocks until ctx is
// cancelled or the server fails. When ctx is done, Run drains in-flight
// requests and returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.listener = ln.Addr()
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		// Visualizer sockets are hijacked and do not drain on Shutdown.
		a.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change. Sections
// that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.DefaultVoiceChanged {
		a.studio.SetDefaultVoice(d.NewDefaultVoice)
		a.log.Info("default voice changed", "voice", d.NewDefaultVoice)
	}
	if d.FPSChanged {
		a.feed.SetFPS(d.NewFPS)
		a.log.Info("visualizer fps changed", "fps", d.NewFPS)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
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

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
