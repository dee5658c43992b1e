// Command speechstudio is the entry point for the speech studio: it generates
// speech with a hosted model, plays it on the local output, streams a live
// spectrum to browsers and exports WAV files.
//
// Modes:
//
//	speechstudio -config config.yaml               HTTP API and visualizer
//	speechstudio -config config.yaml -mcp          MCP tools on stdio, plus HTTP
//	speechstudio -say "Say cheerfully: hi" [-voice Puck] [-out take.wav]
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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speechstudio/internal/app"
	"github.com/MrWong99/speechstudio/internal/config"
	"github.com/MrWong99/speechstudio/internal/observe"
	"github.com/MrWong99/speechstudio/internal/resilience"
	"github.com/MrWong99/speechstudio/pkg/audio"
	"github.com/MrWong99/speechstudio/pkg/playback"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
	"github.com/MrWong99/speechstudio/pkg/provider/speech/gemini"
	"github.com/MrWong99/speechstudio/pkg/provider/speech/openai"
	"github.com/MrWong99/speechstudio/pkg/visual"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools over stdin/stdout alongside the HTTP API")
	say := flag.String("say", "", "generate and play this script once, then exit")
	voice := flag.String("voice", "", "voice for -say (default: the configured voice)")
	out := flag.String("out", "", "with -say, write the result as WAV to this file or directory")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath, *say != "")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "speechstudio: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "speechstudio: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("speechstudio starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{Registry: promReg})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithLevelVar(levelVar),
		app.WithLogger(logger),
		app.WithMetricsHandler(observe.MetricsHandler(promReg)),
	}
	if *say != "" {
		opts = append(opts, app.WithSink(visual.NewTextSink(os.Stderr, 64)))
	}

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if *say != "" {
		return sayOnce(ctx, application, *say, *voice, *out)
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })

	// Config hot reload.
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, err := config.NewWatcher(*configPath, application.ApplyConfig, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}
	if *serveMCP {
		g.Go(func() error {
			if err := application.MCP().Run(gctx); err != nil {
				return err
			}
			// The MCP client went away; take the HTTP side down with it.
			return context.Canceled
		})
	}

	slog.Info("server ready; press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig loads path. In one-shot mode a missing file falls back to the
// defaults so that only an API key in the environment is needed.
func loadConfig(path string, oneShot bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !oneShot || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sayOnce generates script, waits for playback to finish and optionally
// exports the result.
func sayOnce(ctx context.Context, a *app.App, script, voice, out string) int {
	st := a.Studio()
	g, err := st.Generate(ctx, speech.Request{Text: script, Voice: voice})
	if err != nil {
		slog.Error("generation failed", "err", err)
		return 1
	}
	slog.Info("playing", "voice", g.Voice, "duration", g.Duration, "bytes", g.Bytes)

	if err := st.Wait(ctx); err != nil {
		st.Stop(context.Background())
		slog.Info("interrupted")
	}
	fmt.Fprintln(os.Stderr)

	if out != "" {
		path, err := st.ExportTo(out)
		if err != nil {
			slog.Error("export failed", "err", err)
			return 1
		}
		observe.DefaultMetrics().RecordExport(ctx, "cli")
		fmt.Println(path)
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in factories into reg. Each
// speech factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package; an empty api_key falls back to the
// provider's conventional environment variable.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Speech ────────────────────────────────────────────────────────────────

	reg.RegisterSpeech("gemini", func(entry config.ProviderEntry) (speech.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if v := optString(entry.Options, "default_voice"); v != "" {
			opts = append(opts, gemini.WithDefaultVoice(v))
		}
		return gemini.New(context.Background(), apiKey(entry, "GEMINI_API_KEY", "GOOGLE_API_KEY"), opts...)
	})

	reg.RegisterSpeech("openai", func(entry config.ProviderEntry) (speech.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if t := optString(entry.Options, "timeout"); t != "" {
			d, err := time.ParseDuration(t)
			if err != nil {
				return nil, fmt.Errorf("openai: options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(d))
		}
		if v := optString(entry.Options, "default_voice"); v != "" {
			opts = append(opts, openai.WithDefaultVoice(v))
		}
		return openai.New(apiKey(entry, "OPENAI_API_KEY"), entry.Model, opts...)
	})

	// ── Outputs ───────────────────────────────────────────────────────────────

	reg.RegisterOutput(config.OutputSpeaker, func(ac config.AudioConfig) (playback.Output, error) {
		return playback.NewSpeaker(formatOf(ac), time.Duration(ac.BufferMS)*time.Millisecond), nil
	})

	reg.RegisterOutput(config.OutputDiscard, func(ac config.AudioConfig) (playback.Output, error) {
		return playback.NewDiscard(time.Duration(ac.BufferMS) * time.Millisecond), nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the speech provider and audio output named in
// cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	p, err := reg.CreateSpeech(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("create speech provider %q: %w", cfg.Provider.Name, err)
	}
	slog.Info("provider created", "kind", "speech", "name", cfg.Provider.Name, "model", cfg.Provider.Model)

	// Fail fast while the backend is unreachable. Nothing is retried.
	bcfg := resilience.BreakerConfig{
		Name:        cfg.Provider.Name,
		MaxFailures: optInt(cfg.Provider.Options, "breaker_max_failures"),
	}
	if c := optString(cfg.Provider.Options, "breaker_cooldown"); c != "" {
		d, err := time.ParseDuration(c)
		if err != nil {
			return nil, fmt.Errorf("provider options.breaker_cooldown: %w", err)
		}
		bcfg.Cooldown = d
	}
	guarded := resilience.Speech(p, bcfg)

	out, err := reg.CreateOutput(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio output %q: %w", cfg.Audio.Output, err)
	}
	slog.Info("output created", "name", cfg.Audio.Output, "buffer_ms", cfg.Audio.BufferMS)

	return &app.Providers{Speech: guarded, Output: out}, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// apiKey returns entry.APIKey, or the first non-empty environment variable
// among envs.
func apiKey(entry config.ProviderEntry, envs ...string) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	for _, e := range envs {
		if v := os.Getenv(e); v != "" {
			return v
		}
	}
	return ""
}

// optInt extracts an integer value from a provider Options map[string]any.
// Returns 0 if the map is nil, the key is absent, or the value is not an int.
func optInt(opts map[string]any, key string) int {
	v, _ := opts[key].(int)
	return v
}

// formatOf returns the PCM format ac fixes.
func formatOf(ac config.AudioConfig) audio.Format {
	return audio.Format{SampleRate: ac.SampleRate, Channels: ac.Channels}
}

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
