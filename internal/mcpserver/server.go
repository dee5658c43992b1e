// Package mcpserver exposes the studio as Model Context Protocol tools so an
// assistant can speak, replay, stop and export on a user's behalf.
//
// Tools:
//
//	generate_speech {text, voice?}  generate and play
//	play                            replay the retained audio
//	stop                            stop playback
//	status                          studio snapshot as JSON
//	list_voices                     voices and the default voice as JSON
//	export_wav {path?}              write the retained audio as WAV
//
// Studio failures are reported as tool errors (IsError set) so the calling
// model can read them; only protocol problems surface as call errors.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/speechstudio/internal/observe"
	"github.com/MrWong99/speechstudio/internal/studio"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

// Version is reported to clients in the server implementation info.
const Version = "1.0.0"

// ErrNoExportPath is reported by export_wav when neither the call nor the
// server names a destination.
var ErrNoExportPath = errors.New("mcpserver: no export path given and no export directory configured")

// Option configures a [Server].
type Option func(*Server)

// WithExportDir confines export_wav to dir. Paths given in a call are
// resolved inside it, and the generated file name is used when none is given.
func WithExportDir(dir string) Option {
	return func(s *Server) { s.exportDir = dir }
}

// WithMetrics sets the metrics recorded for each tool call.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server wraps an MCP server whose tools drive a studio.
type Server struct {
	studio    *studio.Studio
	exportDir string
	metrics   *observe.Metrics
	log       *slog.Logger
	server    *mcpsdk.Server
}

// New builds the MCP server and registers every tool.
func New(st *studio.Studio, opts ...Option) *Server {
	s := &Server{studio: st, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.server = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "speechstudio", Version: Version}, nil)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name: "generate_speech",
		Description: "Generate speech for a script and play it. The script may carry delivery " +
			"directions such as \"Say cheerfully:\" and inline tags like <whisper>.",
	}, instrument(s, "generate_speech", s.generate))
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "play",
		Description: "Replay the most recently generated audio from the beginning.",
	}, instrument(s, "play", s.play))
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "stop",
		Description: "Stop playback. The audio stays available for replay and export.",
	}, instrument(s, "stop", s.stop))
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "status",
		Description: "Report the playback state, default voice and retained audio as JSON.",
	}, instrument(s, "status", s.status))
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "list_voices",
		Description: "List the voices the speech backend accepts as JSON.",
	}, instrument(s, "list_voices", s.listVoices))
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "export_wav",
		Description: "Write the most recently generated audio to a WAV file and return its path.",
	}, instrument(s, "export_wav", s.export))

	return s
}

// MCP returns the underlying SDK server, e.g. to connect custom transports.
func (s *Server) MCP() *mcpsdk.Server { return s.server }

// Run serves the tools over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

// ── Tool inputs ──────────────────────────────────────────────────────────────

// GenerateInput is the argument of generate_speech.
type GenerateInput struct {
	Text  string `json:"text" jsonschema:"the script to speak, including any delivery directions"`
	Voice string `json:"voice,omitempty" jsonschema:"voice identifier; the default voice is used when empty"`
}

// ExportInput is the argument of export_wav.
type ExportInput struct {
	Path string `json:"path,omitempty" jsonschema:"target file or directory, relative to the export directory when one is configured; existing files are not overwritten"`
}

// NoInput is the argument of tools that take none.
type NoInput struct{}

// ── Handlers ─────────────────────────────────────────────────────────────────

// toolFunc is the domain-level handler shape: it returns the text to show
// the caller or an error that becomes a tool error.
type toolFunc[In any] func(ctx context.Context, in In) (string, error)

// instrument adapts fn to the SDK handler shape, recording call counts and
// latency and turning errors into tool error results.
func instrument[In any](s *Server, name string, fn toolFunc[In]) mcpsdk.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, any, error) {
		start := time.Now()
		text, err := fn(ctx, in)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordToolCall(ctx, name, status)
		s.metrics.ToolExecutionDuration.Record(ctx, elapsed,
			metric.WithAttributes(attribute.String("tool", name)))

		if err != nil {
			s.log.Warn("mcpserver: tool failed", "tool", name, "err", err)
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil, nil
	}
}

func (s *Server) generate(ctx context.Context, in GenerateInput) (string, error) {
	g, err := s.studio.Generate(ctx, speech.Request{Text: in.Text, Voice: in.Voice})
	if err != nil {
		if g != nil {
			return "", fmt.Errorf("generated %s with voice %s but playback failed: %w", g.ID, g.Voice, err)
		}
		return "", err
	}
	return fmt.Sprintf("Playing %s of speech with voice %s (generation %s).",
		g.Duration.Round(10*time.Millisecond), g.Voice, g.ID), nil
}

func (s *Server) play(ctx context.Context, _ NoInput) (string, error) {
	if err := s.studio.Replay(ctx); err != nil {
		return "", err
	}
	return "Playing.", nil
}

func (s *Server) stop(ctx context.Context, _ NoInput) (string, error) {
	s.studio.Stop(ctx)
	return "Stopped.", nil
}

func (s *Server) status(_ context.Context, _ NoInput) (string, error) {
	return marshal(s.studio.Status())
}

type voicesOutput struct {
	Default string         `json:"default"`
	Voices  []speech.Voice `json:"voices"`
}

func (s *Server) listVoices(_ context.Context, _ NoInput) (string, error) {
	return marshal(voicesOutput{Default: s.studio.DefaultVoice(), Voices: s.studio.Voices()})
}

func (s *Server) export(ctx context.Context, in ExportInput) (string, error) {
	exp, err := s.studio.Export()
	if err != nil {
		return "", err
	}

	var written string
	switch {
	case s.exportDir != "":
		written, err = writeInDir(s.exportDir, in.Path, exp)
	case in.Path != "":
		written, err = writeNew(in.Path, exp)
	default:
		return "", ErrNoExportPath
	}
	if err != nil {
		return "", fmt.Errorf("mcpserver: export: %w", err)
	}
	s.metrics.RecordExport(ctx, "mcp")
	return written, nil
}

// writeInDir writes exp below dir. name is relative to dir and may name a
// subdirectory; names that leave dir (absolute, "..", symlinks pointing
// out) are refused by [os.Root]. Existing files are never replaced.
func writeInDir(dir, name string, exp *studio.Export) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", err
	}
	defer root.Close()

	if name == "" {
		name = exp.Filename
	} else if info, err := root.Stat(name); err == nil && info.IsDir() {
		name = filepath.Join(name, exp.Filename)
	}
	f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if err := writeAndClose(f, exp.Data); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// writeNew writes exp to path, or into it when path is a directory. Existing
// files are never replaced.
func writeNew(path string, exp *studio.Export) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, exp.Filename)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if err := writeAndClose(f, exp.Data); err != nil {
		return "", err
	}
	return path, nil
}

func writeAndClose(f *os.File, data []byte) error {
	_, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("mcpserver: encode: %w", err)
	}
	return string(b), nil
}
