// Package web exposes the studio over HTTP: a small JSON API mirroring the
// studio's operations, a WAV download, and a WebSocket stream of
// visualization frames.
//
// Routes:
//
//	POST /api/generate    {text, voice} → stop, generate, decode, load, play
//	POST /api/play        replay the retained audio
//	POST /api/stop        stop playback
//	GET  /api/status      studio snapshot
//	GET  /api/voices      provider voices and the default voice
//	PUT  /api/voice       {voice} → change the default voice
//	GET  /api/export      WAV attachment
//	GET  /ws/visualizer   WebSocket frame stream
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/MrWong99/speechstudio/internal/health"
	"github.com/MrWong99/speechstudio/internal/observe"
	"github.com/MrWong99/speechstudio/internal/studio"
	"github.com/MrWong99/speechstudio/pkg/audio"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

// maxBodyBytes caps request bodies. Scripts are short prose.
const maxBodyBytes = 1 << 20

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server serves the studio API.
type Server struct {
	studio         *studio.Studio
	hub            *Hub
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	log            *slog.Logger
}

// NewServer returns a server for st. hub may be nil, in which case the
// visualizer route is not mounted.
func NewServer(st *studio.Studio, hub *Hub, opts ...Option) *Server {
	s := &Server{studio: st, hub: hub, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/play", s.handlePlay)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("PUT /api/voice", s.handleSetVoice)
	mux.HandleFunc("GET /api/export", s.handleExport)
	if s.hub != nil {
		mux.Handle("GET /ws/visualizer", s.hub)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics,
		observe.WithRequestLogger(s.log),
		observe.WithQuietRoutes("GET /healthz", "GET /readyz", "GET /metrics"),
	)(mux)
}

// ── Wire types ───────────────────────────────────────────────────────────────

type generateRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type generateResponse struct {
	ID         string        `json:"id"`
	Voice      string        `json:"voice"`
	Bytes      int           `json:"bytes"`
	DurationMS int64         `json:"duration_ms"`
	Status     studio.Status `json:"status"`
}

type voicesResponse struct {
	Default string         `json:"default"`
	Voices  []speech.Voice `json:"voices"`
}

type setVoiceRequest struct {
	Voice string `json:"voice"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := s.studio.Generate(r.Context(), speech.Request{Text: req.Text, Voice: req.Voice})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		ID:         g.ID,
		Voice:      g.Voice,
		Bytes:      g.Bytes,
		DurationMS: g.Duration.Milliseconds(),
		Status:     s.studio.Status(),
	})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := s.studio.Replay(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.studio.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.studio.Stop(r.Context())
	writeJSON(w, http.StatusOK, s.studio.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.studio.Status())
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	voices := s.studio.Voices()
	if voices == nil {
		voices = []speech.Voice{}
	}
	writeJSON(w, http.StatusOK, voicesResponse{Default: s.studio.DefaultVoice(), Voices: voices})
}

func (s *Server) handleSetVoice(w http.ResponseWriter, r *http.Request) {
	var req setVoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	voices := s.studio.Voices()
	known := slices.ContainsFunc(voices, func(v speech.Voice) bool { return v.ID == req.Voice })
	if req.Voice == "" || (len(voices) > 0 && !known) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown voice %q", req.Voice)})
		return
	}
	s.studio.SetDefaultVoice(req.Voice)
	writeJSON(w, http.StatusOK, s.studio.Status())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := s.studio.Export()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.RecordExport(r.Context(), "http")
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(exp.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(exp.Data); err != nil {
		s.log.Debug("web: export write failed", "err", err)
	}
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// statusFor maps studio and pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var (
		ge *speech.GenerationError
		de *audio.DecodeError
		fe *audio.FormatError
		pe *audio.PlaybackError
	)
	switch {
	case errors.Is(err, studio.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, studio.ErrNoAudio):
		return http.StatusNotFound
	case errors.Is(err, studio.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &ge):
		switch ge.Reason {
		case speech.ReasonEmptyScript:
			return http.StatusBadRequest
		case speech.ReasonRequest:
			return http.StatusBadGateway
		default:
			return http.StatusUnprocessableEntity
		}
	case errors.As(err, &de), errors.As(err, &fe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pe):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	// Replay with nothing loaded conflicts with the current state rather
	// than naming a missing resource.
	if errors.Is(err, studio.ErrNoAudio) && r.URL.Path == "/api/play" {
		code = http.StatusConflict
	}
	if code >= 500 {
		s.log.Error("web: request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Reason: string(speech.ReasonOf(err))})
}

// decodeBody decodes a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("web: encode response", "err", err)
	}
}
