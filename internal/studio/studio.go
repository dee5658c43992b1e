// Package studio sequences the speech pipeline for one user: generate a
// script with the configured provider, decode the result, play it with a
// live visualization, replay or stop it, and export it as WAV.
//
// A [Studio] owns the retained [audio.AudioBytes] of the last successful
// generation. Starting a new generation stops playback and drops the
// retained audio before the provider is called, so any failure leaves the
// studio with nothing loaded. Only one generation runs at a time; a second
// request while one is in flight fails fast with [ErrBusy].
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/speechstudio/internal/observe"
	"github.com/MrWong99/speechstudio/pkg/audio"
	"github.com/MrWong99/speechstudio/pkg/audio/wav"
	"github.com/MrWong99/speechstudio/pkg/playback"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
	"github.com/MrWong99/speechstudio/pkg/visual"
)

var (
	// ErrBusy is returned by [Studio.Generate] while another generation is
	// in flight.
	ErrBusy = errors.New("studio: a generation is already in progress")

	// ErrNoAudio is returned when replay or export is requested before any
	// audio has been generated.
	ErrNoAudio = errors.New("studio: no audio generated yet")

	// ErrClosed is returned by every operation after [Studio.Close].
	ErrClosed = errors.New("studio: closed")
)

// DefaultAppName prefixes exported filenames unless [WithAppName] is used.
const DefaultAppName = "gemini"

// Status is a snapshot of the studio.
type Status struct {
	// State is the playback state: "idle", "loaded" or "playing".
	State string `json:"state"`

	// Voice is the default voice used when a request names none.
	Voice string `json:"voice"`

	// LastVoice is the voice that produced the retained audio.
	LastVoice string `json:"last_voice,omitempty"`

	// HasAudio reports whether audio is retained for replay and export.
	HasAudio bool `json:"has_audio"`

	// DurationMS is the playback length of the retained audio.
	DurationMS int64 `json:"duration_ms"`

	// Generating reports whether a generation is in flight.
	Generating bool `json:"generating"`

	// GenerationID identifies the in-flight or last successful generation.
	GenerationID string `json:"generation_id,omitempty"`
}

// Generation describes a successful generation.
type Generation struct {
	ID       string        `json:"id"`
	Voice    string        `json:"voice"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Format   audio.Format  `json:"-"`
}

// Export is an encoded WAV file ready to be delivered.
type Export struct {
	Filename string
	Data     []byte
}

// ── Options ──────────────────────────────────────────────────────────────────

// Option configures a [Studio].
type Option func(*Studio)

// WithFeed attaches the visualization feed to every playback session.
func WithFeed(f *visual.Feed) Option {
	return func(s *Studio) { s.feed = f }
}

// WithFormat sets the PCM format generated audio is expected in. Default:
// [audio.DefaultFormat].
func WithFormat(f audio.Format) Option {
	return func(s *Studio) { s.format = f }
}

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(v string) Option {
	return func(s *Studio) { s.defaultVoice = v }
}

// WithAppName sets the prefix of exported filenames.
func WithAppName(name string) Option {
	return func(s *Studio) { s.appName = name }
}

// WithProviderName sets the provider label used in errors and metrics.
func WithProviderName(name string) Option {
	return func(s *Studio) { s.providerName = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Studio) { s.log = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Studio) { s.metrics = m }
}

// WithClock overrides the time source used for export timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Studio) { s.now = now }
}

// ── Studio ───────────────────────────────────────────────────────────────────

// Studio is safe for concurrent use.
type Studio struct {
	provider     speech.Provider
	ctrl         *playback.Controller
	feed         *visual.Feed
	format       audio.Format
	appName      string
	providerName string
	log          *slog.Logger
	metrics      *observe.Metrics
	now          func() time.Time

	// gen is held for the whole of a generation.
	gen sync.Mutex

	mu           sync.Mutex
	raw          audio.AudioBytes
	rawVoice     string
	id           string
	defaultVoice string
	generating   bool
	closed       bool
	wasPlaying   bool
	interrupts   int // in-flight calls that may end a session on purpose
	playDone     chan struct{}
}

// New returns a studio generating with p and playing through ctrl. The
// studio registers itself as ctrl's state listener.
func New(p speech.Provider, ctrl *playback.Controller, opts ...Option) *Studio {
	s := &Studio{
		provider:     p,
		ctrl:         ctrl,
		format:       audio.DefaultFormat,
		appName:      DefaultAppName,
		providerName: "speech",
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	ctrl.OnStateChange(s.onStateChange)
	return s
}

// Generate stops playback, drops the retained audio and synthesises
// req.Text. On success the new audio is retained, loaded and played from the
// beginning. An empty script is rejected before anything is touched.
func (s *Studio) Generate(ctx context.Context, req speech.Request) (*Generation, error) {
	if err := speech.CheckScript(s.providerName, req.Text); err != nil {
		return nil, err
	}
	if !s.gen.TryLock() {
		return nil, ErrBusy
	}
	defer s.gen.Unlock()

	if req.Voice == "" {
		req.Voice = s.DefaultVoice()
	}

	_ = s.interrupt(ctx, "superseded", func() error {
		s.ctrl.Unload()
		return nil
	})

	id := uuid.NewString()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.raw, s.rawVoice = nil, ""
	s.id = id
	s.generating = true
	s.mu.Unlock()

	ctx, span, log := observe.GenerationSpan(ctx, s.log, id, req.Voice, s.providerName)
	defer span.End()

	g, buf, raw, err := s.synthesise(ctx, log, id, req)
	if err != nil {
		s.mu.Lock()
		s.generating = false
		s.mu.Unlock()
		span.RecordError(err)
		log.Warn("generation failed", "err", err)
		return nil, fmt.Errorf("studio: generate: %w", err)
	}

	s.mu.Lock()
	s.raw, s.rawVoice = raw, g.Voice
	s.generating = false
	s.mu.Unlock()

	s.ctrl.Load(buf)
	if err := s.ctrl.Play(); err != nil {
		log.Error("playback failed", "err", err)
		return g, fmt.Errorf("studio: generate: %w", err)
	}
	s.metrics.RecordPlaybackStart(ctx, "generate")
	log.Info("generation played", "bytes", g.Bytes, "duration", g.Duration)
	return g, nil
}

// synthesise calls the provider and decodes its answer.
func (s *Studio) synthesise(ctx context.Context, log *slog.Logger, id string, req speech.Request) (*Generation, *audio.PlayableBuffer, audio.AudioBytes, error) {
	start := time.Now()
	res, err := s.provider.Generate(ctx, req)
	reason := ""
	if err != nil {
		reason = string(speech.ReasonOf(err))
		if reason == "" {
			reason = string(speech.ReasonRequest)
		}
	}
	s.metrics.RecordGeneration(ctx, s.providerName, time.Since(start).Seconds(), reason)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Debug("provider answered", "elapsed", time.Since(start))

	start = time.Now()
	defer func() { s.metrics.DecodeDuration.Record(ctx, time.Since(start).Seconds()) }()

	raw, err := audio.DecodeBytes(res.Audio)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, nil, &speech.GenerationError{Provider: s.providerName, Reason: speech.ReasonMissingPayload}
	}
	if res.Format != (audio.Format{}) && res.Format != s.format {
		return nil, nil, nil, &audio.FormatError{
			Format: res.Format,
			Length: len(raw),
			Reason: fmt.Sprintf("provider produced %s but the pipeline expects %s", res.Format, s.format),
		}
	}
	buf, err := audio.ToPlayableBuffer(raw, s.format)
	if err != nil {
		return nil, nil, nil, err
	}

	voice := res.Voice
	if voice == "" {
		voice = req.Voice
	}
	return &Generation{
		ID:       id,
		Voice:    voice,
		Bytes:    len(raw),
		Duration: buf.Duration(),
		Format:   s.format,
	}, buf, raw, nil
}

// Replay plays the retained audio again from the beginning.
func (s *Studio) Replay(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.ctrl.Buffer() == nil {
		return ErrNoAudio
	}
	if err := s.interrupt(ctx, "replayed", s.ctrl.Play); err != nil {
		return fmt.Errorf("studio: replay: %w", err)
	}
	s.metrics.RecordPlaybackStart(ctx, "replay")
	return nil
}

// Stop stops playback. It is a no-op when nothing is playing.
func (s *Studio) Stop(ctx context.Context) {
	s.interrupt(ctx, "stopped", func() error {
		s.ctrl.Stop()
		return nil
	})
}

// interrupt runs fn, which may cut the current session short. A session that
// was playing is counted as ended for reason instead of as drained.
func (s *Studio) interrupt(ctx context.Context, reason string, fn func() error) error {
	s.mu.Lock()
	s.interrupts++
	s.mu.Unlock()

	playing := s.ctrl.Playing()
	err := fn()

	s.mu.Lock()
	s.interrupts--
	s.mu.Unlock()
	if playing {
		s.metrics.RecordPlaybackEnd(ctx, reason)
	}
	return err
}

// Export encodes the retained audio as WAV. The filename carries the voice
// that produced the audio.
func (s *Studio) Export() (*Export, error) {
	s.mu.Lock()
	raw, voice, closed := s.raw, s.rawVoice, s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if raw == nil {
		return nil, ErrNoAudio
	}
	return &Export{
		Filename: wav.Filename(s.appName, voice, s.now()),
		Data:     wav.Encode(raw, s.format.SampleRate, s.format.Channels),
	}, nil
}

// ExportTo writes the retained audio as WAV and returns the written path.
// When path names an existing directory the generated filename is used
// inside it; otherwise path is the target file.
func (s *Studio) ExportTo(path string) (string, error) {
	exp, err := s.Export()
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, exp.Filename)
	}
	if err := os.WriteFile(path, exp.Data, 0o644); err != nil {
		return "", fmt.Errorf("studio: export: %w", err)
	}
	return path, nil
}

// Status returns a snapshot of the studio.
func (s *Studio) Status() Status {
	st := s.ctrl.State()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:        st.String(),
		Voice:        s.defaultVoice,
		LastVoice:    s.rawVoice,
		HasAudio:     s.raw != nil,
		DurationMS:   s.raw.Duration(s.format).Milliseconds(),
		Generating:   s.generating,
		GenerationID: s.id,
	}
}

// Voices returns the provider's voices.
func (s *Studio) Voices() []speech.Voice {
	return s.provider.Voices()
}

// DefaultVoice returns the voice used when a request names none.
func (s *Studio) DefaultVoice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultVoice
}

// SetDefaultVoice changes the voice used when a request names none.
func (s *Studio) SetDefaultVoice(v string) {
	s.mu.Lock()
	s.defaultVoice = v
	s.mu.Unlock()
}

// Wait blocks until the current playback session ends or ctx is done. It
// returns immediately when nothing is playing.
func (s *Studio) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.playDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether [Studio.Close] has been called.
func (s *Studio) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops playback, shuts the feed down and closes the controller.
func (s *Studio) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.raw = nil
	if s.playDone != nil {
		close(s.playDone)
		s.playDone = nil
	}
	s.mu.Unlock()

	if s.feed != nil {
		s.feed.Close()
	}
	return s.ctrl.Close()
}

// onStateChange follows the controller. Notifications may arrive out of
// order, so the controller is queried for the state that is current now.
func (s *Studio) onStateChange(playback.State) {
	playing := s.ctrl.Playing()
	var an *playback.Analyser
	if playing {
		an = s.ctrl.Analyser()
	}

	s.mu.Lock()
	drained := s.wasPlaying && !playing && s.interrupts == 0
	s.wasPlaying = playing
	switch {
	case playing && s.playDone == nil:
		s.playDone = make(chan struct{})
	case !playing && s.playDone != nil:
		close(s.playDone)
		s.playDone = nil
	}
	s.mu.Unlock()

	if drained {
		s.metrics.RecordPlaybackEnd(context.Background(), "drained")
	}
	if s.feed == nil {
		return
	}
	if an != nil {
		s.feed.Attach(an)
	} else {
		s.feed.Detach()
	}
}
