package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/speechstudio/pkg/audio"
)

// ErrClosed is returned by [Controller.Play] after [Controller.Close].
var ErrClosed = errors.New("playback: controller closed")

// State is the effective state of a [Controller].
type State int

const (
	// StateIdle means no buffer is loaded.
	StateIdle State = iota

	// StateLoaded means a buffer is loaded and nothing is playing.
	StateLoaded

	// StatePlaying means a session is audible.
	StatePlaying
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a [Controller].
type Option func(*Controller)

// WithFFTSize sets the analysis window of every session's [Analyser].
func WithFFTSize(n int) Option {
	return func(c *Controller) { c.fftSize = n }
}

// WithLogger sets the logger used for transition diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller owns at most one playback session and the buffer it plays.
//
// All transitions are serialised by one mutex. The output calls back on its
// own goroutine when a session drains; such completions are re-dispatched and
// ignored once the session has been superseded.
//
// Controller is safe for concurrent use.
type Controller struct {
	out     Output
	fftSize int
	log     *slog.Logger

	mu       sync.Mutex
	buf      *audio.PlayableBuffer
	sess     *session
	nextID   uint64
	closed   bool
	listener func(State)
}

// NewController returns an idle controller playing through out.
func NewController(out Output, opts ...Option) *Controller {
	c := &Controller{
		out:     out,
		fftSize: DefaultFFTSize,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnStateChange registers fn to be called after every transition with the
// state the transition produced. Only one listener is kept; registering again
// replaces it. fn runs outside the controller lock and may call read-only
// methods such as [Controller.State] or [Controller.Analyser].
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// Load stops any session and stores buf for playback.
func (c *Controller) Load(buf *audio.PlayableBuffer) {
	c.mu.Lock()
	c.stopLocked()
	c.buf = buf
	st, fn := c.stateLocked(), c.listener
	c.mu.Unlock()
	notify(fn, st)
}

// Play starts buf from the beginning in a fresh session, tearing down the
// current one first. It does nothing when no buffer is loaded.
//
// If the output rejects the session the controller stays Loaded and the
// output's error is returned.
func (c *Controller) Play() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.buf == nil {
		c.mu.Unlock()
		return nil
	}
	had := c.stopLocked()

	c.nextID++
	s := newSession(c.nextID, NewAnalyser(newSource(c.buf), c.fftSize), c.finished)
	if err := c.out.Start(s, c.buf.Format); err != nil {
		// The previous session is gone even though the new one never started.
		st, fn := c.stateLocked(), c.listener
		c.mu.Unlock()
		if had {
			notify(fn, st)
		}
		return fmt.Errorf("playback: play: %w", err)
	}
	c.sess = s
	fn := c.listener
	c.mu.Unlock()

	c.log.Debug("playback started", "session", s.id)
	notify(fn, StatePlaying)
	return nil
}

// Stop tears down the current session, if any.
func (c *Controller) Stop() {
	c.mu.Lock()
	had := c.stopLocked()
	st, fn := c.stateLocked(), c.listener
	c.mu.Unlock()
	if had {
		notify(fn, st)
	}
}

// Unload stops playback and drops the buffer.
func (c *Controller) Unload() {
	c.mu.Lock()
	had := c.stopLocked() || c.buf != nil
	c.buf = nil
	fn := c.listener
	c.mu.Unlock()
	if had {
		notify(fn, StateIdle)
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Playing reports whether a session is audible.
func (c *Controller) Playing() bool {
	return c.State() == StatePlaying
}

// Buffer returns the loaded buffer, or nil.
func (c *Controller) Buffer() *audio.PlayableBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf
}

// Analyser returns the analyser of the current session, or nil when nothing
// is playing.
func (c *Controller) Analyser() *Analyser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.analyser
}

// Close stops playback, drops the buffer and closes the output.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopLocked()
	c.buf = nil
	c.mu.Unlock()

	if err := c.out.Close(); err != nil {
		return fmt.Errorf("playback: close output: %w", err)
	}
	return nil
}

// finished handles natural completion of session id.
func (c *Controller) finished(id uint64) {
	c.mu.Lock()
	if c.sess == nil || c.sess.id != id {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	st, fn := c.stateLocked(), c.listener
	c.mu.Unlock()

	c.log.Debug("playback finished", "session", id)
	notify(fn, st)
}

// stopLocked tears down the current session and reports whether there was
// one. Stopping a session that already drained is harmless.
func (c *Controller) stopLocked() bool {
	if c.sess == nil {
		return false
	}
	c.sess.stop()
	c.sess = nil
	return true
}

func (c *Controller) stateLocked() State {
	switch {
	case c.sess != nil:
		return StatePlaying
	case c.buf != nil:
		return StateLoaded
	default:
		return StateIdle
	}
}

func notify(fn func(State), st State) {
	if fn != nil {
		fn(st)
	}
}
