// Package visual turns the live analyser of a playback session into a stream
// of bar-graph frames.
//
// A [Feed] runs one cooperative task per attachment. Every tick the task checks
// its cancel flag and whether playback is still running; if either says stop,
// the task clears its [Sink] and schedules nothing further. The feed never
// starts or stops playback itself.
package visual

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Source is a read-only handle on a frequency analyser.
type Source interface {
	// ByteFrequencyData fills dst with the current spectrum and returns how
	// many values it wrote.
	ByteFrequencyData(dst []byte) int

	// FrequencyBinCount returns the number of bins the source produces.
	FrequencyBinCount() int
}

// PlayState reports whether playback is currently running.
type PlayState interface {
	Playing() bool
}

// Sink receives rendered frames. Frame and Clear are called from the feed's
// task goroutine, one at a time, and must not block for long.
type Sink interface {
	// Frame delivers one tick's rendering.
	Frame(f Frame)

	// Clear removes previously rendered output.
	Clear()
}

// Default canvas and bin settings.
const (
	DefaultBins   = 128
	DefaultWidth  = 800
	DefaultHeight = 128
)

// Option configures a [Feed].
type Option func(*Feed)

// WithBins sets the number of bins sampled per frame.
func WithBins(n int) Option {
	return func(f *Feed) { f.bins = n }
}

// WithCanvas sets the canvas size the bars are computed for.
func WithCanvas(width, height int) Option {
	return func(f *Feed) { f.width, f.height = width, height }
}

// WithFPS sets the tick rate of the default ticker pacer.
func WithFPS(fps int) Option {
	return func(f *Feed) { f.fps.Store(int64(fps)) }
}

// WithPacer replaces the ticker pacer. newPacer is called once per task.
func WithPacer(newPacer func() Pacer) Option {
	return func(f *Feed) { f.newPacer = newPacer }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.log = l }
}

// Feed samples the attached [Source] once per tick while playback runs and
// hands each [Frame] to its [Sink].
//
// Feed is safe for concurrent use.
type Feed struct {
	state    PlayState
	sink     Sink
	bins     int
	width    int
	height   int
	fps      atomic.Int64
	newPacer func() Pacer
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	task *task
}

type task struct {
	src       Source
	cancelled atomic.Bool
	seq       uint64
	buf       []byte
	done      chan struct{}
}

// NewFeed returns a feed that renders into sink while state reports playing.
func NewFeed(state PlayState, sink Sink, opts ...Option) *Feed {
	f := &Feed{
		state:  state,
		sink:   sink,
		bins:   DefaultBins,
		width:  DefaultWidth,
		height: DefaultHeight,
		log:    slog.Default(),
	}
	f.fps.Store(DefaultFPS)
	for _, o := range opts {
		o(f)
	}
	if f.newPacer == nil {
		f.newPacer = func() Pacer { return NewTickerPacer(int(f.fps.Load())) }
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())
	return f
}

// SetFPS changes the tick rate for tasks started after the call.
func (f *Feed) SetFPS(fps int) {
	f.fps.Store(int64(fps))
}

// Attach binds the feed to src. If a task is running it switches to src on
// its next tick; otherwise a new task starts.
func (f *Feed) Attach(src Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx.Err() != nil {
		return
	}
	if t := f.task; t != nil && !t.cancelled.Load() {
		t.src = src
		return
	}
	t := &task{src: src, buf: make([]byte, f.bins), done: make(chan struct{})}
	f.task = t
	go f.run(t)
}

// Detach cancels the running task. It clears the sink on its next tick.
func (f *Feed) Detach() {
	f.mu.Lock()
	if f.task != nil {
		f.task.cancelled.Store(true)
	}
	f.mu.Unlock()
}

// Active reports whether a task is scheduled.
func (f *Feed) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.task != nil
}

// Close stops the running task, waits for it and clears the sink.
func (f *Feed) Close() {
	f.cancel()
	f.mu.Lock()
	t := f.task
	f.mu.Unlock()
	if t != nil {
		<-t.done
	}
}

func (f *Feed) run(t *task) {
	defer close(t.done)
	p := f.newPacer()
	defer p.Stop()

	for {
		if !p.Wait(f.ctx) {
			f.finish(t)
			return
		}
		if !f.tick(t) {
			return
		}
	}
}

// tick renders one frame and reports whether the task should keep going.
func (f *Feed) tick(t *task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.task != t {
		return false
	}
	if t.cancelled.Load() || !f.state.Playing() {
		f.task = nil
		f.sink.Clear()
		return false
	}

	n := t.src.ByteFrequencyData(t.buf)
	bins := make([]byte, n)
	copy(bins, t.buf[:n])
	t.seq++
	f.sink.Frame(Frame{
		Seq:    t.seq,
		Bins:   bins,
		Bars:   Bars(bins, f.width, f.height),
		Width:  f.width,
		Height: f.height,
	})
	return true
}

func (f *Feed) finish(t *task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.task == t {
		f.task = nil
		f.sink.Clear()
	}
}
