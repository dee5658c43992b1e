package visual

import (
	"context"
	"time"
)

// Pacer is the frame-pacing primitive the feed waits on between ticks.
type Pacer interface {
	// Wait blocks until the next frame is due. It returns false if ctx ends
	// first.
	Wait(ctx context.Context) bool

	// Stop releases the pacer's resources.
	Stop()
}

// DefaultFPS is the tick rate used when none is configured.
const DefaultFPS = 60

// TickerPacer paces frames with a [time.Ticker].
type TickerPacer struct {
	t *time.Ticker
}

var _ Pacer = (*TickerPacer)(nil)

// NewTickerPacer returns a pacer ticking fps times per second. A
// non-positive fps selects [DefaultFPS].
func NewTickerPacer(fps int) *TickerPacer {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &TickerPacer{t: time.NewTicker(time.Second / time.Duration(fps))}
}

// Wait implements [Pacer].
func (p *TickerPacer) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.t.C:
		return true
	}
}

// Stop implements [Pacer].
func (p *TickerPacer) Stop() { p.t.Stop() }

// ManualPacer releases one frame per call to [ManualPacer.Tick]. It is meant
// for tests and for hosts that drive rendering from their own loop.
type ManualPacer struct {
	ch chan struct{}
}

var _ Pacer = (*ManualPacer)(nil)

// NewManualPacer returns a pacer that waits for Tick.
func NewManualPacer() *ManualPacer {
	return &ManualPacer{ch: make(chan struct{})}
}

// Tick releases the next frame. It blocks until a task is waiting or ctx
// ends, and reports whether the tick was delivered.
func (p *ManualPacer) Tick(ctx context.Context) bool {
	select {
	case p.ch <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Wait implements [Pacer].
func (p *ManualPacer) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.ch:
		return true
	}
}

// Stop implements [Pacer]. A manual pacer outlives the tasks using it.
func (p *ManualPacer) Stop() {}
