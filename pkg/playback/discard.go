package playback

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/MrWong99/speechstudio/pkg/audio"
)

// Discard is a null device that pulls streams in real time and throws the
// samples away. It lets headless deployments keep natural completion and the
// visualizer working without a sound card.
type Discard struct {
	tick time.Duration

	mu     sync.Mutex
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

var _ Output = (*Discard)(nil)

// NewDiscard returns a null device that pulls one chunk of length tick per
// tick. A non-positive tick selects 20ms.
func NewDiscard(tick time.Duration) *Discard {
	if tick <= 0 {
		tick = 20 * time.Millisecond
	}
	return &Discard{tick: tick, done: make(chan struct{})}
}

// Start implements [Output].
func (d *Discard) Start(s beep.Streamer, f audio.Format) error {
	if err := f.Validate(); err != nil {
		return &audio.PlaybackError{Op: "start", Err: err}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &audio.PlaybackError{Op: "start", Err: ErrClosed}
	}

	n := max(1, beep.SampleRate(f.SampleRate).N(d.tick))
	d.wg.Add(1)
	go d.drain(s, n)
	return nil
}

func (d *Discard) drain(s beep.Streamer, n int) {
	defer d.wg.Done()
	buf := make([][2]float64, n)
	t := time.NewTicker(d.tick)
	defer t.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-t.C:
			if _, ok := s.Stream(buf); !ok {
				return
			}
		}
	}
}

// Close implements [Output]. It waits for all drain goroutines to exit.
func (d *Discard) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}
