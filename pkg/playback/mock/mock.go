// Package mock provides an in-memory implementation of [playback.Output] for
// use in unit tests.
//
// The mock behaves like a tiny mixer: every started stream stays attached
// until it reports that it is drained, and tests advance time explicitly with
// [Output.Pull]. This makes it possible to assert how many sessions are
// audible and to drive natural completion deterministically.
//
// Typical usage:
//
//	out := &mock.Output{}
//	ctrl := playback.NewController(out)
//	ctrl.Load(buf)
//	_ = ctrl.Play()
//	audible := out.Pull(512)
package mock

import (
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/MrWong99/speechstudio/pkg/audio"
	"github.com/MrWong99/speechstudio/pkg/playback"
)

var _ playback.Output = (*Output)(nil)

// Output is a mock implementation of [playback.Output].
// Set the exported error fields before use; inspect the Call* fields after.
type Output struct {
	mu sync.Mutex

	// StartErr is returned by [Output.Start]. A failed Start attaches nothing.
	StartErr error

	// CloseErr is returned by [Output.Close].
	CloseErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// StartFormats records the format passed to every Start call.
	StartFormats []audio.Format

	active []beep.Streamer
}

// Start implements [playback.Output].
func (o *Output) Start(s beep.Streamer, f audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountStart++
	o.StartFormats = append(o.StartFormats, f)
	if o.StartErr != nil {
		return o.StartErr
	}
	o.active = append(o.active, s)
	return nil
}

// Close implements [playback.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	return o.CloseErr
}

// Pull asks every attached stream for n samples, detaches the ones that
// report they are drained, and returns how many streams produced audio.
func (o *Output) Pull(n int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	buf := make([][2]float64, n)
	audible := 0
	kept := o.active[:0]
	for _, s := range o.active {
		got, ok := s.Stream(buf)
		if !ok {
			continue
		}
		kept = append(kept, s)
		if got > 0 {
			audible++
		}
	}
	clear(o.active[len(kept):])
	o.active = kept
	return audible
}

// PullSamples asks the first live stream for n samples and returns the
// frames it produced. Drained streams met on the way are detached. Returns
// nil when nothing is attached.
func (o *Output) PullSamples(n int) [][2]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.active) > 0 {
		buf := make([][2]float64, n)
		got, ok := o.active[0].Stream(buf)
		if ok {
			return buf[:got]
		}
		o.active = o.active[1:]
	}
	return nil
}

// Attached returns the number of streams not yet observed as drained.
func (o *Output) Attached() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Reset clears all recorded calls and detaches every stream.
func (o *Output) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountStart = 0
	o.CallCountClose = 0
	o.StartFormats = nil
	o.active = nil
}
