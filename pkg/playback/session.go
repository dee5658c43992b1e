package playback

import (
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// session is one live output graph. The output pulls samples through it until
// it is stopped or its source is drained, whichever comes first.
//
// Both ends share the done flag: the first party to flip it owns the
// transition. A stop never fires onEnd, and natural completion fires it once.
type session struct {
	id       uint64
	analyser *Analyser
	done     atomic.Bool
	onEnd    func(id uint64)
}

var _ beep.Streamer = (*session)(nil)

func newSession(id uint64, a *Analyser, onEnd func(id uint64)) *session {
	return &session{id: id, analyser: a, onEnd: onEnd}
}

// Stream implements [beep.Streamer].
func (s *session) Stream(samples [][2]float64) (int, bool) {
	if s.done.Load() {
		return 0, false
	}
	n, ok := s.analyser.Stream(samples)
	if !ok {
		if s.done.CompareAndSwap(false, true) && s.onEnd != nil {
			// Runs off the device goroutine so the controller can take its
			// own lock without holding up the output.
			go s.onEnd(s.id)
		}
		return 0, false
	}
	return n, true
}

// Err implements [beep.Streamer].
func (s *session) Err() error { return s.analyser.Err() }

// stop detaches the session from the output. The output drops it on its next
// pull. Returns false if the session had already ended.
func (s *session) stop() bool {
	return s.done.CompareAndSwap(false, true)
}
