package playback

import (
	"github.com/gopxl/beep/v2"

	"github.com/MrWong99/speechstudio/pkg/audio"
)

// source streams a PlayableBuffer from the beginning. Mono buffers are sent
// to both speakers; with two or more channels, channel 0 is left and channel
// 1 is right.
type source struct {
	buf *audio.PlayableBuffer
	pos int
}

var _ beep.Streamer = (*source)(nil)

func newSource(buf *audio.PlayableBuffer) *source {
	return &source{buf: buf}
}

// Stream implements [beep.Streamer].
func (s *source) Stream(samples [][2]float64) (int, bool) {
	frames := s.buf.Frames()
	if s.pos >= frames {
		return 0, false
	}
	left := s.buf.Channels[0]
	right := left
	if len(s.buf.Channels) > 1 {
		right = s.buf.Channels[1]
	}

	n := min(len(samples), frames-s.pos)
	for i := range n {
		samples[i][0] = float64(left[s.pos+i])
		samples[i][1] = float64(right[s.pos+i])
	}
	s.pos += n
	return n, true
}

// Err implements [beep.Streamer].
func (s *source) Err() error { return nil }
