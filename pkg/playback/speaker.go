package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/MrWong99/speechstudio/pkg/audio"
)

// DefaultSpeakerBuffer is the device buffer used when none is configured.
const DefaultSpeakerBuffer = 100 * time.Millisecond

// Speaker plays through the system audio device via beep's speaker package.
//
// The device is opened lazily on the first [Speaker.Start] at the configured
// sample rate; buffers in any other rate are rejected rather than resampled.
// beep's speaker is process global, so only one Speaker should be in use.
type Speaker struct {
	format audio.Format
	buffer time.Duration

	mu     sync.Mutex
	opened bool
}

var _ Output = (*Speaker)(nil)

// NewSpeaker returns a speaker output for audio in format f. A non-positive
// buffer selects [DefaultSpeakerBuffer].
func NewSpeaker(f audio.Format, buffer time.Duration) *Speaker {
	if buffer <= 0 {
		buffer = DefaultSpeakerBuffer
	}
	return &Speaker{format: f, buffer: buffer}
}

// Start implements [Output]. Any streams still attached to the device are
// cleared before s is attached.
func (sp *Speaker) Start(s beep.Streamer, f audio.Format) error {
	if f.SampleRate != sp.format.SampleRate {
		return &audio.PlaybackError{
			Op:  "start",
			Err: fmt.Errorf("buffer sample rate %d differs from device rate %d", f.SampleRate, sp.format.SampleRate),
		}
	}
	if f.Channels < 1 || f.Channels > 2 {
		return &audio.PlaybackError{
			Op:  "start",
			Err: fmt.Errorf("unsupported channel count %d", f.Channels),
		}
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !sp.opened {
		sr := beep.SampleRate(sp.format.SampleRate)
		if err := speaker.Init(sr, sr.N(sp.buffer)); err != nil {
			return &audio.PlaybackError{Op: "init", Err: err}
		}
		sp.opened = true
	}
	speaker.Clear()
	speaker.Play(s)
	return nil
}

// Close implements [Output].
func (sp *Speaker) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.opened {
		speaker.Close()
		sp.opened = false
	}
	return nil
}
