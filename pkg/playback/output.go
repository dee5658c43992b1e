// Package playback owns the single live output graph of the speech studio:
// a decoded buffer is wired source → [Analyser] → [Output] and played, stopped
// or replayed through a [Controller].
//
// The two primary abstractions are:
//
//   - [Output]: the host audio subsystem; accepts one beep streamer per
//     session and pulls samples from it on its own goroutine.
//   - [Controller]: the Idle/Loaded/Playing state machine that guarantees at
//     most one session is audible at any time.
//
// Implementations of [Output] live in this package ([Speaker], [Discard]) and
// in the mock subpackage for tests.
package playback

import (
	"github.com/gopxl/beep/v2"

	"github.com/MrWong99/speechstudio/pkg/audio"
)

// Output is the host audio subsystem a [Controller] plays through.
//
// Implementations must be safe for concurrent use.
type Output interface {
	// Start begins pulling samples from s, which carries audio in format f.
	// Start must return promptly; samples are pulled on the output's own
	// goroutine. The output drops s once s reports that it is drained
	// (ok == false).
	//
	// Returns an [*audio.PlaybackError] when the device cannot be opened or
	// rejects the format. A rejected stream is never pulled.
	Start(s beep.Streamer, f audio.Format) error

	// Close releases the device. Streams still attached are abandoned.
	// It is safe to call Close more than once.
	Close() error
}
