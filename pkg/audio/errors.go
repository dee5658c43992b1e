package audio

import "fmt"

// DecodeError reports a malformed base64 payload.
type DecodeError struct {
	// Err is the underlying error from the base64 decoder.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode base64 payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FormatError reports PCM data that cannot be interpreted with the requested
// format, e.g. a byte length that does not divide into whole frames.
type FormatError struct {
	// Format is the format the caller asked for.
	Format Format

	// Length is the payload length in bytes, if relevant.
	Length int

	// Reason describes what is wrong.
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("audio: invalid PCM for %s: %s", e.Format, e.Reason)
}

// PlaybackError reports that the host audio subsystem rejected a buffer or
// could not be opened.
type PlaybackError struct {
	// Op names the failing operation ("init", "start", ...).
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("audio: playback %s: %v", e.Op, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
