// Package audio defines the sample formats and buffers that flow through the
// speech studio pipeline, together with the PCM decoder that turns the
// generation service's base64 payload into a playable buffer.
//
// The pipeline assumes signed 16-bit little-endian linear PCM throughout. The
// sample rate and channel count are supplied by configuration; nothing in this
// package sniffs or resamples the payload.
package audio

import (
	"fmt"
	"time"
)

// BitsPerSample is the only sample width the pipeline understands.
const BitsPerSample = 16

// bytesPerSample is BitsPerSample expressed in bytes.
const bytesPerSample = BitsPerSample / 8

// DefaultFormat is the format produced by the generation service: 24 kHz mono.
var DefaultFormat = Format{SampleRate: 24000, Channels: 1}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate reports whether f can describe a PCM stream.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return &FormatError{Format: f, Reason: fmt.Sprintf("sample rate %d must be positive", f.SampleRate)}
	}
	if f.Channels <= 0 {
		return &FormatError{Format: f, Reason: fmt.Sprintf("channel count %d must be positive", f.Channels)}
	}
	return nil
}

// FrameSize returns the number of bytes that make up one frame (one sample
// for every channel).
func (f Format) FrameSize() int {
	return f.Channels * bytesPerSample
}

// ByteRate returns the number of bytes consumed per second of audio.
func (f Format) ByteRate() int {
	return f.SampleRate * f.FrameSize()
}

// String returns a human-readable form, e.g. "24000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// AudioBytes is the raw PCM payload returned by a successful generation:
// signed 16-bit little-endian samples, interleaved when there is more than one
// channel.
//
// AudioBytes is treated as immutable. It is created once per generation and
// never written to afterwards; code that hands it to untrusted callers should
// pass [AudioBytes.Clone].
type AudioBytes []byte

// Clone returns an independent copy of b.
func (b AudioBytes) Clone() AudioBytes {
	if b == nil {
		return nil
	}
	out := make(AudioBytes, len(b))
	copy(out, b)
	return out
}

// Duration returns the playback length of b in format f. It returns zero for
// an invalid format.
func (b AudioBytes) Duration(f Format) time.Duration {
	if f.Validate() != nil {
		return 0
	}
	frames := len(b) / f.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// PlayableBuffer is a decoded, de-interleaved buffer ready for playback.
// Samples are normalised to [-1, 1]. A PlayableBuffer is read-only once
// constructed and may be played any number of times.
type PlayableBuffer struct {
	// Format is the sample rate and channel count the buffer was decoded with.
	Format Format

	// Channels holds one sample slice per channel, all of equal length.
	Channels [][]float32
}

// Frames returns the number of sample frames in the buffer.
func (b *PlayableBuffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *PlayableBuffer) Duration() time.Duration {
	if b == nil || b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}
