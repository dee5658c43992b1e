package audio

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeBytes decodes standard (padded) base64 text into raw PCM bytes.
// Leading and trailing whitespace and embedded line breaks are ignored, since
// some transports wrap long payloads. Malformed input yields a [*DecodeError].
func DecodeBytes(b64 string) (AudioBytes, error) {
	clean := strings.TrimSpace(b64)
	if strings.ContainsAny(clean, "\r\n") {
		clean = strings.NewReplacer("\r", "", "\n", "").Replace(clean)
	}
	raw, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return AudioBytes(raw), nil
}

// ToPlayableBuffer interprets b as little-endian int16 PCM in format f,
// normalises each sample to [-1, 1] and de-interleaves the channels in source
// order.
//
// The length of b must be a multiple of f.FrameSize(); a truncated trailing
// frame yields a [*FormatError]. An empty payload produces an empty buffer.
func ToPlayableBuffer(b AudioBytes, f Format) (*PlayableBuffer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	frameSize := f.FrameSize()
	if len(b)%frameSize != 0 {
		return nil, &FormatError{
			Format: f,
			Length: len(b),
			Reason: fmt.Sprintf("%d bytes is not a multiple of the %d-byte frame size", len(b), frameSize),
		}
	}

	frames := len(b) / frameSize
	channels := make([][]float32, f.Channels)
	for c := range channels {
		channels[c] = make([]float32, frames)
	}

	for i := range frames {
		base := i * frameSize
		for c := range f.Channels {
			off := base + c*bytesPerSample
			s := int16(b[off]) | int16(b[off+1])<<8
			channels[c][i] = SampleToFloat(s)
		}
	}

	return &PlayableBuffer{Format: f, Channels: channels}, nil
}

// SampleToFloat maps an int16 sample to [-1, 1). The full negative range maps
// to exactly -1.
func SampleToFloat(s int16) float32 {
	return float32(s) / 32768
}
