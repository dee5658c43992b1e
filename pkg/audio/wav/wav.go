// Package wav wraps raw PCM in a canonical RIFF/WAVE container and reads it
// back out again.
//
// Only uncompressed 16-bit PCM is produced. The payload is copied verbatim;
// samples are never re-encoded.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	// HeaderSize is the size of the canonical header written by [Encode].
	HeaderSize = 44

	// FormatPCM is the WAVE format tag for uncompressed PCM.
	FormatPCM = 1

	// BitsPerSample is the sample width written by [Encode].
	BitsPerSample = 16
)

// ErrNotWAV is returned when input does not start with a RIFF/WAVE preamble.
var ErrNotWAV = errors.New("wav: not a RIFF/WAVE file")

// Header holds the fields of the fmt and data chunks.
type Header struct {
	SampleRate    int
	Channels      int
	BitsPerSample int

	// DataSize is the length of the PCM payload in bytes.
	DataSize int
}

// ByteRate returns SampleRate × Channels × BitsPerSample/8.
func (h Header) ByteRate() int {
	return h.SampleRate * h.Channels * h.BitsPerSample / 8
}

// BlockAlign returns Channels × BitsPerSample/8.
func (h Header) BlockAlign() int {
	return h.Channels * h.BitsPerSample / 8
}

// EncodeHeader returns the 44-byte canonical header described by h.
func EncodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian

	copy(b[0:4], "RIFF")
	le.PutUint32(b[4:8], uint32(36+h.DataSize))
	copy(b[8:12], "WAVE")

	copy(b[12:16], "fmt ")
	le.PutUint32(b[16:20], 16)
	le.PutUint16(b[20:22], FormatPCM)
	le.PutUint16(b[22:24], uint16(h.Channels))
	le.PutUint32(b[24:28], uint32(h.SampleRate))
	le.PutUint32(b[28:32], uint32(h.ByteRate()))
	le.PutUint16(b[32:34], uint16(h.BlockAlign()))
	le.PutUint16(b[34:36], uint16(h.BitsPerSample))

	copy(b[36:40], "data")
	le.PutUint32(b[40:44], uint32(h.DataSize))
	return b
}

// Encode returns a complete WAV file containing pcm, which must be signed
// 16-bit little-endian samples interleaved across channels.
func Encode(pcm []byte, sampleRate, channels int) []byte {
	h := Header{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: BitsPerSample,
		DataSize:      len(pcm),
	}
	out := make([]byte, 0, HeaderSize+len(pcm))
	out = append(out, EncodeHeader(h)...)
	return append(out, pcm...)
}

// ParseHeader reads the fmt chunk and the data chunk size of file. Chunks
// other than fmt and data are skipped.
func ParseHeader(file []byte) (Header, error) {
	var (
		h      Header
		sawFmt bool
	)
	err := walk(file, func(id string, body []byte) bool {
		switch id {
		case "fmt ":
			if len(body) < 16 {
				return true
			}
			le := binary.LittleEndian
			h.Channels = int(le.Uint16(body[2:4]))
			h.SampleRate = int(le.Uint32(body[4:8]))
			h.BitsPerSample = int(le.Uint16(body[14:16]))
			sawFmt = true
		case "data":
			h.DataSize = len(body)
			return false
		}
		return true
	})
	if err != nil {
		return Header{}, err
	}
	if !sawFmt {
		return Header{}, fmt.Errorf("wav: parse header: missing fmt chunk")
	}
	return h, nil
}

// ExtractData returns the payload of the first data chunk in file. The
// returned slice aliases file.
func ExtractData(file []byte) ([]byte, error) {
	var data []byte
	found := false
	err := walk(file, func(id string, body []byte) bool {
		if id == "data" {
			data, found = body, true
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("wav: extract data: no data chunk")
	}
	return data, nil
}

// walk visits the sub-chunks of a RIFF/WAVE file until fn returns false.
func walk(file []byte, fn func(id string, body []byte) bool) error {
	if len(file) < 12 || string(file[0:4]) != "RIFF" || string(file[8:12]) != "WAVE" {
		return ErrNotWAV
	}
	off := 12
	for off+8 <= len(file) {
		id := string(file[off : off+4])
		size := int(binary.LittleEndian.Uint32(file[off+4 : off+8]))
		start := off + 8
		if size < 0 || start+size > len(file) {
			return fmt.Errorf("wav: chunk %q: size %d exceeds file", id, size)
		}
		if !fn(id, file[start:start+size]) {
			return nil
		}
		// Chunks are word aligned.
		off = start + size + size%2
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename returns the suggested download name for an export:
// <app>-speech-<voice>-<unix millis>.wav.
func Filename(app, voice string, t time.Time) string {
	v := unsafeName.ReplaceAllString(voice, "_")
	if v == "" {
		v = "default"
	}
	return fmt.Sprintf("%s-speech-%s-%d.wav", app, v, t.UnixMilli())
}
