// Package speech defines the Provider interface for one-shot text-to-speech
// backends that return a complete utterance as base64 PCM.
//
// The audio pipeline consumes only the contract described here: a [Result]
// carrying base64 text and the [audio.Format] of the decoded bytes, or a
// [*GenerationError] explaining why there is no audio. Implementations never
// retry; every failure is terminal for that request.
//
// Script markup such as <whisper> or <break time="1s"/> is passed to the
// backend verbatim.
//
// Implementations must be safe for concurrent use.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/speechstudio/pkg/audio"
)

// Provider is the abstraction over any one-shot speech generation backend.
type Provider interface {
	// Generate synthesises req.Text with req.Voice and returns the whole
	// utterance. Failures are reported as [*GenerationError].
	Generate(ctx context.Context, req Request) (*Result, error)

	// Voices returns the voices the backend accepts, in display order.
	Voices() []Voice
}

// Request is one generation request.
type Request struct {
	// Text is the script, markup included.
	Text string

	// Voice is the provider-specific voice identifier. Empty selects the
	// provider default.
	Voice string
}

// Result is a successful generation.
type Result struct {
	// Audio is standard base64 text encoding signed 16-bit little-endian PCM.
	Audio string

	// Format is the sample rate and channel count of the decoded bytes.
	Format audio.Format

	// Voice is the voice that actually produced the audio.
	Voice string
}

// Voice describes one selectable voice.
type Voice struct {
	// ID is the identifier passed in [Request.Voice].
	ID string `json:"id"`

	// Name is the human-readable name.
	Name string `json:"name"`

	// Description is a short characterisation such as "Firm" or "Breezy".
	Description string `json:"description,omitempty"`

	// Provider identifies the backend this voice belongs to.
	Provider string `json:"provider"`
}

// Reason classifies a [GenerationError].
type Reason string

const (
	// ReasonNoCandidate means the backend returned no result at all.
	ReasonNoCandidate Reason = "no_candidate"

	// ReasonAbnormalCompletion means generation ended for a reason other than
	// a normal stop, e.g. a safety block or a length cutoff.
	ReasonAbnormalCompletion Reason = "abnormal_completion"

	// ReasonTextNotAudio means the backend answered with text instead of
	// audio, which is treated as a refusal.
	ReasonTextNotAudio Reason = "text_not_audio"

	// ReasonMissingPayload means the result completed normally but carried no
	// audio data.
	ReasonMissingPayload Reason = "missing_payload"

	// ReasonRequest means the backend could not be reached or rejected the
	// request.
	ReasonRequest Reason = "request"

	// ReasonEmptyScript means there was nothing to synthesise.
	ReasonEmptyScript Reason = "empty_script"
)

// GenerationError reports a failed generation.
type GenerationError struct {
	// Provider names the backend, e.g. "gemini".
	Provider string

	// Reason classifies the failure.
	Reason Reason

	// FinishReason is the backend's completion reason for
	// [ReasonAbnormalCompletion].
	FinishReason string

	// Text is the text the backend returned for [ReasonTextNotAudio].
	Text string

	// Err is the underlying error for [ReasonRequest], if any.
	Err error
}

func (e *GenerationError) Error() string {
	prefix := "speech"
	if e.Provider != "" {
		prefix = e.Provider
	}
	switch e.Reason {
	case ReasonNoCandidate:
		return prefix + ": no candidates returned from the model"
	case ReasonAbnormalCompletion:
		return fmt.Sprintf("%s: generation stopped, reason: %s", prefix, e.FinishReason)
	case ReasonTextNotAudio:
		return fmt.Sprintf("%s: model returned text instead of audio: %q; try simplifying the script or removing unsupported tags", prefix, e.Text)
	case ReasonMissingPayload:
		return prefix + ": no audio data found in the response"
	case ReasonEmptyScript:
		return prefix + ": script is empty"
	case ReasonRequest:
		return fmt.Sprintf("%s: request failed: %v", prefix, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Reason, e.Err)
		}
		return fmt.Sprintf("%s: %s", prefix, e.Reason)
	}
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ReasonOf returns the [Reason] of err if it wraps a [*GenerationError], or
// the empty string.
func ReasonOf(err error) Reason {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Reason
	}
	return ""
}

// CheckScript returns a [ReasonEmptyScript] error when text has no
// non-whitespace content.
func CheckScript(provider, text string) error {
	if strings.TrimSpace(text) == "" {
		return &GenerationError{Provider: provider, Reason: ReasonEmptyScript}
	}
	return nil
}
