package speech_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

func TestGenerationError_Messages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  *speech.GenerationError
		want string
	}{
		{&speech.GenerationError{Provider: "gemini", Reason: speech.ReasonNoCandidate}, "gemini: no candidates"},
		{&speech.GenerationError{Provider: "gemini", Reason: speech.ReasonAbnormalCompletion, FinishReason: "SAFETY"}, "reason: SAFETY"},
		{&speech.GenerationError{Reason: speech.ReasonTextNotAudio, Text: "I can't"}, `speech: model returned text instead of audio: "I can't"`},
		{&speech.GenerationError{Reason: speech.ReasonMissingPayload}, "no audio data"},
		{&speech.GenerationError{Reason: speech.ReasonEmptyScript}, "script is empty"},
		{&speech.GenerationError{Reason: speech.ReasonRequest, Err: errors.New("dial tcp")}, "request failed: dial tcp"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); !strings.Contains(got, tt.want) {
			t.Errorf("Error() = %q, want it to contain %q", got, tt.want)
		}
	}
}

func TestReasonOf(t *testing.T) {
	t.Parallel()
	inner := errors.New("boom")
	wrapped := fmt.Errorf("studio: generate: %w", &speech.GenerationError{Reason: speech.ReasonRequest, Err: inner})

	if got := speech.ReasonOf(wrapped); got != speech.ReasonRequest {
		t.Errorf("ReasonOf(wrapped) = %q, want %q", got, speech.ReasonRequest)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("GenerationError does not unwrap to its cause")
	}
	if got := speech.ReasonOf(inner); got != "" {
		t.Errorf("ReasonOf(plain) = %q, want empty", got)
	}
}

func TestCheckScript(t *testing.T) {
	t.Parallel()
	for _, text := range []string{"", "   ", "\n\t"} {
		if speech.ReasonOf(speech.CheckScript("x", text)) != speech.ReasonEmptyScript {
			t.Errorf("CheckScript(%q): expected empty script error", text)
		}
	}
	if err := speech.CheckScript("x", `<whisper>hi</whisper>`); err != nil {
		t.Errorf("CheckScript: unexpected error %v", err)
	}
}
