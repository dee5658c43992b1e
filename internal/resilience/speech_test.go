package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/speechstudio/internal/resilience"
	"github.com/MrWong99/speechstudio/pkg/audio"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
	speechmock "github.com/MrWong99/speechstudio/pkg/provider/speech/mock"
)

func TestSpeech_OpensOnTransportFailures(t *testing.T) {
	t.Parallel()
	inner := &speechmock.Provider{
		GenerateErr: &speech.GenerationError{Provider: "mock", Reason: speech.ReasonRequest, Err: errors.New("503")},
	}
	p := resilience.Speech(inner, resilience.BreakerConfig{Name: "gemini", MaxFailures: 2, Cooldown: time.Hour})

	for range 2 {
		_, _ = p.Generate(context.Background(), speech.Request{Text: "hi"})
	}
	if p.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open", p.State())
	}

	_, err := p.Generate(context.Background(), speech.Request{Text: "hi"})
	if !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if speech.ReasonOf(err) != speech.ReasonRequest {
		t.Errorf("reason = %q, want %q", speech.ReasonOf(err), speech.ReasonRequest)
	}
	if got := len(inner.Calls()); got != 2 {
		t.Errorf("backend calls = %d, want 2", got)
	}
}

func TestSpeech_ContentFailuresDoNotCount(t *testing.T) {
	t.Parallel()

	for _, err := range []error{
		&speech.GenerationError{Provider: "mock", Reason: speech.ReasonTextNotAudio, Text: "no"},
		&speech.GenerationError{Provider: "mock", Reason: speech.ReasonAbnormalCompletion, FinishReason: "SAFETY"},
		&speech.GenerationError{Provider: "mock", Reason: speech.ReasonRequest, Err: context.Canceled},
	} {
		inner := &speechmock.Provider{GenerateErr: err}
		p := resilience.Speech(inner, resilience.BreakerConfig{Name: "gemini", MaxFailures: 1})
		for range 3 {
			_, _ = p.Generate(context.Background(), speech.Request{Text: "hi"})
		}
		if p.State() != resilience.StateClosed {
			t.Errorf("%v: state = %v, want closed", err, p.State())
		}
	}
}

func TestSpeech_PassesThrough(t *testing.T) {
	t.Parallel()
	inner := &speechmock.Provider{
		GenerateResult: &speech.Result{Audio: "AAAA", Format: audio.DefaultFormat},
		VoicesResult:   []speech.Voice{{ID: "Kore"}},
	}
	p := resilience.Speech(inner, resilience.BreakerConfig{Name: "gemini"})

	res, err := p.Generate(context.Background(), speech.Request{Text: "hi", Voice: "Kore"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Audio != "AAAA" || res.Voice != "Kore" {
		t.Errorf("result = %+v", res)
	}
	if v := p.Voices(); len(v) != 1 || v[0].ID != "Kore" {
		t.Errorf("voices = %+v", v)
	}
}
