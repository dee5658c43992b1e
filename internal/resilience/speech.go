package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

// SpeechProvider is a [speech.Provider] that stops calling a backend which
// keeps failing to answer. Only transport failures ([speech.ReasonRequest])
// count; refusals and abnormal completions mean the backend is up. Caller
// cancellation never counts.
type SpeechProvider struct {
	inner   speech.Provider
	name    string
	breaker *Breaker
}

var _ speech.Provider = (*SpeechProvider)(nil)

// Speech wraps p. cfg.Counts is replaced by the speech failure
// classification; cfg.Name doubles as the provider name in errors.
func Speech(p speech.Provider, cfg BreakerConfig) *SpeechProvider {
	cfg.Counts = speechFailure
	return &SpeechProvider{inner: p, name: cfg.Name, breaker: NewBreaker(cfg)}
}

// Generate implements [speech.Provider]. While the breaker is open it fails
// with a [speech.GenerationError] of reason [speech.ReasonRequest] wrapping
// [ErrOpen].
func (s *SpeechProvider) Generate(ctx context.Context, req speech.Request) (*speech.Result, error) {
	var res *speech.Result
	err := s.breaker.Do(func() error {
		var err error
		res, err = s.inner.Generate(ctx, req)
		return err
	})
	if errors.Is(err, ErrOpen) {
		return nil, &speech.GenerationError{Provider: s.name, Reason: speech.ReasonRequest, Err: err}
	}
	return res, err
}

// Voices implements [speech.Provider].
func (s *SpeechProvider) Voices() []speech.Voice { return s.inner.Voices() }

// State returns the breaker state.
func (s *SpeechProvider) State() State { return s.breaker.State() }

func speechFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ge *speech.GenerationError
	if errors.As(err, &ge) {
		return ge.Reason == speech.ReasonRequest
	}
	return true
}
