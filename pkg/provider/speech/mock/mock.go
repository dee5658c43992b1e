// Package mock provides a test double for the speech.Provider interface.
//
// Use Provider to return controlled audio or failures to the studio and to
// verify which script and voice were requested.
//
// Example:
//
//	p := &mock.Provider{
//	    GenerateResult: &speech.Result{Audio: b64, Format: audio.DefaultFormat},
//	    VoicesResult:   []speech.Voice{{ID: "Kore", Name: "Kore"}},
//	}
//	res, err := p.Generate(ctx, speech.Request{Text: "hi", Voice: "Kore"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Request is the request passed to Generate.
	Request speech.Request
}

// Provider is a mock implementation of speech.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// GenerateResult is returned by Generate when GenerateErr is nil. The
	// returned Result is a copy with Voice filled from the request.
	GenerateResult *speech.Result

	// GenerateErr, if non-nil, is returned as the error from Generate.
	GenerateErr error

	// Gate, if non-nil, makes Generate block until a value is received from
	// it or ctx is done. Use it to hold a generation in flight.
	Gate chan struct{}

	// VoicesResult is returned by Voices.
	VoicesResult []speech.Voice

	// --- Call records ---

	// GenerateCalls records every call to Generate in order.
	GenerateCalls []GenerateCall
}

// Generate records the call and returns GenerateResult or GenerateErr.
func (p *Provider) Generate(ctx context.Context, req speech.Request) (*speech.Result, error) {
	p.mu.Lock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Request: req})
	gate := p.Gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &speech.GenerationError{Provider: "mock", Reason: speech.ReasonRequest, Err: ctx.Err()}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GenerateErr != nil {
		return nil, p.GenerateErr
	}
	if p.GenerateResult == nil {
		return nil, &speech.GenerationError{Provider: "mock", Reason: speech.ReasonMissingPayload}
	}
	res := *p.GenerateResult
	if res.Voice == "" {
		res.Voice = req.Voice
	}
	return &res, nil
}

// Voices returns VoicesResult.
func (p *Provider) Voices() []speech.Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.VoicesResult
}

// Calls returns a copy of the recorded Generate calls.
func (p *Provider) Calls() []GenerateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]GenerateCall, len(p.GenerateCalls))
	copy(out, p.GenerateCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
}

// Ensure Provider implements speech.Provider at compile time.
var _ speech.Provider = (*Provider)(nil)
