// Package openai provides a speech.Provider backed by the OpenAI speech
// endpoint, requesting raw PCM so the audio pipeline can play it unchanged.
//
// The endpoint's "pcm" response format is fixed at 24 kHz, signed 16-bit
// little-endian mono.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/speechstudio/pkg/audio"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

// Compile-time interface assertion.
var _ speech.Provider = (*Provider)(nil)

const (
	// DefaultModel is the speech model used when none is configured.
	DefaultModel = "gpt-4o-mini-tts"

	// DefaultVoice is the voice used when a request names none.
	DefaultVoice = "alloy"

	providerName = "openai"
)

// pcmFormat is what the endpoint returns for response_format=pcm.
var pcmFormat = audio.Format{SampleRate: 24000, Channels: 1}

var voiceIDs = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer", "verse"}

// Provider implements speech.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	defaultVoice string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	defaultVoice string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(v string) Option {
	return func(c *config) {
		c.defaultVoice = v
	}
}

// New constructs a new OpenAI speech Provider. An empty model selects
// [DefaultModel].
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{defaultVoice: DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Failures are surfaced to the caller, never retried.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		defaultVoice: cfg.defaultVoice,
	}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Voices implements speech.Provider.
func (p *Provider) Voices() []speech.Voice {
	out := make([]speech.Voice, len(voiceIDs))
	for i, id := range voiceIDs {
		out[i] = speech.Voice{ID: id, Name: id, Provider: providerName}
	}
	return out
}

// Generate implements speech.Provider.
func (p *Provider) Generate(ctx context.Context, req speech.Request) (*speech.Result, error) {
	if err := speech.CheckScript(providerName, req.Text); err != nil {
		return nil, err
	}
	voice := req.Voice
	if voice == "" {
		voice = p.defaultVoice
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, &speech.GenerationError{Provider: providerName, Reason: speech.ReasonRequest, Err: err}
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &speech.GenerationError{Provider: providerName, Reason: speech.ReasonRequest, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(pcm) == 0 {
		return nil, &speech.GenerationError{Provider: providerName, Reason: speech.ReasonMissingPayload}
	}
	return &speech.Result{
		Audio:  base64.StdEncoding.EncodeToString(pcm),
		Format: pcmFormat,
		Voice:  voice,
	}, nil
}
