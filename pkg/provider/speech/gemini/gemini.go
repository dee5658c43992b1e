// Package gemini implements the speech.Provider interface on top of the
// Gemini text-to-speech models via the google.golang.org/genai SDK.
//
// A request asks for the AUDIO response modality with a prebuilt voice. The
// first part of the first candidate must carry inline PCM data; every other
// shape of response is classified into a speech.GenerationError.
//
// Typical usage:
//
//	p, err := gemini.New(ctx, apiKey, gemini.WithModel("gemini-2.5-flash-preview-tts"))
//	res, err := p.Generate(ctx, speech.Request{Text: script, Voice: "Kore"})
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"google.golang.org/genai"

	"github.com/MrWong99/speechstudio/pkg/audio"
	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

// Compile-time interface assertion.
var _ speech.Provider = (*Provider)(nil)

const (
	// DefaultModel is the TTS model used when none is configured.
	DefaultModel = "gemini-2.5-flash-preview-tts"

	// DefaultVoice is the prebuilt voice used when a request names none.
	DefaultVoice = "Kore"

	providerName = "gemini"
)

// voices is the prebuilt voice catalogue of the Gemini TTS models.
var voices = []speech.Voice{
	{ID: "Zephyr", Name: "Zephyr", Description: "Bright"},
	{ID: "Puck", Name: "Puck", Description: "Upbeat"},
	{ID: "Charon", Name: "Charon", Description: "Informative"},
	{ID: "Kore", Name: "Kore", Description: "Firm"},
	{ID: "Fenrir", Name: "Fenrir", Description: "Excitable"},
	{ID: "Leda", Name: "Leda", Description: "Youthful"},
	{ID: "Orus", Name: "Orus", Description: "Firm"},
	{ID: "Aoede", Name: "Aoede", Description: "Breezy"},
	{ID: "Callirrhoe", Name: "Callirrhoe", Description: "Easy-going"},
	{ID: "Autonoe", Name: "Autonoe", Description: "Bright"},
	{ID: "Enceladus", Name: "Enceladus", Description: "Breathy"},
	{ID: "Iapetus", Name: "Iapetus", Description: "Clear"},
	{ID: "Umbriel", Name: "Umbriel", Description: "Easy-going"},
	{ID: "Algieba", Name: "Algieba", Description: "Smooth"},
	{ID: "Despina", Name: "Despina", Description: "Smooth"},
	{ID: "Erinome", Name: "Erinome", Description: "Clear"},
	{ID: "Algenib", Name: "Algenib", Description: "Gravelly"},
	{ID: "Rasalgethi", Name: "Rasalgethi", Description: "Informative"},
	{ID: "Laomedeia", Name: "Laomedeia", Description: "Upbeat"},
	{ID: "Achernar", Name: "Achernar", Description: "Soft"},
	{ID: "Alnilam", Name: "Alnilam", Description: "Firm"},
	{ID: "Schedar", Name: "Schedar", Description: "Even"},
	{ID: "Gacrux", Name: "Gacrux", Description: "Mature"},
	{ID: "Pulcherrima", Name: "Pulcherrima", Description: "Forward"},
	{ID: "Achird", Name: "Achird", Description: "Friendly"},
	{ID: "Zubenelgenubi", Name: "Zubenelgenubi", Description: "Casual"},
	{ID: "Vindemiatrix", Name: "Vindemiatrix", Description: "Gentle"},
	{ID: "Sadachbia", Name: "Sadachbia", Description: "Lively"},
	{ID: "Sadaltager", Name: "Sadaltager", Description: "Knowledgeable"},
	{ID: "Sulafat", Name: "Sulafat", Description: "Warm"},
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini TTS model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(v string) Option {
	return func(p *Provider) { p.defaultVoice = v }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements speech.Provider for the Gemini TTS models.
type Provider struct {
	client       *genai.Client
	model        string
	baseURL      string
	httpClient   *http.Client
	defaultVoice string
}

// New creates a Gemini TTS provider using the Gemini Developer API.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	p := &Provider{
		model:        DefaultModel,
		defaultVoice: DefaultVoice,
	}
	for _, o := range opts {
		o(p)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	p.client = client
	return p, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Voices implements speech.Provider.
func (p *Provider) Voices() []speech.Voice {
	out := make([]speech.Voice, len(voices))
	for i, v := range voices {
		v.Provider = providerName
		out[i] = v
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

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Text), cfg)
	if err != nil {
		return nil, &speech.GenerationError{Provider: providerName, Reason: speech.ReasonRequest, Err: err}
	}

	blob, err := classify(resp)
	if err != nil {
		return nil, err
	}
	return &speech.Result{
		Audio:  base64.StdEncoding.EncodeToString(blob.Data),
		Format: formatFromMIME(blob.MIMEType),
		Voice:  voice,
	}, nil
}

// classify extracts the audio blob from resp or explains why there is none.
func classify(resp *genai.GenerateContentResponse) (*genai.Blob, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, &speech.GenerationError{Provider: providerName, Reason: speech.ReasonNoCandidate}
	}
	cand := resp.Candidates[0]

	if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonStop {
		return nil, &speech.GenerationError{
			Provider:     providerName,
			Reason:       speech.ReasonAbnormalCompletion,
			FinishReason: string(cand.FinishReason),
		}
	}

	if cand.Content == nil || len(cand.Content.Parts) == 0 || cand.Content.Parts[0] == nil {
		return nil, &speech.GenerationError{Provider: providerName, Reason: speech.ReasonMissingPayload}
	}
	part := cand.Content.Parts[0]

	if part.Text != "" && part.InlineData == nil {
		return nil, &speech.GenerationError{Provider: providerName, Reason: speech.ReasonTextNotAudio, Text: part.Text}
	}
	if part.InlineData == nil || len(part.InlineData.Data) == 0 {
		return nil, &speech.GenerationError{Provider: providerName, Reason: speech.ReasonMissingPayload}
	}
	return part.InlineData, nil
}

// formatFromMIME reads the sample rate from a MIME type such as
// "audio/L16;codec=pcm;rate=24000". The models emit mono; anything missing or
// unparsable falls back to [audio.DefaultFormat].
func formatFromMIME(mimeType string) audio.Format {
	f := audio.DefaultFormat
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return f
	}
	if rate, err := strconv.Atoi(params["rate"]); err == nil && rate > 0 {
		f.SampleRate = rate
	}
	if ch, err := strconv.Atoi(params["channels"]); err == nil && ch > 0 {
		f.Channels = ch
	}
	return f
}
