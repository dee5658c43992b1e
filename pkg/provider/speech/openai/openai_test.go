package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

type speechRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

type fakeSpeechAPI struct {
	mu       sync.Mutex
	status   int
	body     []byte
	requests []speechRequest
	paths    []string
}

func (f *fakeSpeechAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.paths = append(f.paths, r.URL.Path)
	status, body := f.status, f.body
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice","type":"invalid_request_error"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(body)
}

func newTestProvider(t *testing.T, api *fakeSpeechAPI) *Provider {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	p, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "tts-1"); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("sk", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("model = %q, want %q", p.Model(), DefaultModel)
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	p, _ := New("sk", "")
	vs := p.Voices()
	if len(vs) != len(voiceIDs) {
		t.Fatalf("got %d voices, want %d", len(vs), len(voiceIDs))
	}
	if vs[0].ID != "alloy" || vs[0].Provider != "openai" {
		t.Errorf("first voice = %+v", vs[0])
	}
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()
	pcm := []byte{0x10, 0x00, 0xf0, 0xff}
	api := &fakeSpeechAPI{body: pcm}
	p := newTestProvider(t, api)

	res, err := p.Generate(context.Background(), speech.Request{Text: "[laughs] hello", Voice: "nova"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Audio != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("audio = %q", res.Audio)
	}
	if res.Format != pcmFormat {
		t.Errorf("format = %v, want %v", res.Format, pcmFormat)
	}
	if res.Voice != "nova" {
		t.Errorf("voice = %q, want nova", res.Voice)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(api.requests))
	}
	got := api.requests[0]
	if got.Input != "[laughs] hello" || got.Voice != "nova" || got.ResponseFormat != "pcm" || got.Model != DefaultModel {
		t.Errorf("request = %+v", got)
	}
	if api.paths[0] != "/v1/audio/speech" {
		t.Errorf("path = %q, want /v1/audio/speech", api.paths[0])
	}
}

func TestGenerate_DefaultVoice(t *testing.T) {
	t.Parallel()
	api := &fakeSpeechAPI{body: []byte{0, 0}}
	p := newTestProvider(t, api)

	res, err := p.Generate(context.Background(), speech.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Voice != DefaultVoice {
		t.Errorf("voice = %q, want %q", res.Voice, DefaultVoice)
	}
}

func TestGenerate_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		api  *fakeSpeechAPI
		text string
		want speech.Reason
	}{
		{name: "empty script", api: &fakeSpeechAPI{body: []byte{0, 0}}, text: " ", want: speech.ReasonEmptyScript},
		{name: "empty body", api: &fakeSpeechAPI{}, text: "hi", want: speech.ReasonMissingPayload},
		{name: "api error", api: &fakeSpeechAPI{status: http.StatusBadRequest}, text: "hi", want: speech.ReasonRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, tt.api)
			_, err := p.Generate(context.Background(), speech.Request{Text: tt.text})
			if got := speech.ReasonOf(err); got != tt.want {
				t.Errorf("reason = %q, want %q (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestGenerate_NoRetryOnServerError(t *testing.T) {
	t.Parallel()
	api := &fakeSpeechAPI{status: http.StatusInternalServerError}
	p := newTestProvider(t, api)

	if _, err := p.Generate(context.Background(), speech.Request{Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.requests) != 1 {
		t.Errorf("requests = %d, want exactly 1", len(api.requests))
	}
}
