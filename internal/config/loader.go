package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known names per registry kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"speech": {"gemini", "openai"},
	"output": {string(OutputSpeaker), string(OutputDiscard)},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It expects
// defaults to have been applied.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Provider
	validateProviderName("speech", cfg.Provider.Name)
	if cfg.Provider.APIKey == "" {
		slog.Warn("provider.api_key is empty; the key is taken from the environment", "provider", cfg.Provider.Name)
	}

	// Audio
	a := cfg.Audio
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 192000]", a.SampleRate))
	}
	if a.Channels < 1 || a.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", a.Channels))
	}
	if !slices.Contains(ValidProviderNames["output"], string(a.Output)) {
		errs = append(errs, fmt.Errorf("audio.output %q is invalid; valid values: speaker, discard", a.Output))
	}
	if a.BufferMS < 0 || a.BufferMS > 1000 {
		errs = append(errs, fmt.Errorf("audio.buffer_ms %d is out of range [0, 1000]", a.BufferMS))
	}
	if a.FFTSize < 32 || a.FFTSize > 32768 || a.FFTSize&(a.FFTSize-1) != 0 {
		errs = append(errs, fmt.Errorf("audio.fft_size %d must be a power of two in [32, 32768]", a.FFTSize))
	}

	// Visualizer
	v := cfg.Visualizer
	if v.Bins < 1 || v.Bins > a.FFTSize/2 {
		errs = append(errs, fmt.Errorf("visualizer.bins %d is out of range [1, audio.fft_size/2 = %d]", v.Bins, a.FFTSize/2))
	}
	if v.FPS < 1 || v.FPS > 240 {
		errs = append(errs, fmt.Errorf("visualizer.fps %d is out of range [1, 240]", v.FPS))
	}
	if v.Width <= 0 || v.Height <= 0 {
		errs = append(errs, fmt.Errorf("visualizer canvas %dx%d must be positive", v.Width, v.Height))
	}

	// Export
	if cfg.Export.Dir != "" {
		if info, err := os.Stat(cfg.Export.Dir); err != nil || !info.IsDir() {
			slog.Warn("export.dir does not exist or is not a directory; exports to disk will fail", "dir", cfg.Export.Dir)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
