// Package config provides the configuration schema, loader, and provider registry
// for the speech studio.
package config

// LogLevel controls log verbosity for the speech studio server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// OutputName selects the host audio output.
type OutputName string

const (
	// OutputSpeaker plays through the system sound device.
	OutputSpeaker OutputName = "speaker"

	// OutputDiscard drains audio in real time without a device.
	OutputDiscard OutputName = "discard"
)

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr = ":8080"
	DefaultProvider   = "gemini"
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	DefaultBufferMS   = 100
	DefaultFFTSize    = 256
	DefaultBins       = 128
	DefaultFPS        = 60
	DefaultWidth      = 800
	DefaultHeight     = 128
	DefaultVoice      = "Kore"
	DefaultAppName    = "gemini"
)

// Config is the root configuration structure for the speech studio.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderEntry    `yaml:"provider"`
	Audio      AudioConfig      `yaml:"audio"`
	Visualizer VisualizerConfig `yaml:"visualizer"`
	Voice      VoiceConfig      `yaml:"voice"`
	Export     ExportConfig     `yaml:"export"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProviderEntry selects and configures the speech generation backend.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation ("gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// AudioConfig fixes the PCM format the pipeline expects and the output it
// plays through. The format is not negotiated with the provider.
type AudioConfig struct {
	// SampleRate of the decoded PCM in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels of the decoded PCM; 1 or 2.
	Channels int `yaml:"channels"`

	// Output selects the host audio output.
	Output OutputName `yaml:"output"`

	// BufferMS is the device buffer length in milliseconds.
	BufferMS int `yaml:"buffer_ms"`

	// FFTSize is the analysis window of the frequency analyser; a power of two.
	FFTSize int `yaml:"fft_size"`
}

// VisualizerConfig shapes the frames of the visualization feed.
type VisualizerConfig struct {
	// Bins is the number of magnitudes per frame; at most FFTSize/2.
	Bins int `yaml:"bins"`

	// FPS is the tick rate of the feed.
	FPS int `yaml:"fps"`

	// Width and Height are the canvas size bars are computed for.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// VoiceConfig holds voice selection defaults.
type VoiceConfig struct {
	// Default is the voice used when a request names none.
	Default string `yaml:"default"`
}

// ExportConfig controls WAV export.
type ExportConfig struct {
	// AppName is the filename prefix: <app>-speech-<voice>-<timestamp>.wav.
	AppName string `yaml:"app_name"`

	// Dir is where server-side exports are written. Empty disables writing
	// exports to disk through the MCP tool.
	Dir string `yaml:"dir"`
}

// ApplyDefaults fills zero-valued fields of cfg with the package defaults.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Provider.Name, DefaultProvider)
	setDefault(&cfg.Audio.SampleRate, DefaultSampleRate)
	setDefault(&cfg.Audio.Channels, DefaultChannels)
	setDefault(&cfg.Audio.Output, OutputSpeaker)
	setDefault(&cfg.Audio.BufferMS, DefaultBufferMS)
	setDefault(&cfg.Audio.FFTSize, DefaultFFTSize)
	setDefault(&cfg.Visualizer.Bins, cfg.Audio.FFTSize/2)
	setDefault(&cfg.Visualizer.FPS, DefaultFPS)
	setDefault(&cfg.Visualizer.Width, DefaultWidth)
	setDefault(&cfg.Visualizer.Height, DefaultHeight)
	setDefault(&cfg.Voice.Default, DefaultVoice)
	setDefault(&cfg.Export.AppName, DefaultAppName)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}
