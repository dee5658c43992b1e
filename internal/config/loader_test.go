package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/speechstudio/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "studio.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Voice.Default != "nova" {
		t.Errorf("voice.default: got %q, want %q", cfg.Voice.Default, "nova")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "config: open") {
		t.Errorf("error should be wrapped with the open op, got %q", err.Error())
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Audio.Channels = 3
	cfg.Visualizer.FPS = -1

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{"log_level", "audio.channels", "visualizer.fps"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q does not mention %q", err.Error(), want)
		}
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Audio: config.AudioConfig{SampleRate: 48000, Channels: 2}}
	config.ApplyDefaults(cfg)
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 2 {
		t.Errorf("explicit audio values overwritten: %+v", cfg.Audio)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if !slices.Contains(config.ValidProviderNames["speech"], "gemini") {
		t.Error(`ValidProviderNames["speech"] should contain "gemini"`)
	}
	if !slices.Contains(config.ValidProviderNames["speech"], "openai") {
		t.Error(`ValidProviderNames["speech"] should contain "openai"`)
	}
	if !slices.Contains(config.ValidProviderNames["output"], "discard") {
		t.Error(`ValidProviderNames["output"] should contain "discard"`)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load(example.yaml): %v", err)
	}
	if cfg.Provider.Name != "gemini" || cfg.Audio.Output != config.OutputSpeaker {
		t.Errorf("provider %q, output %q", cfg.Provider.Name, cfg.Audio.Output)
	}
	if cfg.Voice.Default != config.DefaultVoice || cfg.Export.AppName != config.DefaultAppName {
		t.Errorf("voice %q, app %q", cfg.Voice.Default, cfg.Export.AppName)
	}
}
