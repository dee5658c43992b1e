package config_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/speechstudio/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
provider:
  name: gemini
  api_key: test-key
audio:
  output: discard
voice:
  default: Kore
`

const watcherUpdatedYAML = `
server:
  log_level: debug
provider:
  name: gemini
  api_key: test-key
audio:
  output: discard
voice:
  default: Puck
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// startWatcher builds a watcher on path and runs it until the test ends.
func startWatcher(t *testing.T, path string, onReload config.ReloadFunc, opts ...config.WatcherOption) *config.Watcher {
	t.Helper()
	opts = append([]config.WatcherOption{config.WithInterval(20 * time.Millisecond)}, opts...)
	w, err := config.NewWatcher(path, onReload, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	})
	return w
}

// replaceFile swaps in new content with a rename so that a poll never sees a
// half-written file.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	writeFile(t, tmp, content)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(tmp, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

// bumpModTime moves the file's modification time forward so that the change
// is visible even on filesystems with coarse timestamps.
func bumpModTime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w := startWatcher(t, cfgPath, nil)
	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Voice.Default != "Kore" {
		t.Errorf("voice.default: got %q, want Kore", cfg.Voice.Default)
	}
}

func TestWatcher_ReloadsChangedContent(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	type reload struct{ old, new *config.Config }
	reloads := make(chan reload, 4)
	w := startWatcher(t, cfgPath, func(old, new *config.Config) {
		reloads <- reload{old, new}
	})

	replaceFile(t, cfgPath, watcherUpdatedYAML)

	var got reload
	select {
	case got = <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback was not invoked")
	}

	if got.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level: got %q, want %q", got.old.Server.LogLevel, config.LogInfo)
	}
	if got.new.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level: got %q, want %q", got.new.Server.LogLevel, config.LogDebug)
	}
	if d := config.Diff(got.old, got.new); !d.DefaultVoiceChanged || d.NewDefaultVoice != "Puck" {
		t.Errorf("diff: got %+v, want default voice change to Puck", d)
	}
	if w.Current() != got.new {
		t.Error("Current() does not return the reloaded config")
	}
}

func TestWatcher_InvalidFileKeepsPreviousConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var mu sync.Mutex
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&syncWriter{mu: &mu, w: &logs}, nil))

	var calls atomicCounter
	w := startWatcher(t, cfgPath, func(_, _ *config.Config) { calls.inc() }, config.WithWatcherLogger(logger))

	replaceFile(t, cfgPath, watcherInvalidYAML)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		warned := strings.Contains(logs.String(), "keeping previous config")
		mu.Unlock()
		if warned {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("invalid config was never reported")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if n := calls.get(); n != 0 {
		t.Errorf("reload callback fired %d times for an invalid file", n)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("Current() log_level = %q, want previous %q", w.Current().Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var calls atomicCounter
	startWatcher(t, cfgPath, func(_, _ *config.Config) { calls.inc() })

	bumpModTime(t, cfgPath)
	time.Sleep(200 * time.Millisecond)

	if n := calls.get(); n != 0 {
		t.Errorf("reload callback fired %d times for a touch", n)
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Errorf("Run on a cancelled context = %v, want nil", err)
	}
}

type atomicCounter struct {
	mu sync.Mutex
	n  int
}

func (c *atomicCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *atomicCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type syncWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
