package visual_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrWong99/speechstudio/pkg/visual"
)

func TestTextSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := visual.NewTextSink(&buf, 4)

	s.Clear()
	if buf.Len() != 0 {
		t.Fatalf("Clear before any frame wrote %q", buf.String())
	}

	s.Frame(visual.Frame{Bins: []byte{255, 255, 255, 255}})
	if got := buf.String(); got != "\r████" {
		t.Errorf("frame: got %q", got)
	}

	buf.Reset()
	s.Clear()
	if got := buf.String(); got != "\r"+strings.Repeat(" ", 4)+"\r" {
		t.Errorf("clear: got %q", got)
	}
}

func TestSinkFunc(t *testing.T) {
	t.Parallel()
	var frames, clears int
	s := visual.SinkFunc{
		OnFrame: func(visual.Frame) { frames++ },
		OnClear: func() { clears++ },
	}
	s.Frame(visual.Frame{})
	s.Clear()
	s.Clear()
	if frames != 1 || clears != 2 {
		t.Errorf("got %d frames and %d clears, want 1 and 2", frames, clears)
	}

	// Nil callbacks are ignored.
	visual.SinkFunc{}.Frame(visual.Frame{})
	visual.SinkFunc{}.Clear()
}
