package visual

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// SinkFunc adapts a pair of functions to [Sink]. Either may be nil.
type SinkFunc struct {
	OnFrame func(Frame)
	OnClear func()
}

// Frame implements [Sink].
func (s SinkFunc) Frame(f Frame) {
	if s.OnFrame != nil {
		s.OnFrame(f)
	}
}

// Clear implements [Sink].
func (s SinkFunc) Clear() {
	if s.OnClear != nil {
		s.OnClear()
	}
}

// levels are the block glyphs used by [TextSink], quietest first.
var levels = []rune(" ▁▂▃▄▅▆▇█")

// TextSink renders frames as a single row of block characters, redrawing in
// place with a carriage return. It suits terminals.
type TextSink struct {
	mu      sync.Mutex
	w       io.Writer
	columns int
	drawn   bool
}

var _ Sink = (*TextSink)(nil)

// NewTextSink returns a sink writing to w, folding the bins into columns
// characters.
func NewTextSink(w io.Writer, columns int) *TextSink {
	if columns <= 0 {
		columns = 64
	}
	return &TextSink{w: w, columns: columns}
}

// Frame implements [Sink].
func (s *TextSink) Frame(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r%s", Row(f.Bins, s.columns))
	s.drawn = true
}

// Clear implements [Sink].
func (s *TextSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawn {
		return
	}
	fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.columns))
	s.drawn = false
}

// Row folds bins into columns characters, each showing the loudest bin of
// its group.
func Row(bins []byte, columns int) string {
	if len(bins) == 0 || columns <= 0 {
		return ""
	}
	columns = min(columns, len(bins))
	var b strings.Builder
	for c := range columns {
		lo := c * len(bins) / columns
		hi := (c + 1) * len(bins) / columns
		peak := byte(0)
		for _, v := range bins[lo:hi] {
			peak = max(peak, v)
		}
		b.WriteRune(levels[int(peak)*(len(levels)-1)/255])
	}
	return b.String()
}
