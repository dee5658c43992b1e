package app

import (
	"context"

	"github.com/MrWong99/speechstudio/internal/observe"
	"github.com/MrWong99/speechstudio/pkg/visual"
)

// fanout delivers every frame to each sink in order and counts the frames.
type fanout struct {
	sinks   []visual.Sink
	metrics *observe.Metrics
}

var _ visual.Sink = (*fanout)(nil)

func newFanout(m *observe.Metrics, sinks ...visual.Sink) *fanout {
	return &fanout{sinks: sinks, metrics: m}
}

func (f *fanout) Frame(fr visual.Frame) {
	f.metrics.VisualFrames.Add(context.Background(), 1)
	for _, s := range f.sinks {
		s.Frame(fr)
	}
}

func (f *fanout) Clear() {
	for _, s := range f.sinks {
		s.Clear()
	}
}
