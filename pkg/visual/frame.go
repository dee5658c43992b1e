package visual

import "math"

// Bar is one rectangle of the bar-graph rendering of a [Frame], in canvas
// pixels with the origin at the top left.
type Bar struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
	R      uint8   `json:"r"`
	G      uint8   `json:"g"`
	B      uint8   `json:"b"`
}

// Frame is one visualization tick: the raw magnitude snapshot and the bars
// derived from it. Frames are not retained by the feed; sinks that keep one
// must copy it.
type Frame struct {
	// Seq numbers frames within one attachment, starting at 1.
	Seq uint64 `json:"seq"`

	// Bins holds one magnitude per frequency bin, 0..255.
	Bins []byte `json:"bins"`

	// Bars is the bar-graph rendering of Bins on a Width × Height canvas.
	Bars []Bar `json:"bars"`

	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bars derives the bar graph for bins on a width × height canvas. Bars are
// centred vertically, each 2.5 × width/len(bins) wide with a one pixel gap,
// and shade from blue towards purple-white with the bin index.
func Bars(bins []byte, width, height int) []Bar {
	n := len(bins)
	if n == 0 {
		return nil
	}
	barWidth := float64(width) / float64(n) * 2.5
	bars := make([]Bar, n)
	x := 0.0
	for i, v := range bins {
		h := float64(v) / 1.5
		frac := float64(i) / float64(n)
		bars[i] = Bar{
			X:      x,
			Y:      (float64(height) - h) / 2,
			Width:  barWidth,
			Height: h,
			R:      channel(h + 25*frac),
			G:      channel(250 * frac),
			B:      255,
		}
		x += barWidth + 1
	}
	return bars
}

// channel clamps a colour component the way a canvas does.
func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
