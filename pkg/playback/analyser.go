package playback

import (
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// DefaultFFTSize gives 128 frequency bins.
	DefaultFFTSize = 256

	// DefaultSmoothing is the weight given to the previous frame when
	// averaging magnitudes over time.
	DefaultSmoothing = 0.8

	// MinDecibels and MaxDecibels bound the range mapped onto 0..255 by
	// [Analyser.ByteFrequencyData].
	MinDecibels = -100.0
	MaxDecibels = -30.0
)

// Analyser is a pass-through streamer that captures a mono mix of the audio
// flowing through it and exposes its frequency spectrum.
//
// The device goroutine writes into the capture ring while readers take
// spectrum snapshots; both sides are safe to use concurrently.
type Analyser struct {
	src     beep.Streamer
	fftSize int

	mu   sync.Mutex
	ring []float64
	pos  int

	calcMu   sync.Mutex
	fft      *fourier.FFT
	window   []float64
	frame    []float64
	coeff    []complex128
	smoothed []float64
}

var _ beep.Streamer = (*Analyser)(nil)

// NewAnalyser wraps src. fftSize must be a power of two of at least 32;
// other values fall back to [DefaultFFTSize].
func NewAnalyser(src beep.Streamer, fftSize int) *Analyser {
	if fftSize < 32 || fftSize&(fftSize-1) != 0 {
		fftSize = DefaultFFTSize
	}
	return &Analyser{
		src:      src,
		fftSize:  fftSize,
		ring:     make([]float64, fftSize),
		fft:      fourier.NewFFT(fftSize),
		window:   blackman(fftSize),
		frame:    make([]float64, fftSize),
		smoothed: make([]float64, fftSize/2),
	}
}

// FFTSize returns the analysis window length in samples.
func (a *Analyser) FFTSize() int { return a.fftSize }

// FrequencyBinCount returns the number of values written by
// [Analyser.ByteFrequencyData]: half the FFT size.
func (a *Analyser) FrequencyBinCount() int { return a.fftSize / 2 }

// Stream implements [beep.Streamer]. Samples pass through unchanged.
func (a *Analyser) Stream(samples [][2]float64) (int, bool) {
	n, ok := a.src.Stream(samples)
	if n == 0 {
		return n, ok
	}
	a.mu.Lock()
	for i := range n {
		a.ring[a.pos] = (samples[i][0] + samples[i][1]) / 2
		a.pos = (a.pos + 1) % a.fftSize
	}
	a.mu.Unlock()
	return n, ok
}

// Err implements [beep.Streamer].
func (a *Analyser) Err() error { return a.src.Err() }

// ByteFrequencyData writes the current smoothed spectrum into dst, one byte
// per bin, with [MinDecibels] mapped to 0 and [MaxDecibels] to 255. It writes
// min(len(dst), FrequencyBinCount()) values and returns that count.
//
// Each call advances the time smoothing by one step.
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	a.calcMu.Lock()
	defer a.calcMu.Unlock()

	a.mu.Lock()
	for i := range a.fftSize {
		a.frame[i] = a.ring[(a.pos+i)%a.fftSize]
	}
	a.mu.Unlock()

	for i := range a.frame {
		a.frame[i] *= a.window[i]
	}
	a.coeff = a.fft.Coefficients(a.coeff, a.frame)

	n := min(len(dst), len(a.smoothed))
	scale := 255 / (MaxDecibels - MinDecibels)
	for k := range a.smoothed {
		mag := cmplxAbs(a.coeff[k]) / float64(a.fftSize)
		a.smoothed[k] = DefaultSmoothing*a.smoothed[k] + (1-DefaultSmoothing)*mag
		if k >= n {
			continue
		}
		db := MinDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := scale * (db - MinDecibels)
		dst[k] = byte(math.Max(0, math.Min(255, v)))
	}
	return n
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// blackman returns the window used for spectrum analysis.
func blackman(n int) []float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}
