package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Peak is one bin of a power spectrum.
type Peak struct {
	Bin       int
	Frequency float64 // Hz
	Period    float64 // seconds
	Amplitude float64
}

// PowerSpectrum returns the amplitudes of bins 0..n/2 of the series with
// its mean removed. Non-finite samples are dropped first.
func PowerSpectrum(data []float64) []float64 {
	x := finite(data)
	n := len(x)
	if n < 2 {
		return nil
	}

	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	centered := make([]float64, n)
	for i, v := range x {
		centered[i] = v - mean
	}

	spectrum := fft.FFTReal(centered)
	ps := make([]float64, n/2+1)
	for i := range ps {
		ps[i] = cmplx.Abs(spectrum[i]) / float64(n)
	}
	return ps
}

// DominantPeriod finds the strongest non-DC component of a series sampled
// every dt seconds. It reports false for short or flat series.
func DominantPeriod(data []float64, dt float64) (Peak, bool) {
	if dt <= 0 {
		return Peak{}, false
	}
	ps := PowerSpectrum(data)
	if len(ps) < 2 {
		return Peak{}, false
	}
	n := len(finite(data))

	best := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	if ps[best] < 1e-9 {
		return Peak{}, false
	}

	freq := float64(best) / (float64(n) * dt)
	return Peak{
		Bin:       best,
		Frequency: freq,
		Period:    1 / freq,
		Amplitude: ps[best],
	}, true
}

func finite(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
