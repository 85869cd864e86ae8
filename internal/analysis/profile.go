package analysis

import (
	"errors"
	"fmt"
	"math"
)

var ErrTooShort = errors.New("series too short")

const minSamples = 4

// HourlyProfile averages values by hour of day of their timestamp (seconds).
// Hours without samples are NaN.
func HourlyProfile(times, values []float64) [24]float64 {
	var sum [24]float64
	var count [24]int
	for i := 0; i < len(times) && i < len(values); i++ {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		h := int(math.Mod(times[i], 86400) / 3600)
		if h < 0 {
			h += 24
		}
		sum[h] += v
		count[h]++
	}

	var profile [24]float64
	for h := range profile {
		if count[h] == 0 {
			profile[h] = math.NaN()
			continue
		}
		profile[h] = sum[h] / float64(count[h])
	}
	return profile
}

type Summary struct {
	Samples    int
	Mean       float64
	Min        float64
	Max        float64
	StdDev     float64
	LoadFactor float64 // mean / max
	PeakHour   int
	Dominant   Peak
	Periodic   bool
	Profile    [24]float64
}

// Summarize computes load statistics, the dominant period and the hourly
// profile of a series sampled every dt seconds.
func Summarize(times, values []float64, dt float64) (*Summary, error) {
	x := finite(values)
	if len(x) < minSamples {
		return nil, fmt.Errorf("%w: %d finite samples", ErrTooShort, len(x))
	}

	s := &Summary{Samples: len(x), Min: x[0], Max: x[0]}
	for _, v := range x {
		s.Mean += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean /= float64(len(x))
	for _, v := range x {
		d := v - s.Mean
		s.StdDev += d * d
	}
	s.StdDev = math.Sqrt(s.StdDev / float64(len(x)))
	if s.Max != 0 {
		s.LoadFactor = s.Mean / s.Max
	}

	s.Dominant, s.Periodic = DominantPeriod(values, dt)
	s.Profile = HourlyProfile(times, values)

	s.PeakHour = -1
	for h, v := range s.Profile {
		if math.IsNaN(v) {
			continue
		}
		if s.PeakHour < 0 || v > s.Profile[s.PeakHour] {
			s.PeakHour = h
		}
	}
	return s, nil
}
