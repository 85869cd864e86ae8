// Package analysis characterizes recorded demand series.
//
//   - [PowerSpectrum]: one-sided amplitude spectrum of a mean-removed series
//   - [DominantPeriod]: strongest periodic component
//   - [HourlyProfile]: mean value per hour of day
//   - [Summarize]: all of the above plus load statistics
//
// A building driven by day-part schedules shows a dominant period of one
// day; a flat series has no dominant period:
//
//	peak, ok := analysis.DominantPeriod(demand, 600)
//	if ok {
//	    fmt.Printf("%.1f h\n", peak.Period/3600)
//	}
package analysis
