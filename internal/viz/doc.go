// Package viz renders co-simulation results for the terminal.
//
// Styles are lipgloss definitions shared by the CLI and the live view.
// Plot and PlotSeries wrap asciigraph for setpoint and sensor series, and
// SparklineChart draws a one-line trend for narrow panels.
package viz
