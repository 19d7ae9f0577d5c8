// Package harness measures workloads. It runs a benchmark repeatedly, each
// repetition on a fresh scheduler with a fresh benchmark instance, times it
// to quiescence, and reduces the samples to summary statistics that the
// writers in this package render as a console table, CSV, or scaling lines.
package harness
