// Package engine runs benchmark measurements for the API and the CLI. It
// resolves benchmarks through the workload registry, drives the harness,
// records progress and results in the store, and streams progress lines to
// subscribers while a run is in flight.
package engine
