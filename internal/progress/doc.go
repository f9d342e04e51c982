// Package progress tracks how far a harvest run has advanced. Counter ticks
// once per candidate and optionally drives a terminal progress bar, while Hub
// batches structured events on a background goroutine and fans them out to
// sinks such as Prometheus collectors or the run log.
package progress
