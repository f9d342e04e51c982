// Package sinks implements progress consumers: Prometheus collectors and a
// structured run log. Each satisfies progress.Sink.
package sinks
