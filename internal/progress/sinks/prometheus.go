package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/subharvest/internal/progress"
)

// PrometheusSink exports run progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runRuntime    prometheus.Histogram

	fetchRequests *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	candidates *prometheus.CounterVec
	records    *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subharvest_runs_started_total",
			Help: "Harvest runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subharvest_runs_completed_total",
			Help: "Harvest runs completed, by result.",
		}, []string{"result"}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subharvest_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subharvest_fetch_requests_total",
			Help: "Fetch attempts by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subharvest_fetch_bytes_total",
			Help: "Response bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subharvest_fetch_duration_seconds",
			Help:    "Fetch attempt duration by status class.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"status_class"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subharvest_candidates_total",
			Help: "Candidates finished, by outcome.",
		}, []string{"outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subharvest_records_total",
			Help: "Classified subscription endpoints, by kind.",
		}, []string{"kind"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.fetchRequests,
		s.fetchBytes,
		s.fetchDuration,
		s.candidates,
		s.records,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone:
			s.finishRun(evt, "success")
		case progress.StageRunError:
			s.finishRun(evt, "error")
		case progress.StageFetchDone:
			s.observeFetch(evt)
		case progress.StageCandidateDone:
			s.candidates.WithLabelValues(string(evt.Outcome)).Inc()
			if evt.Outcome == progress.OutcomeClassified && evt.Kind != "" {
				s.records.WithLabelValues(evt.Kind).Inc()
			}
		}
	}
	return nil
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) observeFetch(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.fetchRequests.WithLabelValues(site, statusClass).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
