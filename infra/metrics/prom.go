package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/groundctl/passplan/core/metrics"
)

// PromSink records override-session events as Prometheus metrics.
type PromSink struct {
	mutations   *prometheus.CounterVec
	saves       *prometheus.CounterVec
	saveLatency *prometheus.HistogramVec
}

// NewPromSink registers the session collectors on the given registerer. A nil
// registerer uses the default one; already registered collectors are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passplan_mutations_total",
		Help: "Total number of session mutations by operation and outcome",
	}, []string{"mutation", "severity", "rejected"})
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passplan_save_attempts_total",
		Help: "Total number of save attempts by outcome",
	}, []string{"outcome"})
	saveLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passplan_save_duration_seconds",
		Help:    "Time spent waiting on the persistence store",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	if err := register(reg, &mutations); err != nil {
		return nil, err
	}
	if err := register(reg, &saves); err != nil {
		return nil, err
	}
	if err := registerHist(reg, &saveLatency); err != nil {
		return nil, err
	}
	return &PromSink{mutations: mutations, saves: saves, saveLatency: saveLatency}, nil
}

func register(reg prometheus.Registerer, vec **prometheus.CounterVec) error {
	if err := reg.Register(*vec); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		*vec = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return nil
}

func registerHist(reg prometheus.Registerer, vec **prometheus.HistogramVec) error {
	if err := reg.Register(*vec); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		*vec = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return nil
}

// RecordMutation implements the metrics sink.
func (s *PromSink) RecordMutation(rec coremetrics.MutationRecord) error {
	s.mutations.WithLabelValues(rec.Mutation, rec.Severity, strconv.FormatBool(rec.Rejected)).Inc()
	return nil
}

// RecordSave implements the metrics sink.
func (s *PromSink) RecordSave(rec coremetrics.SaveRecord) error {
	s.saves.WithLabelValues(rec.Outcome).Inc()
	s.saveLatency.WithLabelValues(rec.Outcome).Observe(rec.Duration.Seconds())
	return nil
}

// StartPromServer exposes /metrics on the given port. It blocks.
func StartPromServer(port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("prometheus server: %w", err)
	}
	return nil
}
