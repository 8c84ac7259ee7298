package infra

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for generation jobs.
type Observer interface {
	RecordJob(kind, backend string, duration time.Duration, err error)
	RecordFanout(total, succeeded int, duration time.Duration)
}

// PrometheusObserver exports job metrics to Prometheus.
type PrometheusObserver struct {
	jobDuration  *prometheus.HistogramVec
	jobFailures  *prometheus.CounterVec
	fanoutAngles *prometheus.CounterVec
	fanoutTime   prometheus.Histogram
}

// NewPrometheusObserver registers job and fan-out metrics on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "cinemastudio"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Latency of backend generation jobs.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind", "backend"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Count of failed backend generation jobs.",
		}, []string{"kind", "backend"}),
		fanoutAngles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_angles_total",
			Help:      "Multishot angle jobs by outcome.",
		}, []string{"outcome"}),
		fanoutTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_duration_seconds",
			Help:      "Wall time of a complete multishot fan-out.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		}),
	}

	var err error
	if o.jobDuration, err = register(reg, o.jobDuration); err != nil {
		return nil, err
	}
	if o.jobFailures, err = register(reg, o.jobFailures); err != nil {
		return nil, err
	}
	if o.fanoutAngles, err = register(reg, o.fanoutAngles); err != nil {
		return nil, err
	}
	if o.fanoutTime, err = register(reg, o.fanoutTime); err != nil {
		return nil, err
	}
	return o, nil
}

// register adds c to reg. When an equal collector is already registered the
// existing one is returned so observers sharing a registry record into it.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register studio metric: %w", err)
}

// RecordJob tracks one backend call.
func (o *PrometheusObserver) RecordJob(kind, backend string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.jobDuration.WithLabelValues(kind, backend).Observe(duration.Seconds())
	if err != nil {
		o.jobFailures.WithLabelValues(kind, backend).Inc()
	}
}

// RecordFanout tracks the outcome split of a multishot run.
func (o *PrometheusObserver) RecordFanout(total, succeeded int, duration time.Duration) {
	if o == nil {
		return
	}
	o.fanoutAngles.WithLabelValues("succeeded").Add(float64(succeeded))
	o.fanoutAngles.WithLabelValues("failed").Add(float64(total - succeeded))
	o.fanoutTime.Observe(duration.Seconds())
}

// NopObserver discards all telemetry.
type NopObserver struct{}

func (NopObserver) RecordJob(string, string, time.Duration, error) {}

func (NopObserver) RecordFanout(int, int, time.Duration) {}
