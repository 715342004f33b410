package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"calgrid/internal/model"
)

// Metrics records store call latency and outcome.
type Metrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
}

// NewMetrics registers the store metrics on reg (the default registerer if
// nil). Registering twice reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "calgrid",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of event store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calgrid",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Event store operations by outcome.",
		}, []string{"operation", "outcome"}),
	}

	var are prometheus.AlreadyRegisteredError
	if err := reg.Register(m.duration); err != nil {
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register store metric: %w", err)
		}
		m.duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(m.calls); err != nil {
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register store metric: %w", err)
		}
		m.calls = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return m, nil
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case err != nil:
		outcome = "error"
	}
	m.calls.WithLabelValues(op, outcome).Inc()
}

// Instrumented wraps a Backend with Metrics.
type Instrumented struct {
	Backend
	m *Metrics
}

func Instrument(b Backend, m *Metrics) *Instrumented {
	return &Instrumented{Backend: b, m: m}
}

func (i *Instrumented) FetchWindow(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	t := time.Now()
	evs, err := i.Backend.FetchWindow(ctx, start, end)
	i.m.observe("fetch", t, err)
	return evs, err
}

func (i *Instrumented) Create(ctx context.Context, f model.Fields) (model.CalendarEvent, error) {
	t := time.Now()
	ev, err := i.Backend.Create(ctx, f)
	i.m.observe("create", t, err)
	return ev, err
}

func (i *Instrumented) Update(ctx context.Context, id string, p model.Patch) (model.CalendarEvent, error) {
	t := time.Now()
	ev, err := i.Backend.Update(ctx, id, p)
	i.m.observe("update", t, err)
	return ev, err
}

func (i *Instrumented) Move(ctx context.Context, id string, start, end time.Time) (model.CalendarEvent, error) {
	t := time.Now()
	ev, err := i.Backend.Move(ctx, id, start, end)
	i.m.observe("move", t, err)
	return ev, err
}

func (i *Instrumented) Remove(ctx context.Context, id string) error {
	t := time.Now()
	err := i.Backend.Remove(ctx, id)
	i.m.observe("remove", t, err)
	return err
}
