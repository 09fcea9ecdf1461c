// Package metrics exports client operations to Prometheus.
package metrics

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/enverbisevac/actors/actor"
	"github.com/enverbisevac/actors/errors"
)

const DefaultNamespace = "actors"

// Outcomes an operation is counted under.
const (
	OutcomeOK            = "ok"
	OutcomeConflict      = "conflict"
	OutcomeTimeout       = "timeout"
	OutcomeCanceled      = "canceled"
	OutcomeInvalid       = "invalid"
	OutcomePersistence   = "persistence"
	OutcomeSerialization = "serialization"
	OutcomeError         = "error"
)

// Collector is an actor.Observer and a prometheus.Collector.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var _ actor.Observer = (*Collector)(nil)

func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Actor operations by kind and outcome",
		}, []string{"op", "kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of actor operations, lock waits included",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op", "kind"}),
	}
}

func (c *Collector) Observe(op actor.Op, kind string, d time.Duration, err error) {
	c.operations.WithLabelValues(string(op), kind, Outcome(err)).Inc()
	c.duration.WithLabelValues(string(op), kind).Observe(d.Seconds())
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.duration.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.duration.Collect(ch)
}

// Outcome classifies err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.IsLockConflict(err), errors.IsLockAcquisition(err):
		return OutcomeConflict
	case errors.IsTimeout(err), stderrors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case stderrors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.IsValidation(err), errors.IsKeyValidation(err):
		return OutcomeInvalid
	case errors.IsSerialization(err):
		return OutcomeSerialization
	case errors.IsPersistence(err):
		return OutcomePersistence
	}
	return OutcomeError
}
