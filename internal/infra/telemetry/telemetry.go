package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
)

// Metrics exposes Prometheus collectors for identity lifecycle outcomes.
type Metrics struct {
	outcomes *prometheus.CounterVec
}

// NewMetrics constructs and registers the lifecycle collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Subsystem: "lifecycle",
		Name:      "events_total",
		Help:      "Total audited identity lifecycle events partitioned by action and success.",
	}, []string{"action", "success"})

	if err := reg.Register(outcomes); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				outcomes = existing
			} else {
				return nil, fmt.Errorf("existing outcomes collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register outcomes collector: %w", err)
		}
	}

	return &Metrics{outcomes: outcomes}, nil
}

// AuditSink wraps another sink and counts each recorded entry. Recording
// still succeeds or fails with the wrapped sink; metrics are best effort.
type AuditSink struct {
	next    port.AuditSink
	metrics *Metrics
}

// NewAuditSink decorates the provided sink with lifecycle metrics.
func NewAuditSink(next port.AuditSink, metrics *Metrics) *AuditSink {
	return &AuditSink{next: next, metrics: metrics}
}

// Record counts the entry and forwards it to the wrapped sink.
func (s *AuditSink) Record(ctx context.Context, entry domain.AuditEntry) error {
	if s.metrics != nil && s.metrics.outcomes != nil {
		success := "false"
		if entry.Success {
			success = "true"
		}
		s.metrics.outcomes.WithLabelValues(entry.Action, success).Inc()
	}

	if s.next == nil {
		return nil
	}

	return s.next.Record(ctx, entry)
}

var _ port.AuditSink = (*AuditSink)(nil)
