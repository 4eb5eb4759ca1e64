package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReconcileMetrics holds reconciliation instruments. A nil *ReconcileMetrics
// records nothing.
type ReconcileMetrics struct {
	reconciliations        metric.Int64Counter
	reconciliationDuration metric.Float64Histogram
	descriptors            metric.Int64Counter
	retries                metric.Int64Counter
	droppedRecords         metric.Int64Counter
}

// NewReconcileMetrics creates the instruments on meter, or on the global
// meter provider when meter is nil.
func NewReconcileMetrics(meter metric.Meter) (*ReconcileMetrics, error) {
	if meter == nil {
		meter = otel.Meter("birthmark.reconcile")
	}

	reconciliations, err := meter.Int64Counter(
		"birthmark.reconciliations",
		metric.WithDescription("Number of per-kind reconciliation runs"),
		metric.WithUnit("{reconciliation}"),
	)
	if err != nil {
		return nil, err
	}

	reconciliationDuration, err := meter.Float64Histogram(
		"birthmark.reconciliation.duration",
		metric.WithDescription("Duration of per-kind reconciliations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	descriptors, err := meter.Int64Counter(
		"birthmark.descriptors",
		metric.WithDescription("Resource descriptors emitted, by live state"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"birthmark.backoff.retries",
		metric.WithDescription("Rate-limited calls retried after a backoff sleep"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	droppedRecords, err := meter.Int64Counter(
		"birthmark.audit.dropped_records",
		metric.WithDescription("Audit records dropped because their payload was malformed"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &ReconcileMetrics{
		reconciliations:        reconciliations,
		reconciliationDuration: reconciliationDuration,
		descriptors:            descriptors,
		retries:                retries,
		droppedRecords:         droppedRecords,
	}, nil
}

// RecordReconciliation records one per-kind run and its duration.
func (m *ReconcileMetrics) RecordReconciliation(ctx context.Context, kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("resource.kind", kind),
		attribute.String("status", status),
	)
	m.reconciliations.Add(ctx, 1, attrs)
	m.reconciliationDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordDescriptors records emitted descriptors split by live/deleted.
func (m *ReconcileMetrics) RecordDescriptors(ctx context.Context, kind string, live, deleted int) {
	if m == nil {
		return
	}
	m.descriptors.Add(ctx, int64(live), metric.WithAttributes(
		attribute.String("resource.kind", kind),
		attribute.String("state", "live"),
	))
	m.descriptors.Add(ctx, int64(deleted), metric.WithAttributes(
		attribute.String("resource.kind", kind),
		attribute.String("state", "deleted"),
	))
}

// RecordRetry records one backoff sleep for operation.
func (m *ReconcileMetrics) RecordRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordDroppedRecord records a malformed audit record skipped for kind.
func (m *ReconcileMetrics) RecordDroppedRecord(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.droppedRecords.Add(ctx, 1, metric.WithAttributes(attribute.String("resource.kind", kind)))
}

// RetryObserver adapts RecordRetry to the backoff observer signature.
func (m *ReconcileMetrics) RetryObserver() func(ctx context.Context, operation string, attempt int, delay time.Duration) {
	return func(ctx context.Context, operation string, _ int, _ time.Duration) {
		m.RecordRetry(ctx, operation)
	}
}
