// Package reconcile joins a kind's creation events with its live inventory.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/birthmark/internal/audit"
	"github.com/yairfalse/birthmark/internal/config"
	"github.com/yairfalse/birthmark/internal/plugin"
	"github.com/yairfalse/birthmark/internal/telemetry"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// EventFinder is the audit side of the join.
type EventFinder interface {
	FindCreationEvents(ctx context.Context, window resource.TimeWindow, m audit.Matcher) ([]audit.Record, error)
}

// Reconciler produces one Descriptor per audited resource of a kind.
type Reconciler struct {
	finder     EventFinder
	location   *time.Location
	timeFormat string
	metrics    *telemetry.ReconcileMetrics
	logger     *telemetry.Logger
	tracer     trace.Tracer
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLocation sets the timezone creation times are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithTimeFormat sets the creation time layout.
func WithTimeFormat(layout string) Option {
	return func(r *Reconciler) {
		if layout != "" {
			r.timeFormat = layout
		}
	}
}

// WithMetrics records reconciliation metrics on m.
func WithMetrics(m *telemetry.ReconcileMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// New creates a Reconciler. Creation times default to UTC.
func New(finder EventFinder, opts ...Option) *Reconciler {
	r := &Reconciler{
		finder:     finder,
		location:   time.UTC,
		timeFormat: config.DefaultTimeFormat,
		logger:     telemetry.NewLogger("reconcile"),
		tracer:     otel.Tracer("reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile fetches creation events and live inventory for a's kind
// concurrently and joins them by identity. Either side failing fails the
// whole kind; no partial result is returned.
func (r *Reconciler) Reconcile(ctx context.Context, a plugin.Adapter, window resource.TimeWindow) ([]resource.Descriptor, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	kind := a.Kind()
	ctx, span := r.tracer.Start(ctx, "reconcile.kind", trace.WithAttributes(
		attribute.String("resource.kind", string(kind)),
	))
	defer span.End()
	start := time.Now()

	var (
		records []audit.Record
		live    []resource.LiveResource
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = r.finder.FindCreationEvents(gctx, window, a)
		return err
	})
	g.Go(func() error {
		var err error
		live, err = a.FetchLiveInventory(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		err = canceledFirst(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		category := resource.Classify(err)
		r.metrics.RecordReconciliation(ctx, string(kind), string(category), time.Since(start))
		r.logger.LogKindFailed(ctx, string(kind), string(category), err)
		return nil, err
	}

	descriptors := r.join(ctx, a, records, live)

	deleted := 0
	for _, d := range descriptors {
		if d.Deleted() {
			deleted++
		}
	}
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("audit.records", len(records)),
		attribute.Int("live.count", len(live)),
		attribute.Int("descriptors", len(descriptors)),
	)
	r.metrics.RecordReconciliation(ctx, string(kind), "success", elapsed)
	r.metrics.RecordDescriptors(ctx, string(kind), len(descriptors)-deleted, deleted)
	r.logger.LogKindReconciled(ctx, string(kind), len(records), len(live), deleted, float64(elapsed.Milliseconds()))

	return descriptors, nil
}

// join indexes live by id and emits one descriptor per identity, in order
// of first appearance. A later record for the same id replaces the earlier.
func (r *Reconciler) join(ctx context.Context, a plugin.Adapter, records []audit.Record, live []resource.LiveResource) []resource.Descriptor {
	byID := make(map[string]*resource.LiveResource, len(live))
	for i := range live {
		byID[live[i].ID] = &live[i]
	}

	index := make(map[string]int)
	descriptors := make([]resource.Descriptor, 0, len(records))
	for _, rec := range records {
		ids, err := plugin.Identities(a, rec.Payload)
		if err != nil {
			r.logger.LogDroppedRecord(ctx, string(a.Kind()), rec.EventID, err)
			r.metrics.RecordDroppedRecord(ctx, string(a.Kind()))
			continue
		}

		for _, id := range ids {
			match := byID[id]
			d := resource.Descriptor{
				ID:           id,
				Name:         a.DisplayName(rec.Payload, id, match),
				CreationTime: rec.EventTime.In(r.location).Format(r.timeFormat),
				Creator:      rec.Payload.Creator(),
				State:        resource.StateDeleted,
			}
			if match != nil {
				d.State = match.Status
			}

			if i, seen := index[id]; seen {
				descriptors[i] = d
				continue
			}
			index[id] = len(descriptors)
			descriptors = append(descriptors, d)
		}
	}
	return descriptors
}

// canceledFirst reports a canceled parent context as cancellation even when
// the failing side surfaced it as a remote error.
func canceledFirst(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, resource.ErrCanceled) {
		return fmt.Errorf("%w: %w", resource.ErrCanceled, err)
	}
	return err
}
