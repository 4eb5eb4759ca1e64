// Package orchestrator reconciles many resource kinds independently.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/birthmark/internal/plugin"
	"github.com/yairfalse/birthmark/internal/telemetry"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// KindReconciler reconciles a single kind.
type KindReconciler interface {
	Reconcile(ctx context.Context, a plugin.Adapter, window resource.TimeWindow) ([]resource.Descriptor, error)
}

// Orchestrator runs one reconciliation per requested kind.
type Orchestrator struct {
	registry   *plugin.Registry
	reconciler KindReconciler
	logger     *telemetry.Logger
	tracer     trace.Tracer
}

// New creates an Orchestrator.
func New(registry *plugin.Registry, reconciler KindReconciler) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		reconciler: reconciler,
		logger:     telemetry.NewLogger("orchestrator"),
		tracer:     otel.Tracer("orchestrator"),
	}
}

// ReconcileAll reconciles every kind concurrently and returns one Outcome
// per distinct kind, in request order. An empty kinds list means every
// registered kind. A kind's failure is recorded in its Outcome and never
// affects the others.
func (o *Orchestrator) ReconcileAll(ctx context.Context, kinds []resource.Kind, window resource.TimeWindow) []resource.Outcome {
	kinds = o.resolve(kinds)

	ctx, span := o.tracer.Start(ctx, "orchestrator.reconcile_all", trace.WithAttributes(
		attribute.Int("kinds", len(kinds)),
	))
	defer span.End()

	outcomes := make([]resource.Outcome, len(kinds))
	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = o.reconcileKind(ctx, kind, window)
		}()
	}
	wg.Wait()

	failed := 0
	for _, out := range outcomes {
		if !out.Succeeded() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("kinds.failed", failed))
	o.logger.WithContext(ctx).Info().
		Int("kinds", len(kinds)).
		Int("failed", failed).
		Msg("reconcile all complete")

	return outcomes
}

func (o *Orchestrator) reconcileKind(ctx context.Context, kind resource.Kind, window resource.TimeWindow) resource.Outcome {
	start := time.Now()
	a, err := o.registry.Lookup(kind)
	if err != nil {
		out := resource.NewOutcome(kind, nil, err)
		out.Duration = time.Since(start)
		return out
	}

	descriptors, err := o.reconciler.Reconcile(ctx, a, window)
	out := resource.NewOutcome(kind, descriptors, err)
	out.Duration = time.Since(start)
	return out
}

func (o *Orchestrator) resolve(kinds []resource.Kind) []resource.Kind {
	if len(kinds) == 0 {
		return o.registry.Kinds()
	}
	seen := make(map[resource.Kind]bool, len(kinds))
	out := make([]resource.Kind, 0, len(kinds))
	for _, k := range kinds {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Descriptors maps each successful kind to its descriptors.
func Descriptors(outcomes []resource.Outcome) map[resource.Kind][]resource.Descriptor {
	byKind := make(map[resource.Kind][]resource.Descriptor, len(outcomes))
	for _, out := range outcomes {
		if out.Succeeded() {
			byKind[out.Kind] = out.Descriptors
		}
	}
	return byKind
}
