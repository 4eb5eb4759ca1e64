// Package service exposes the reconciliation engine to the CLI and HTTP
// boundary: single-kind queries, multi-kind reports and deletion.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yairfalse/birthmark/internal/creator"
	"github.com/yairfalse/birthmark/internal/filter"
	"github.com/yairfalse/birthmark/internal/orchestrator"
	"github.com/yairfalse/birthmark/internal/plugin"
	awsplugin "github.com/yairfalse/birthmark/internal/plugin/aws"
	"github.com/yairfalse/birthmark/internal/policy"
	"github.com/yairfalse/birthmark/internal/reconcile"
	"github.com/yairfalse/birthmark/internal/telemetry"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// IdentityFunc resolves the account the service acts in.
type IdentityFunc func(ctx context.Context) (awsplugin.CallerIdentity, error)

// KindInfo describes one registered kind.
type KindInfo struct {
	Kind         resource.Kind `json:"kind"`
	EventName    string        `json:"eventName"`
	ResourceType string        `json:"resourceType,omitempty"`
	Deletable    bool          `json:"deletable"`
}

// Report is the result of reconciling several kinds.
type Report struct {
	Window   resource.TimeWindow     `json:"window"`
	Outcomes []resource.Outcome      `json:"outcomes"`
	Creators []resource.CreatorGroup `json:"creators"`
}

// Service wires the Registry, Reconciler, Orchestrator and Aggregator.
type Service struct {
	registry     *plugin.Registry
	reconciler   orchestrator.KindReconciler
	orchestrator *orchestrator.Orchestrator
	aggregator   *creator.Aggregator
	guard        *policy.Guard
	filter       *filter.Filter
	identity     IdentityFunc
	region       string
	timeout      time.Duration
	logger       *telemetry.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAggregator replaces the default-width aggregator.
func WithAggregator(a *creator.Aggregator) Option {
	return func(s *Service) { s.aggregator = a }
}

// WithDeleteGuard enables deletion behind g.
func WithDeleteGuard(g *policy.Guard) Option {
	return func(s *Service) { s.guard = g }
}

// WithFilter drops descriptors whose creator f excludes.
func WithFilter(f *filter.Filter) Option {
	return func(s *Service) { s.filter = f }
}

// WithIdentity sets the caller identity source.
func WithIdentity(fn IdentityFunc) Option {
	return func(s *Service) { s.identity = fn }
}

// WithRegion records the region passed to the delete guard.
func WithRegion(region string) Option {
	return func(s *Service) { s.region = region }
}

// WithTimeout bounds every query. Zero means no bound beyond the caller's.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// New creates a Service.
func New(registry *plugin.Registry, reconciler *reconcile.Reconciler, opts ...Option) *Service {
	s := &Service{
		registry:     registry,
		reconciler:   reconciler,
		orchestrator: orchestrator.New(registry, reconciler),
		aggregator:   creator.NewAggregator(creator.DefaultNameWidth, creator.DefaultIDWidth),
		logger:       telemetry.NewLogger("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// GetResources reconciles one kind.
func (s *Service) GetResources(ctx context.Context, window resource.TimeWindow, kind resource.Kind) ([]resource.Descriptor, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	a, err := s.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	descriptors, err := s.reconciler.Reconcile(ctx, a, window)
	if err != nil {
		return nil, err
	}
	return s.filter.FilterDescriptors(descriptors), nil
}

// Report reconciles kinds (all registered when empty) and ranks creators
// over the kinds that succeeded.
func (s *Service) Report(ctx context.Context, window resource.TimeWindow, kinds []resource.Kind) (Report, error) {
	if err := window.Validate(); err != nil {
		return Report{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	outcomes := s.orchestrator.ReconcileAll(ctx, kinds, window)
	for i := range outcomes {
		if outcomes[i].Err == nil {
			outcomes[i].Descriptors = s.filter.FilterDescriptors(outcomes[i].Descriptors)
		}
	}
	return Report{
		Window:   window,
		Outcomes: outcomes,
		Creators: s.aggregator.Aggregate(orchestrator.Descriptors(outcomes)),
	}, nil
}

// DeleteEnabled reports whether a delete guard is configured.
func (s *Service) DeleteEnabled() bool {
	return s.guard != nil
}

// Delete makes one best-effort delete call. Failures are reported in the
// result; the returned error only carries the classification.
func (s *Service) Delete(ctx context.Context, kind resource.Kind, id string) (resource.DeleteResult, error) {
	log := s.logger.WithContext(ctx)

	if s.guard == nil {
		return failed(resource.ErrDeleteUnsupported, "deletion is disabled")
	}

	decision, err := s.guard.Evaluate(ctx, policy.Request{Kind: string(kind), ID: id, Region: s.region})
	if err != nil {
		return failed(err, "policy evaluation failed")
	}
	if !decision.Allowed {
		log.Warn().Str("kind", string(kind)).Str("id", id).Strs("reasons", decision.Reasons).Msg("delete denied")
		return resource.DeleteResult{
			Success: false,
			Message: "delete denied by policy",
			Details: decision.Reasons,
		}, resource.ErrDeleteDenied
	}

	a, err := s.registry.Lookup(kind)
	if err != nil {
		return failed(err, "unknown resource kind")
	}
	deleter, ok := a.(plugin.Deleter)
	if !ok {
		return failed(fmt.Errorf("%w: %s", resource.ErrDeleteUnsupported, kind), "delete not supported for kind")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	details, err := deleter.Delete(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Str("id", id).Msg("delete failed")
		return resource.DeleteResult{Success: false, Message: err.Error()}, err
	}

	log.Info().Str("kind", string(kind)).Str("id", id).Msg("resource deleted")
	return resource.DeleteResult{
		Success: true,
		Message: fmt.Sprintf("%s %s deleted", kind, id),
		Details: details,
	}, nil
}

func failed(err error, message string) (resource.DeleteResult, error) {
	if !errors.Is(err, resource.ErrDeleteUnsupported) && !errors.Is(err, resource.ErrUnknownKind) {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return resource.DeleteResult{Success: false, Message: message}, err
}

// Kinds lists the registered kinds.
func (s *Service) Kinds() []KindInfo {
	kinds := s.registry.Kinds()
	out := make([]KindInfo, 0, len(kinds))
	for _, k := range kinds {
		a, ok := s.registry.Get(k)
		if !ok {
			continue
		}
		info := KindInfo{Kind: k, EventName: a.EventName()}
		if rt, ok := a.(interface{ ResourceType() string }); ok {
			info.ResourceType = rt.ResourceType()
		}
		_, info.Deletable = a.(plugin.Deleter)
		out = append(out, info)
	}
	return out
}

// Identity returns the caller identity.
func (s *Service) Identity(ctx context.Context) (awsplugin.CallerIdentity, error) {
	if s.identity == nil {
		return awsplugin.CallerIdentity{}, fmt.Errorf("%w: identity source not configured", resource.ErrRemoteUnavailable)
	}
	return s.identity(ctx)
}
