package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yairfalse/birthmark/internal/audit"
	"github.com/yairfalse/birthmark/internal/backoff"
	"github.com/yairfalse/birthmark/internal/telemetry"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// eventSpec describes which CloudTrail events create a kind and where the
// created resource's id and name live in the event document.
type eventSpec struct {
	kind         resource.Kind
	eventName    string
	eventSource  string
	resourceType string
	// First non-empty path wins.
	identityPaths []string
	namePaths     []string
}

func (s eventSpec) Kind() resource.Kind { return s.kind }

func (s eventSpec) EventName() string { return s.eventName }

// ResourceType returns the CloudFormation-style type (e.g. "AWS::EC2::Instance").
func (s eventSpec) ResourceType() string { return s.resourceType }

// IsCreation accepts successful calls of the right name from the right
// service that name a resource.
func (s eventSpec) IsCreation(p audit.Payload) bool {
	return p.EventName() == s.eventName &&
		p.EventSource() == s.eventSource &&
		p.Succeeded() &&
		firstString(p, s.identityPaths) != ""
}

func (s eventSpec) ExtractIdentity(p audit.Payload) (string, error) {
	id := firstString(p, s.identityPaths)
	if id == "" {
		return "", fmt.Errorf("%w: %s event has no %s", resource.ErrMalformedPayload, s.kind, strings.Join(s.identityPaths, " or "))
	}
	return id, nil
}

// DisplayName prefers the live name, then a name recorded in the event, then id.
func (s eventSpec) DisplayName(p audit.Payload, id string, live *resource.LiveResource) string {
	if live != nil && live.Name != "" {
		return live.Name
	}
	if name := firstString(p, s.namePaths); name != "" {
		return name
	}
	return id
}

func firstString(p audit.Payload, paths []string) string {
	for _, path := range paths {
		if s := p.String(path); s != "" {
			return s
		}
	}
	return ""
}

// runtime is shared by every adapter built from one set of Options.
type runtime struct {
	retry   *backoff.Controller
	workers int
	limiter *rate.Limiter
	logger  *telemetry.Logger
	tracer  trace.Tracer
}

func newRuntime(opts Options) *runtime {
	rt := &runtime{
		retry:   opts.Retry,
		workers: opts.Workers,
		logger:  telemetry.NewLogger("plugin.aws"),
		tracer:  otel.Tracer("plugin.aws"),
	}
	if rt.retry == nil {
		rt.retry = backoff.New(backoff.DefaultPolicy())
	}
	if rt.workers < 1 {
		rt.workers = DefaultWorkers
	}
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		rt.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return rt
}

// call runs one remote call under the Backoff Controller.
func call[T any](ctx context.Context, rt *runtime, operation string, fn func(context.Context) (T, error)) (T, error) {
	return backoff.Do(ctx, rt.retry, operation, fn)
}

// fanOut applies describe to every item with at most rt.workers calls in
// flight, paced by the optional rate limiter. Results keep input order;
// items for which describe reports ok=false are omitted. The first error
// cancels the remaining calls.
func fanOut[In, Out any](ctx context.Context, rt *runtime, items []In, describe func(context.Context, In) (Out, bool, error)) ([]Out, error) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]Out, len(items))
	found := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rt.workers)
	for i, item := range items {
		g.Go(func() error {
			if rt.limiter != nil {
				if err := rt.limiter.Wait(gctx); err != nil {
					return fmt.Errorf("%w: %w", resource.ErrCanceled, err)
				}
			}
			out, ok, err := describe(gctx, item)
			if err != nil {
				return err
			}
			results[i], found[i] = out, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Out, 0, len(items))
	for i, ok := range found {
		if ok {
			out = append(out, results[i])
		}
	}
	return out, nil
}

// isNotFound reports a resource that vanished between list and describe.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return strings.Contains(code, "NotFound") || code == "NoSuchEntity"
}

// adapter binds an eventSpec to a live-inventory lister.
type adapter struct {
	eventSpec
	rt   *runtime
	list func(context.Context) ([]resource.LiveResource, error)
}

func (a *adapter) FetchLiveInventory(ctx context.Context) ([]resource.LiveResource, error) {
	kindAttr := attribute.String("resource.kind", string(a.kind))
	ctx, span := a.rt.tracer.Start(ctx, "plugin.fetch_live", trace.WithAttributes(kindAttr))
	defer span.End()
	a.rt.logger.LogSpanStart(ctx, "plugin.fetch_live", kindAttr)

	live, err := a.list(ctx)
	if err != nil {
		err = fmt.Errorf("fetch live %s: %w", a.kind, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.rt.logger.LogSpanEnd(ctx, "plugin.fetch_live", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("live.count", len(live)))
	a.rt.logger.LogSpanEnd(ctx, "plugin.fetch_live", nil)
	return live, nil
}

// deletingAdapter adds best-effort deletion to an adapter.
type deletingAdapter struct {
	*adapter
	del func(ctx context.Context, id string) (any, error)
}

func (d *deletingAdapter) Delete(ctx context.Context, id string) (any, error) {
	return d.del(ctx, id)
}

func newLive(id, name, status string) resource.LiveResource {
	return resource.LiveResource{ID: id, Name: name, Status: status, Attrs: make(map[string]string)}
}
