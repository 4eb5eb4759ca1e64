package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/birthmark/internal/audit"
	"github.com/yairfalse/birthmark/internal/backoff"
	"github.com/yairfalse/birthmark/internal/config"
	"github.com/yairfalse/birthmark/internal/creator"
	"github.com/yairfalse/birthmark/internal/filter"
	"github.com/yairfalse/birthmark/internal/plugin"
	awsplugin "github.com/yairfalse/birthmark/internal/plugin/aws"
	"github.com/yairfalse/birthmark/internal/policy"
	"github.com/yairfalse/birthmark/internal/reconcile"
	"github.com/yairfalse/birthmark/internal/service"
	"github.com/yairfalse/birthmark/internal/telemetry"
)

// app is the wired engine shared by every subcommand.
type app struct {
	cfg      *config.Config
	location *time.Location
	provider *telemetry.Provider
	clients  *awsplugin.Clients
	service  *service.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	provider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}

	clients, err := awsplugin.NewClients(ctx, awsplugin.ClientConfig{
		Region:  cfg.AWS.Region,
		Profile: cfg.AWS.Profile,
	})
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	svc, err := newService(ctx, cfg, loc, clients, provider.Metrics())
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:      cfg,
		location: loc,
		provider: provider,
		clients:  clients,
		service:  svc,
	}, nil
}

// newService wires the engine over clients.
func newService(ctx context.Context, cfg *config.Config, loc *time.Location, clients *awsplugin.Clients, metrics *telemetry.ReconcileMetrics) (*service.Service, error) {
	retry := backoff.New(backoff.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		MaxJitter:   cfg.Retry.MaxJitter,
	}, backoff.WithObserver(metrics.RetryObserver()))

	f, err := filter.New(cfg.Query.ExcludeKinds, cfg.Query.ExcludeCreators)
	if err != nil {
		return nil, err
	}
	registry := plugin.NewRegistry()
	for _, a := range awsplugin.Adapters(clients, awsplugin.Options{
		Retry:         retry,
		Workers:       cfg.Fanout.Workers,
		RatePerSecond: cfg.Fanout.RatePerSecond,
	}) {
		if f.ShouldReconcile(a.Kind()) {
			registry.Register(a)
		}
	}

	finder := audit.NewFinder(clients.CloudTrail, retry, audit.WithMetrics(metrics))
	reconciler := reconcile.New(finder,
		reconcile.WithLocation(loc),
		reconcile.WithTimeFormat(cfg.Display.TimeFormat),
		reconcile.WithMetrics(metrics),
	)

	opts := []service.Option{
		service.WithAggregator(creator.NewAggregator(cfg.Display.NameWidth, cfg.Display.IDWidth)),
		service.WithRegion(cfg.AWS.Region),
		service.WithTimeout(cfg.Query.Timeout),
		service.WithFilter(f),
	}
	if clients.STS != nil {
		sts := clients.STS
		opts = append(opts, service.WithIdentity(func(ctx context.Context) (awsplugin.CallerIdentity, error) {
			return awsplugin.Identity(ctx, sts)
		}))
	}
	if cfg.Delete.Enabled {
		guard, err := policy.NewGuard(ctx, cfg.Delete.PolicyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithDeleteGuard(guard))
	}

	return service.New(registry, reconciler, opts...), nil
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.provider.Shutdown(ctx)
}
