package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/birthmark/internal/audit"
	"github.com/yairfalse/birthmark/internal/creator"
	"github.com/yairfalse/birthmark/internal/plugin"
	"github.com/yairfalse/birthmark/pkg/resource"
)

type stubAdapter struct {
	kind resource.Kind
}

func (s stubAdapter) Kind() resource.Kind { return s.kind }

func (s stubAdapter) EventName() string { return "Create" }

func (s stubAdapter) IsCreation(audit.Payload) bool { return true }

func (s stubAdapter) ExtractIdentity(audit.Payload) (string, error) { return "", nil }

func (s stubAdapter) DisplayName(_ audit.Payload, id string, _ *resource.LiveResource) string {
	return id
}

func (s stubAdapter) FetchLiveInventory(context.Context) ([]resource.LiveResource, error) {
	return nil, nil
}

type mockReconciler struct {
	ReconcileFunc func(ctx context.Context, a plugin.Adapter, window resource.TimeWindow) ([]resource.Descriptor, error)
}

func (m *mockReconciler) Reconcile(ctx context.Context, a plugin.Adapter, window resource.TimeWindow) ([]resource.Descriptor, error) {
	return m.ReconcileFunc(ctx, a, window)
}

func registry(kinds ...resource.Kind) *plugin.Registry {
	reg := plugin.NewRegistry()
	for _, k := range kinds {
		reg.Register(stubAdapter{kind: k})
	}
	return reg
}

func window() resource.TimeWindow {
	return resource.TimeWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReconcileAll_FailureIsolated(t *testing.T) {
	rec := &mockReconciler{ReconcileFunc: func(ctx context.Context, a plugin.Adapter, w resource.TimeWindow) ([]resource.Descriptor, error) {
		switch a.Kind() {
		case "rds":
			return nil, fmt.Errorf("describe: %w", resource.ErrRemoteUnavailable)
		default:
			return []resource.Descriptor{{ID: string(a.Kind()) + "-1", Creator: "alice"}}, nil
		}
	}}

	o := New(registry("ec2", "rds", "sqs"), rec)
	outcomes := o.ReconcileAll(context.Background(), []resource.Kind{"ec2", "rds", "sqs"}, window())

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Succeeded())
	assert.Equal(t, "ec2-1", outcomes[0].Descriptors[0].ID)

	assert.False(t, outcomes[1].Succeeded())
	assert.Equal(t, resource.Kind("rds"), outcomes[1].Kind)
	assert.Equal(t, resource.CategoryRemoteUnavailable, outcomes[1].Category)
	assert.Nil(t, outcomes[1].Descriptors)

	assert.True(t, outcomes[2].Succeeded())

	groups := creator.Aggregate(Descriptors(outcomes))
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].TotalResources)
	assert.Equal(t, 2, groups[0].ResourceKindCount)
}

func TestReconcileAll_UnknownKind(t *testing.T) {
	rec := &mockReconciler{ReconcileFunc: func(ctx context.Context, a plugin.Adapter, w resource.TimeWindow) ([]resource.Descriptor, error) {
		return nil, nil
	}}

	outcomes := New(registry("ec2"), rec).ReconcileAll(context.Background(), []resource.Kind{"ec2", "nope"}, window())

	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Succeeded())
	assert.Equal(t, resource.CategoryUnknownKind, outcomes[1].Category)
}

func TestReconcileAll_DefaultsToRegisteredKinds(t *testing.T) {
	var calls atomic.Int32
	rec := &mockReconciler{ReconcileFunc: func(ctx context.Context, a plugin.Adapter, w resource.TimeWindow) ([]resource.Descriptor, error) {
		calls.Add(1)
		return nil, nil
	}}

	outcomes := New(registry("s3", "ec2", "kms"), rec).ReconcileAll(context.Background(), nil, window())

	require.Len(t, outcomes, 3)
	assert.Equal(t, resource.Kind("ec2"), outcomes[0].Kind)
	assert.Equal(t, resource.Kind("kms"), outcomes[1].Kind)
	assert.Equal(t, resource.Kind("s3"), outcomes[2].Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReconcileAll_DeduplicatesKinds(t *testing.T) {
	var calls atomic.Int32
	rec := &mockReconciler{ReconcileFunc: func(ctx context.Context, a plugin.Adapter, w resource.TimeWindow) ([]resource.Descriptor, error) {
		calls.Add(1)
		return nil, nil
	}}

	outcomes := New(registry("ec2"), rec).ReconcileAll(context.Background(), []resource.Kind{"ec2", "ec2", ""}, window())

	assert.Len(t, outcomes, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReconcileAll_RunsKindsConcurrently(t *testing.T) {
	const n = 5
	var arrived atomic.Int32
	release := make(chan struct{})
	rec := &mockReconciler{ReconcileFunc: func(ctx context.Context, a plugin.Adapter, w resource.TimeWindow) ([]resource.Descriptor, error) {
		if arrived.Add(1) == n {
			close(release)
		}
		select {
		case <-release:
			return nil, nil
		case <-time.After(5 * time.Second):
			return nil, fmt.Errorf("%s waited alone", a.Kind())
		}
	}}

	kinds := []resource.Kind{"a", "b", "c", "d", "e"}
	outcomes := New(registry(kinds...), rec).ReconcileAll(context.Background(), kinds, window())

	for _, out := range outcomes {
		assert.True(t, out.Succeeded(), out.Message)
	}
}

func TestReconcileAll_CancellationReportedPerKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &mockReconciler{ReconcileFunc: func(ctx context.Context, a plugin.Adapter, w resource.TimeWindow) ([]resource.Descriptor, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", resource.ErrCanceled, ctx.Err())
	}}

	outcomes := New(registry("ec2", "rds"), rec).ReconcileAll(ctx, nil, window())

	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.Equal(t, resource.CategoryCanceled, out.Category)
	}
}
