package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/birthmark/internal/audit"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// mockAdapter implements Adapter for testing.
type mockAdapter struct {
	kind resource.Kind
}

func (m *mockAdapter) Kind() resource.Kind             { return m.kind }
func (m *mockAdapter) EventName() string               { return "Create" }
func (m *mockAdapter) IsCreation(p audit.Payload) bool { return p.Succeeded() }
func (m *mockAdapter) ExtractIdentity(p audit.Payload) (string, error) {
	return p.String("id"), nil
}
func (m *mockAdapter) DisplayName(_ audit.Payload, id string, _ *resource.LiveResource) string {
	return id
}
func (m *mockAdapter) FetchLiveInventory(context.Context) ([]resource.LiveResource, error) {
	return nil, nil
}

// batchAdapter also implements BatchIdentityExtractor.
type batchAdapter struct{ mockAdapter }

func (b *batchAdapter) ExtractIdentities(p audit.Payload) ([]string, error) {
	return p.Strings("items", "id"), nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&mockAdapter{kind: "rds"}, &mockAdapter{kind: "ec2"})

	got, ok := r.Get("ec2")
	require.True(t, ok)
	assert.Equal(t, resource.Kind("ec2"), got.Kind())
	assert.Equal(t, []resource.Kind{"ec2", "rds"}, r.Kinds())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(&mockAdapter{kind: "ec2"})
	replacement := &mockAdapter{kind: "ec2"}
	r.Register(replacement)

	got, ok := r.Get("ec2")
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Lookup_Unknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrUnknownKind)
	assert.Empty(t, r.Kinds())
}

func TestIdentities_Single(t *testing.T) {
	ids, err := Identities(&mockAdapter{kind: "rds"}, audit.MustParsePayload(`{"id":"db-1"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"db-1"}, ids)
}

func TestIdentities_Batch(t *testing.T) {
	a := &batchAdapter{mockAdapter{kind: "ec2"}}

	ids, err := Identities(a, audit.MustParsePayload(`{"items":[{"id":"i-1"},{"id":"i-2"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"i-1", "i-2"}, ids)

	_, err = Identities(a, audit.MustParsePayload(`{"items":[]}`))
	assert.ErrorIs(t, err, resource.ErrMalformedPayload)
}
