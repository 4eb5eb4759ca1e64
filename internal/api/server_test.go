package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsplugin "github.com/yairfalse/birthmark/internal/plugin/aws"
	"github.com/yairfalse/birthmark/internal/service"
	"github.com/yairfalse/birthmark/pkg/resource"
)

type mockBackend struct {
	GetResourcesFunc func(ctx context.Context, window resource.TimeWindow, kind resource.Kind) ([]resource.Descriptor, error)
	ReportFunc       func(ctx context.Context, window resource.TimeWindow, kinds []resource.Kind) (service.Report, error)
	DeleteFunc       func(ctx context.Context, kind resource.Kind, id string) (resource.DeleteResult, error)
	deleteEnabled    bool
}

func (m *mockBackend) GetResources(ctx context.Context, window resource.TimeWindow, kind resource.Kind) ([]resource.Descriptor, error) {
	return m.GetResourcesFunc(ctx, window, kind)
}

func (m *mockBackend) Report(ctx context.Context, window resource.TimeWindow, kinds []resource.Kind) (service.Report, error) {
	return m.ReportFunc(ctx, window, kinds)
}

func (m *mockBackend) DeleteEnabled() bool { return m.deleteEnabled }

func (m *mockBackend) Delete(ctx context.Context, kind resource.Kind, id string) (resource.DeleteResult, error) {
	return m.DeleteFunc(ctx, kind, id)
}

func (m *mockBackend) Kinds() []service.KindInfo {
	return []service.KindInfo{{Kind: "ec2", EventName: "RunInstances", Deletable: true}}
}

func (m *mockBackend) Identity(ctx context.Context) (awsplugin.CallerIdentity, error) {
	return awsplugin.CallerIdentity{Account: "123456789012"}, nil
}

func serve(t *testing.T, b Backend, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	NewServer(b, nil, nil).Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetResources(t *testing.T) {
	var gotKind resource.Kind
	b := &mockBackend{GetResourcesFunc: func(ctx context.Context, w resource.TimeWindow, kind resource.Kind) ([]resource.Descriptor, error) {
		gotKind = kind
		return []resource.Descriptor{{ID: "i-1", Name: "web", State: "running", Creator: "alice", CreationTime: "2024-03-01 09:00:00"}}, nil
	}}

	rec := serve(t, b, http.MethodGet, "/api/resources?service=ec2&startDate=2024-03-01&endDate=2024-03-31", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resource.Kind("ec2"), gotKind)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var body []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "i-1", body[0]["id"])
	assert.Equal(t, "2024-03-01 09:00:00", body[0]["creationTime"])
}

func TestGetResources_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		cat    resource.Category
	}{
		{"unknown kind", fmt.Errorf("%w: x", resource.ErrUnknownKind), http.StatusBadRequest, resource.CategoryUnknownKind},
		{"remote", fmt.Errorf("%w: boom", resource.ErrRemoteUnavailable), http.StatusBadGateway, resource.CategoryRemoteUnavailable},
		{"throttled", fmt.Errorf("%w: slow down", resource.ErrRateLimited), http.StatusBadGateway, resource.CategoryRateLimited},
		{"canceled", fmt.Errorf("%w: deadline", resource.ErrCanceled), http.StatusGatewayTimeout, resource.CategoryCanceled},
		{"internal", fmt.Errorf("bug"), http.StatusInternalServerError, resource.CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockBackend{GetResourcesFunc: func(ctx context.Context, w resource.TimeWindow, kind resource.Kind) ([]resource.Descriptor, error) {
				return nil, tt.err
			}}
			rec := serve(t, b, http.MethodGet, "/api/resources?service=ec2&startDate=2024-03-01&endDate=2024-03-31", "")

			assert.Equal(t, tt.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.cat, body.Category)
		})
	}
}

func TestGetResources_InvalidWindow(t *testing.T) {
	called := false
	b := &mockBackend{GetResourcesFunc: func(ctx context.Context, w resource.TimeWindow, kind resource.Kind) ([]resource.Descriptor, error) {
		called = true
		return nil, nil
	}}

	rec := serve(t, b, http.MethodGet, "/api/resources?service=ec2&startDate=2024-03-31&endDate=2024-03-01", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestGetResources_EmptyIsArray(t *testing.T) {
	b := &mockBackend{GetResourcesFunc: func(ctx context.Context, w resource.TimeWindow, kind resource.Kind) ([]resource.Descriptor, error) {
		return nil, nil
	}}

	rec := serve(t, b, http.MethodGet, "/api/resources?service=ec2&startDate=2024-03-01&endDate=2024-03-31", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestReport(t *testing.T) {
	var gotKinds []resource.Kind
	b := &mockBackend{ReportFunc: func(ctx context.Context, w resource.TimeWindow, kinds []resource.Kind) (service.Report, error) {
		gotKinds = kinds
		return service.Report{
			Window: w,
			Outcomes: []resource.Outcome{
				resource.NewOutcome("ec2", []resource.Descriptor{{ID: "i-1"}}, nil),
				resource.NewOutcome("rds", nil, fmt.Errorf("%w: x", resource.ErrRemoteUnavailable)),
			},
			Creators: []resource.CreatorGroup{{Creator: "alice", TotalResources: 1, ResourceKindCount: 1}},
		}, nil
	}}

	rec := serve(t, b, http.MethodGet, "/api/report?startDate=2024-03-01&endDate=2024-03-31&kinds=ec2,+rds,", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []resource.Kind{"ec2", "rds"}, gotKinds)

	var body struct {
		Outcomes []struct {
			Kind          string `json:"kind"`
			ErrorCategory string `json:"errorCategory"`
		} `json:"outcomes"`
		Creators []resource.CreatorGroup `json:"creators"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Outcomes, 2)
	assert.Equal(t, "remote_unavailable", body.Outcomes[1].ErrorCategory)
	assert.Equal(t, "alice", body.Creators[0].Creator)
}

func TestDelete(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec := serve(t, &mockBackend{}, http.MethodPost, "/api/resources/delete", `{"resourceType":"ec2","resourceId":"i-1"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		b := &mockBackend{deleteEnabled: true, DeleteFunc: func(ctx context.Context, kind resource.Kind, id string) (resource.DeleteResult, error) {
			assert.Equal(t, resource.Kind("ec2"), kind)
			assert.Equal(t, "i-1", id)
			return resource.DeleteResult{Success: true, Message: "ec2 i-1 deleted"}, nil
		}}
		rec := serve(t, b, http.MethodPost, "/api/resources/delete", `{"resourceType":"ec2","resourceId":"i-1"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var result resource.DeleteResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Success)
	})

	t.Run("denied", func(t *testing.T) {
		b := &mockBackend{deleteEnabled: true, DeleteFunc: func(ctx context.Context, kind resource.Kind, id string) (resource.DeleteResult, error) {
			return resource.DeleteResult{Success: false, Message: "delete denied by policy"}, resource.ErrDeleteDenied
		}}
		rec := serve(t, b, http.MethodPost, "/api/resources/delete", `{"resourceType":"ec2","resourceId":""}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		b := &mockBackend{deleteEnabled: true}
		rec := serve(t, b, http.MethodPost, "/api/resources/delete", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestKindsIdentityHealth(t *testing.T) {
	b := &mockBackend{}

	rec := serve(t, b, http.MethodGet, "/api/kinds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"RunInstances"`)

	rec = serve(t, b, http.MethodGet, "/api/identity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "123456789012")

	rec = serve(t, b, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()

	NewServer(&mockBackend{}, nil, nil).Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("birthmark_reconciliations_total 1\n"))
	})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	NewServer(&mockBackend{}, nil, metrics).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "birthmark_reconciliations_total")
}
