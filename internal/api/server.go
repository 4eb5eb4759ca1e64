// Package api serves the reconciliation engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	awsplugin "github.com/yairfalse/birthmark/internal/plugin/aws"
	"github.com/yairfalse/birthmark/internal/service"
	"github.com/yairfalse/birthmark/internal/telemetry"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// RequestIDHeader carries the per-request id.
const RequestIDHeader = "X-Request-ID"

// Backend is the engine surface the HTTP layer exposes.
type Backend interface {
	GetResources(ctx context.Context, window resource.TimeWindow, kind resource.Kind) ([]resource.Descriptor, error)
	Report(ctx context.Context, window resource.TimeWindow, kinds []resource.Kind) (service.Report, error)
	DeleteEnabled() bool
	Delete(ctx context.Context, kind resource.Kind, id string) (resource.DeleteResult, error)
	Kinds() []service.KindInfo
	Identity(ctx context.Context) (awsplugin.CallerIdentity, error)
}

// Server holds the HTTP handlers.
type Server struct {
	backend  Backend
	location *time.Location
	metrics  http.Handler
	logger   *telemetry.Logger
}

// NewServer creates a Server. Date-only query bounds are read in loc.
// metrics may be nil.
func NewServer(backend Backend, loc *time.Location, metrics http.Handler) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		backend:  backend,
		location: loc,
		metrics:  metrics,
		logger:   telemetry.NewLogger("api"),
	}
}

// Handler returns the routed handler with recovery, CORS and request ids.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/resources", s.getResources).Methods(http.MethodGet)
	api.HandleFunc("/resources/delete", s.deleteResource).Methods(http.MethodPost)
	api.HandleFunc("/report", s.report).Methods(http.MethodGet)
	api.HandleFunc("/kinds", s.kinds).Methods(http.MethodGet)
	api.HandleFunc("/identity", s.identity).Methods(http.MethodGet)

	var h http.Handler = r
	h = s.requestID(h)
	h = handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
	)(h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	return h
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithContext(r.Context()).Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

type errorResponse struct {
	Error    string            `json:"error"`
	Category resource.Category `json:"category"`
}

// statusFor maps an error category onto an HTTP status.
func statusFor(c resource.Category) int {
	switch c {
	case resource.CategoryInvalidWindow, resource.CategoryUnknownKind, resource.CategoryDeleteUnsupported:
		return http.StatusBadRequest
	case resource.CategoryDeleteDenied:
		return http.StatusForbidden
	case resource.CategoryCanceled:
		return http.StatusGatewayTimeout
	case resource.CategoryRateLimited, resource.CategoryRemoteUnavailable, resource.CategoryMalformedPayload:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	c := resource.Classify(err)
	s.writeJSON(w, statusFor(c), errorResponse{Error: err.Error(), Category: c})
}

func (s *Server) window(r *http.Request) (resource.TimeWindow, error) {
	q := r.URL.Query()
	return service.ParseWindow(q.Get("startDate"), q.Get("endDate"), s.location)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getResources(w http.ResponseWriter, r *http.Request) {
	window, err := s.window(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	kind := resource.Kind(r.URL.Query().Get("service"))

	descriptors, err := s.backend.GetResources(r.Context(), window, kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if descriptors == nil {
		descriptors = []resource.Descriptor{}
	}
	s.writeJSON(w, http.StatusOK, descriptors)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	window, err := s.window(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var kinds []resource.Kind
	for _, k := range strings.Split(r.URL.Query().Get("kinds"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, resource.Kind(k))
		}
	}

	report, err := s.backend.Report(r.Context(), window, kinds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type deleteRequest struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	if !s.backend.DeleteEnabled() {
		http.NotFound(w, r)
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, resource.DeleteResult{Success: false, Message: "invalid request body"})
		return
	}

	result, err := s.backend.Delete(r.Context(), resource.Kind(req.ResourceType), req.ResourceID)
	status := http.StatusOK
	if err != nil {
		status = statusFor(resource.Classify(err))
	}
	s.writeJSON(w, status, result)
}

func (s *Server) kinds(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Kinds())
}

func (s *Server) identity(w http.ResponseWriter, r *http.Request) {
	id, err := s.backend.Identity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, id)
}
