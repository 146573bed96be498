package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vaibhav2408/config-manager/internal/service"
	"github.com/vaibhav2408/config-manager/internal/store"
)

// maxBodyBytes bounds the size of add and update request bodies.
const maxBodyBytes = 1 << 20

// ConfigService is the business layer the HTTP handlers call into.
type ConfigService interface {
	AddServiceConfig(ctx context.Context, serviceID, configName string, p service.Payload) (bool, error)
	GetAllServiceConfig(ctx context.Context, serviceID string) ([]store.Record, error)
	GetServiceConfigByName(ctx context.Context, serviceID, configName string) ([]store.Record, error)
	UpdateServiceConfig(ctx context.Context, serviceID, configName string, cfg map[string]any) (bool, error)
	DeleteServiceConfig(ctx context.Context, serviceID, configName string) (bool, error)
}

// StatusProvider is an interface for getting change detector status.
type StatusProvider interface {
	Status() map[string]any
}

// MetricsProvider is an interface that renders metrics in text format.
type MetricsProvider interface {
	MetricsText() string
}

// Authorizer decides whether a request may reach the config routes. A
// non-nil error rejects the request with 403.
type Authorizer func(r *http.Request) error

// Options holds the optional parts of a Server.
type Options struct {
	// BasePath is prepended to every config route, e.g. "/adobe/v1".
	BasePath   string
	Authorizer Authorizer
	Status     StatusProvider
	Metrics    MetricsProvider
}

// Server exposes the config CRUD API together with health, status and
// metrics endpoints.
type Server struct {
	addr     string
	logger   *slog.Logger
	svc      ConfigService
	opts     Options
	validate *validator.Validate
	handler  http.Handler
	httpSrv  *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, logger *slog.Logger, svc ConfigService, opts Options) *Server {
	s := &Server{
		addr:     addr,
		logger:   logger,
		svc:      svc,
		opts:     opts,
		validate: validator.New(),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	base := s.opts.BasePath
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+base+"/{service_id}/configs/{config_name}", s.authorized(s.handleAddConfig))
	mux.HandleFunc("GET "+base+"/{service_id}/configs", s.authorized(s.handleGetAllConfigs))
	mux.HandleFunc("GET "+base+"/{service_id}/configs/{config_name}", s.authorized(s.handleGetConfig))
	mux.HandleFunc("PUT "+base+"/{service_id}/configs/{config_name}", s.authorized(s.handleUpdateConfig))
	mux.HandleFunc("DELETE "+base+"/{service_id}/configs/{config_name}", s.authorized(s.handleDeleteConfig))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.opts.Status != nil {
		mux.HandleFunc("GET /status", s.handleStatus)
	}
	if s.opts.Metrics != nil {
		mux.HandleFunc("GET /metrics", s.handleMetrics)
	}

	return s.withRequestLogging(mux)
}

// Handler returns the fully wired HTTP handler. The Lambda entrypoint
// serves requests through it without a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in a goroutine. A bind failure
// is returned to the caller. Call Stop() to shut it down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", ln.Addr().String(), "base_path", s.opts.BasePath)

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info("stopping API server")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleAddConfig(w http.ResponseWriter, r *http.Request) {
	serviceID, configName, ok := s.pathKeys(w, r, true)
	if !ok {
		return
	}
	payload, ok := s.decodePayload(w, r)
	if !ok {
		return
	}

	added, err := s.svc.AddServiceConfig(r.Context(), serviceID, configName, payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !added {
		s.logger.Info("could not create the config for the service",
			"service_id", serviceID, "config_name", configName)
		s.writeJSON(w, http.StatusBadRequest, struct{}{})
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]bool{"status": true})
}

func (s *Server) handleGetAllConfigs(w http.ResponseWriter, r *http.Request) {
	serviceID, _, ok := s.pathKeys(w, r, false)
	if !ok {
		return
	}

	records, err := s.svc.GetAllServiceConfig(r.Context(), serviceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(records) == 0 {
		s.logger.Info("no config entries found for the given service", "service_id", serviceID)
		s.writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	serviceID, configName, ok := s.pathKeys(w, r, true)
	if !ok {
		return
	}

	records, err := s.svc.GetServiceConfigByName(r.Context(), serviceID, configName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(records) == 0 {
		s.logger.Info("no config entries found for the given service",
			"service_id", serviceID, "config_name", configName)
		s.writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, records[0])
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	serviceID, configName, ok := s.pathKeys(w, r, true)
	if !ok {
		return
	}
	payload, ok := s.decodePayload(w, r)
	if !ok {
		return
	}

	updated, err := s.svc.UpdateServiceConfig(r.Context(), serviceID, configName, payload.Config)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !updated {
		s.logger.Info("could not update the config for the service",
			"service_id", serviceID, "config_name", configName)
		s.writeJSON(w, http.StatusBadRequest, struct{}{})
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]bool{"status": true})
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	serviceID, configName, ok := s.pathKeys(w, r, true)
	if !ok {
		return
	}

	if _, err := s.svc.DeleteServiceConfig(r.Context(), serviceID, configName); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz is a readiness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.opts.Status.Status())
}

// handleMetrics returns Prometheus/OpenMetrics text exposition.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if _, err := w.Write([]byte(s.opts.Metrics.MetricsText())); err != nil {
		s.logger.Error("failed to write metrics response", "error", err)
	}
}

// pathKeys extracts and validates the service id and, when withName is set,
// the config name. On failure it writes a 400 and returns ok=false.
func (s *Server) pathKeys(w http.ResponseWriter, r *http.Request, withName bool) (serviceID, configName string, ok bool) {
	serviceID = r.PathValue("service_id")
	if err := s.validate.Var(serviceID, "required,max=1024"); err != nil {
		s.logger.Info("invalid service id", "error", err)
		s.writeJSON(w, http.StatusBadRequest, struct{}{})
		return "", "", false
	}
	if withName {
		configName = r.PathValue("config_name")
		if err := s.validate.Var(configName, "required,max=1024"); err != nil {
			s.logger.Info("invalid config name", "service_id", serviceID, "error", err)
			s.writeJSON(w, http.StatusBadRequest, struct{}{})
			return "", "", false
		}
	}
	return serviceID, configName, true
}

func (s *Server) decodePayload(w http.ResponseWriter, r *http.Request) (service.Payload, bool) {
	var p service.Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		s.logger.Info("invalid request body", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusBadRequest, struct{}{})
		return service.Payload{}, false
	}
	return p, true
}

// writeError maps store error kinds to HTTP responses. Backend and
// connectivity failures never leak their cause to the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch store.KindOf(err) {
	case store.KindNotFound:
		s.writeJSON(w, http.StatusNotFound, struct{}{})
	case store.KindInvalid:
		s.writeJSON(w, http.StatusBadRequest, struct{}{})
	case store.KindConflict:
		s.writeJSON(w, http.StatusConflict, struct{}{})
	case store.KindNotSupported:
		s.writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not supported"})
	default:
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": store.InternalErrorMessage})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}
