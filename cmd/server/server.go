package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/internal/logger"
	"github.com/liamcoop/dmn/modelfile"
	"github.com/liamcoop/dmn/multitenantengine"
	"github.com/liamcoop/dmn/recorder"
	"github.com/liamcoop/dmn/rules"
)

const maxBodyBytes = 4 << 20

// ResultQuerier lists recorded evaluations. The SQL recorders implement it.
type ResultQuerier interface {
	Recent(ctx context.Context, modelID string, limit int) ([]*recorder.StoredResult, error)
}

// ServerOptions holds the optional collaborators of a Server
type ServerOptions struct {
	Results        ResultQuerier
	Registry       *prometheus.Registry
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Server struct {
	manager *multitenantengine.Manager
	opts    ServerOptions
	log     *slog.Logger
	router  *chi.Mux
}

func NewServer(manager *multitenantengine.Manager, opts ServerOptions) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{manager: manager, opts: opts, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/api/v1/health", s.handleHealth)
	if s.opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Get("/", s.handleGetTenant)
			r.Delete("/", s.handleDeleteTenant)
			r.Put("/functions", s.handleUpdateFunctions)
			r.Post("/expression", s.handleExpression)

			r.Get("/models", s.handleListModels)
			r.Post("/models", s.handleCreateModel)
			r.Route("/models/{modelId}", func(r chi.Router) {
				r.Get("/", s.handleGetModel)
				r.Put("/", s.handlePutModel)
				r.Delete("/", s.handleDeleteModel)
				r.Post("/evaluate", s.handleEvaluate)
				r.Get("/results", s.handleResults)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request at a level matching its status
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.CountHTTPStatus(status)

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		s.log.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"tenantsLoaded": len(s.manager.ListTenants()),
	})
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"tenants": s.manager.ListTenants(),
	})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.manager.CreateTenant(req.ID, req.Functions); err != nil {
		if errors.Is(err, multitenantengine.ErrTenantExists) {
			respondError(w, http.StatusConflict, "tenant already exists", err)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to create tenant", err)
		return
	}

	te, err := s.manager.GetTenant(req.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load tenant", err)
		return
	}
	respondJSON(w, http.StatusCreated, tenantResponse(te))
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, tenantResponse(te))
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteTenant(chi.URLParam(r, "tenantId")); err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateFunctions swaps the tenant's functions. Models are recompiled
// against the new functions before the swap; on failure the old engine
// stays in place.
func (s *Server) handleUpdateFunctions(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req UpdateFunctionsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.manager.UpdateTenantFunctions(tenantID, req.Functions); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "failed to update functions", err)
		return
	}

	te, err := s.manager.GetTenant(tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load tenant", err)
		return
	}
	respondJSON(w, http.StatusOK, tenantResponse(te))
}

func (s *Server) handleExpression(w http.ResponseWriter, r *http.Request) {
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req ExpressionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Expression == "" {
		respondError(w, http.StatusBadRequest, "expression is required", nil)
		return
	}

	input, err := feel.FromGo(req.Context)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid context", err)
		return
	}
	ctx, ok := input.(*feel.Context)
	if !ok {
		ctx = feel.NewContext()
	}

	v, err := te.Engine.Interpreter().EvaluateExpression(req.Expression, feel.EnvFromContext(ctx))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "evaluation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, ExpressionResponse{Result: v})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}

	models, err := te.Engine.ListModels()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list models", err)
		return
	}

	summaries := make([]ModelSummary, 0, len(models))
	for _, m := range models {
		summaries = append(summaries, newModelSummary(m))
	}
	respondJSON(w, http.StatusOK, map[string]any{"models": summaries})
}

func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}

	model, err := decodeModel(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid model", err)
		return
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}

	if err := te.Engine.AddModel(model); err != nil {
		if errors.Is(err, rules.ErrModelExists) {
			respondError(w, http.StatusConflict, "model already exists", err)
			return
		}
		respondError(w, http.StatusUnprocessableEntity, "failed to add model", err)
		return
	}
	respondJSON(w, http.StatusCreated, model)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}

	model, err := te.Engine.GetModel(chi.URLParam(r, "modelId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "model not found", err)
		return
	}

	if wantsYAML(r) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		if err := modelfile.Encode(w, model); err != nil {
			s.log.Error("failed to encode model", "model_id", model.ID, "error", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, model)
}

// handlePutModel creates or replaces the model at the URL's ID
func (s *Server) handlePutModel(w http.ResponseWriter, r *http.Request) {
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}

	model, err := decodeModel(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid model", err)
		return
	}
	modelID := chi.URLParam(r, "modelId")
	if model.ID != "" && model.ID != modelID {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("model ID %q does not match URL", model.ID), nil)
		return
	}
	model.ID = modelID

	if err := te.Engine.PutModel(model); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "failed to update model", err)
		return
	}
	respondJSON(w, http.StatusOK, model)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}

	if err := te.Engine.DeleteModel(chi.URLParam(r, "modelId")); err != nil {
		respondError(w, http.StatusNotFound, "model not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}
	modelID := chi.URLParam(r, "modelId")

	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	start := time.Now()
	var results []*rules.EvaluationResult
	if req.Decision == "" {
		all, err := te.Engine.EvaluateAll(r.Context(), modelID, req.Facts)
		if err != nil {
			respondEvaluationError(w, err)
			return
		}
		results = all
	} else {
		res, err := te.Engine.Evaluate(r.Context(), modelID, req.Decision, req.Facts)
		if res == nil {
			respondEvaluationError(w, err)
			return
		}
		var ue *rules.UnknownDecisionError
		if errors.As(err, &ue) && ue.RequiredBy == "" {
			respondError(w, http.StatusNotFound, "decision not found", err)
			return
		}
		results = []*rules.EvaluationResult{res}
	}

	resp := EvaluateResponse{
		ModelID:        modelID,
		Results:        make([]DecisionResult, 0, len(results)),
		EvaluationTime: time.Since(start).String(),
	}
	status := http.StatusOK
	for _, res := range results {
		resp.Results = append(resp.Results, newDecisionResult(res))
		if req.Decision != "" && res.Error != nil {
			status = http.StatusUnprocessableEntity
		}
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.opts.Results == nil {
		respondError(w, http.StatusNotImplemented, "the configured recorder does not store results", nil)
		return
	}
	te, ok := s.tenant(w, r)
	if !ok {
		return
	}
	modelID := chi.URLParam(r, "modelId")
	if _, err := te.Engine.GetModel(modelID); err != nil {
		respondError(w, http.StatusNotFound, "model not found", err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	results, err := s.opts.Results.Recent(r.Context(), modelID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query results", err)
		return
	}
	if results == nil {
		results = []*recorder.StoredResult{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// tenant resolves the tenantId URL parameter, writing a 404 when missing
func (s *Server) tenant(w http.ResponseWriter, r *http.Request) (*multitenantengine.TenantEngine, bool) {
	te, err := s.manager.GetTenant(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return nil, false
	}
	return te, true
}

func tenantResponse(te *multitenantengine.TenantEngine) TenantResponse {
	resp := TenantResponse{
		ID:        te.TenantID,
		Functions: te.Functions,
		Models:    []string{},
	}
	if resp.Functions == nil {
		resp.Functions = multitenantengine.Functions{}
	}
	if models, err := te.Engine.ListModels(); err == nil {
		for _, m := range models {
			resp.Models = append(resp.Models, m.ID)
		}
	}
	return resp
}

func respondEvaluationError(w http.ResponseWriter, err error) {
	if errors.Is(err, rules.ErrModelNotFound) {
		respondError(w, http.StatusNotFound, "model not found", err)
		return
	}
	respondError(w, http.StatusBadRequest, "evaluation failed", err)
}

// decodeModel reads a model as JSON, or as YAML when the content type says
// so
func decodeModel(r *http.Request) (*rules.DecisionModel, error) {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if isYAML(r.Header.Get("Content-Type")) {
		return modelfile.Decode(body)
	}

	var m rules.DecisionModel
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if err := m.Normalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}
	return err
}

func isYAML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mt {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return true
	}
	return false
}

func wantsYAML(r *http.Request) bool {
	return isYAML(r.Header.Get("Accept"))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
