package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/config"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/recorder"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/registry"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/requestid"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/templatestore"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/validator"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

const (
	maxRequestBytes  = 1 << 20
	defaultListLimit = 20
	maxListLimit     = 100
)

// Orchestrator runs a pipeline. *executor.Executor satisfies it.
type Orchestrator interface {
	Execute(ctx context.Context, req *types.OrchestrateRequest) (*types.PipelineExecution, error)
}

// Pinger checks shared backend connections.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers need. Validator and Pinger are optional.
type Deps struct {
	Orchestrator Orchestrator
	Templates    templatestore.Store
	Workers      registry.WorkerRegistry
	Recorder     recorder.Recorder
	Validator    *validator.Validator
	Pinger       Pinger
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	Deps
	config *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Handlers{Deps: deps, config: cfg, logger: logger}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking the recorder and catalog.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Pinger != nil {
		if err := h.Pinger.Ping(ctx); err != nil {
			h.respondError(w, r, http.StatusServiceUnavailable, "storage unavailable", err)
			return
		}
	}

	info, err := h.Recorder.AdapterInfo(ctx)
	if err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "recorder unhealthy", err)
		return
	}
	if healthy, ok := info["healthy"].(bool); ok && !healthy {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "not_ready",
			"recorder": info,
		})
		return
	}

	templates, err := h.Templates.List(ctx, &templatestore.ListOptions{ActiveOnly: true})
	if err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "template store unhealthy", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"recorder":         info,
		"active_templates": len(templates),
	})
}

// --- Orchestration ---

// OrchestrateResponse is the success envelope for POST /api/v1/orchestrate.
type OrchestrateResponse struct {
	Status   string                   `json:"status"`
	Pipeline *types.PipelineExecution `json:"pipeline"`
}

// Orchestrate handles POST /api/v1/orchestrate. The call blocks until the
// pipeline reaches a terminal status.
func (h *Handlers) Orchestrate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, r, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if h.Validator != nil {
		if res := h.Validator.ValidateRequestJSON(body); !res.Valid {
			h.respondValidation(w, r, res)
			return
		}
	}

	var req types.OrchestrateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	exec, err := h.Orchestrator.Execute(r.Context(), &req)
	if err != nil {
		status := statusForError(err)
		h.respondError(w, r, status, http.StatusText(status), err)
		return
	}

	h.respondJSON(w, http.StatusOK, OrchestrateResponse{Status: "ok", Pipeline: exec})
}

// --- Executions ---

// ListPipelines handles GET /api/v1/pipelines?limit=N
func (h *Handlers) ListPipelines(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))

	list, err := h.Recorder.List(r.Context(), limit)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list pipelines", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"pipelines": list,
		"count":     len(list),
	})
}

// GetPipeline handles GET /api/v1/pipelines/{id}
func (h *Handlers) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	exec, err := h.Recorder.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recorder.ErrExecutionNotFound) {
			h.respondError(w, r, http.StatusNotFound, "pipeline not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get pipeline", err)
		return
	}

	h.respondJSON(w, http.StatusOK, exec)
}

// --- Catalog ---

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.Templates.List(r.Context(), &templatestore.ListOptions{ActiveOnly: true})
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list templates", err)
		return
	}

	summaries := make([]types.TemplateSummary, 0, len(list))
	for _, t := range list {
		summaries = append(summaries, t.Summary())
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"templates": summaries,
		"count":     len(summaries),
	})
}

// GetTemplate handles GET /api/v1/templates/{name}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	t, err := h.Templates.Get(r.Context(), name)
	if err == nil && !t.IsActive {
		err = templatestore.ErrTemplateNotFound
	}
	if err != nil {
		if errors.Is(err, templatestore.ErrTemplateNotFound) {
			h.respondError(w, r, http.StatusNotFound, "template not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get template", err)
		return
	}

	t.Steps = t.SortedSteps()
	h.respondJSON(w, http.StatusOK, t)
}

// ListWorkers handles GET /api/v1/workers
func (h *Handlers) ListWorkers(w http.ResponseWriter, r *http.Request) {
	opts := &registry.ListOptions{
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}

	list, err := h.Workers.List(r.Context(), opts)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list workers", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"workers": list,
		"count":   len(list),
	})
}

// --- Helper Methods ---

func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	reqID := requestid.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, "error", err, "status", status, "request_id", reqID)
	} else {
		h.logger.Warn(message, "error", err, "status", status, "request_id", reqID)
	}

	resp := ErrorResponse{
		Error:     message,
		Code:      HTTPStatusToErrorCode(status),
		RequestID: reqID,
	}
	if err != nil {
		resp.Details = err.Error()
	}
	h.respondJSON(w, status, resp)
}

func (h *Handlers) respondValidation(w http.ResponseWriter, r *http.Request, res *validator.ValidationResult) {
	h.logger.Warn("request validation failed",
		"errors", len(res.Errors),
		"request_id", requestid.FromContext(r.Context()),
	)
	h.respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:     "invalid request",
		Code:      ErrCodeValidation,
		Details:   res.Errors,
		RequestID: requestid.FromContext(r.Context()),
	})
}
