package assessments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/pkg/handlers"
	"github.com/arbiterlabs/arbiter/pkg/pagination"
	"github.com/arbiterlabs/arbiter/pkg/ratelimit"
	"github.com/arbiterlabs/arbiter/pkg/routes"
)

var errRateLimited = errors.New("submission rate limit exceeded for tenant")

// Handler provides HTTP endpoints for the assessment lifecycle.
type Handler struct {
	sys        System
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "assessments"),
		pagination: pagination,
	}
}

// WithLimiter enables per-tenant submission rate limiting.
func (h *Handler) WithLimiter(limiter *ratelimit.Limiter) *Handler {
	h.limiter = limiter
	return h
}

// Routes returns the route group definition for assessment endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/assessments",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/{id}", Handler: h.Fetch},
			{Method: "GET", Pattern: "/{id}/status", Handler: h.Status},
			{Method: "GET", Pattern: "/{id}/results", Handler: h.Results},
			{Method: "POST", Pattern: "/{id}/rerun", Handler: h.Rerun},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
		},
	}
}

// Create submits a new assessment for asynchronous processing.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd CreateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if h.limiter != nil && cmd.TenantID != "" && !h.limiter.TryAcquire(cmd.TenantID) {
		handlers.RespondError(w, h.logger, http.StatusTooManyRequests, errRateLimited)
		return
	}

	assessment, err := h.sys.Create(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, assessment)
}

// List returns a paginated list of assessments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), page)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search returns a filtered, paginated list of assessments.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter Filter                 `json:"filter"`
		Page   pagination.PageRequest `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.Search(r.Context(), body.Filter, body.Page)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Fetch returns a single assessment with its documents.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	assessment, err := h.sys.Fetch(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, assessment)
}

// Status returns the lifecycle state and advisory progress.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	status, err := h.sys.Status(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, status)
}

// Results returns per-criterion verdicts for a completed assessment.
// Responds 409 until the assessment reaches completed.
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	results, err := h.sys.Results(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, results)
}

// Rerun creates a new assessment from a terminal one, optionally replacing
// documents per bucket. The prior assessment is untouched.
func (h *Handler) Rerun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var cmd RerunCommand
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
			return
		}
	}

	assessment, err := h.sys.Rerun(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, assessment)
}

// Cancel requests cancellation of a pending or processing assessment.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.sys.Cancel(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid assessment id"))
		return uuid.Nil, false
	}
	return id, true
}
