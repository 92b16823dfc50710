package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/storage"
	"ratelimiter/internal/version"

	"github.com/gorilla/mux"
)

// healthCheckTimeout bounds the storage ping made by HealthCheck.
const healthCheckTimeout = 2 * time.Second

// LimitService is the limiter surface the handlers use.
type LimitService interface {
	Evaluate(ctx context.Context, category ratelimit.Category, clientID string) (ratelimit.Result, error)
	Reset(ctx context.Context, category ratelimit.Category, clientID string) error
	History(ctx context.Context, category ratelimit.Category, clientID string) ([]time.Time, error)
	Quotas() *ratelimit.Quotas
}

// Handlers contains HTTP handlers for the rate limiter API
type Handlers struct {
	limiter LimitService
	storage storage.TimestampLog
	info    version.Info
}

// NewHandlers creates a new handlers instance. store is only used for health
// checks and may be nil.
func NewHandlers(limiter LimitService, store storage.TimestampLog, info version.Info) *Handlers {
	return &Handlers{
		limiter: limiter,
		storage: store,
		info:    info,
	}
}

// Decide admits or drops one request for the client
// POST /api/v1/limits/{category}/{client_id}
func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	req, ok := h.limitRequest(w, r)
	if !ok {
		return
	}

	res, err := h.limiter.Evaluate(r.Context(), ratelimit.Category(req.Category), req.ClientID)
	if err != nil {
		h.writeLimiterError(w, r, err)
		return
	}

	ratelimit.SetHeaders(w, res)

	resp := models.DecisionResponse{
		Decision:  res.Decision.String(),
		Category:  req.Category,
		ClientID:  req.ClientID,
		Quota:     res.Quota,
		Estimate:  res.Estimate,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}

	status := http.StatusOK
	if !res.Allowed() {
		status = http.StatusTooManyRequests
		resp.RetryAfterSeconds = ratelimit.RetryAfterSeconds(res)
	}

	h.writeJSONResponse(w, status, resp)
}

// GetHistory lists the stored timestamps for the client without pruning
// GET /api/v1/limits/{category}/{client_id}
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	req, ok := h.limitRequest(w, r)
	if !ok {
		return
	}

	times, err := h.limiter.History(r.Context(), ratelimit.Category(req.Category), req.ClientID)
	if err != nil {
		h.writeLimiterError(w, r, err)
		return
	}
	if times == nil {
		times = []time.Time{}
	}

	h.writeJSONResponse(w, http.StatusOK, models.HistoryResponse{
		Category:   req.Category,
		ClientID:   req.ClientID,
		Timestamps: times,
		Count:      len(times),
	})
}

// ResetLimit clears the client's request log
// DELETE /api/v1/limits/{category}/{client_id}
// Requires the admin token when one is configured
func (h *Handlers) ResetLimit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.limitRequest(w, r)
	if !ok {
		return
	}

	if err := h.limiter.Reset(r.Context(), ratelimit.Category(req.Category), req.ClientID); err != nil {
		h.writeLimiterError(w, r, err)
		return
	}

	slog.Info("Request log cleared",
		"category", req.Category,
		"client_id", req.ClientID,
		"remote_addr", ratelimit.ClientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	)

	w.WriteHeader(http.StatusNoContent)
}

// ListCategories returns the configured quotas
// GET /api/v1/categories
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	quotas := h.limiter.Quotas()

	resp := models.CategoriesResponse{
		Categories: make([]models.CategoryQuota, 0, quotas.Len()),
		Window:     ratelimit.Window.String(),
	}
	for _, c := range quotas.Categories() {
		q, _ := quotas.Quota(c)
		resp.Categories = append(resp.Categories, models.CategoryQuota{Name: string(c), Quota: q})
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// HealthCheck reports service and storage health
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.info.Version
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	status := http.StatusOK
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := h.storage.Ping(ctx); err != nil {
			slog.Warn("Storage health check failed", "error", err)
			response.Status = models.StatusUnhealthy
			response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
			status = http.StatusServiceUnavailable
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}

	response.AddMetric("categories", h.limiter.Quotas().Len())
	response.AddMetric("instance_id", h.info.InstanceID)

	h.writeJSONResponse(w, status, response)
}

// limitRequest reads and validates the path identifiers. On failure the 400
// response has already been written.
func (h *Handlers) limitRequest(w http.ResponseWriter, r *http.Request) (models.LimitRequest, bool) {
	vars := mux.Vars(r)
	req := models.LimitRequest{
		Category: vars["category"],
		ClientID: vars["client_id"],
	}
	req.Normalize()

	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return req, false
	}
	return req, true
}

// writeLimiterError maps a limiter error onto the API error contract. Server
// side failures are logged and answered with a generic message.
func (h *Handlers) writeLimiterError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := ratelimit.ErrorStatus(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("Limiter operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		switch code {
		case models.ErrorCodeStorageUnavailable:
			message = "Request log storage is unavailable"
		case models.ErrorCodeDataCorruption:
			message = "Request log contains an unreadable entry"
		default:
			message = "Internal server error"
		}
	}

	h.writeErrorResponse(w, r, status, code, message)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing else can be sent.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response tagged with the request id
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = RequestIDFromContext(r.Context())
	h.writeJSONResponse(w, statusCode, errorResp)
}
