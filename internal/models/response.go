// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Machine-readable error codes next to human-readable messages
// - RFC3339 timestamps
package models

import (
	"time"
)

// Decision strings used on the wire.
const (
	DecisionAdmit = "admit"
	DecisionDrop  = "drop"
)

// DecisionResponse reports the outcome of one admission check.
//
// Client Usage:
// - Check Decision (or the HTTP status: 200 admit, 429 drop)
// - Remaining is the number of further requests that would currently be admitted
// - RetryAfterSeconds is only set on drop
type DecisionResponse struct {
	Decision          string    `json:"decision"`                      // admit or drop
	Category          string    `json:"category"`                      // Request category evaluated
	ClientID          string    `json:"client_id"`                     // Client the decision applies to
	Quota             int       `json:"quota"`                         // Configured per-minute quota
	Estimate          float64   `json:"estimate"`                      // Weighted occupancy before this request
	Remaining         int       `json:"remaining"`                     // Requests left at the current estimate
	ResetAt           time.Time `json:"reset_at"`                      // When the oldest retained entry leaves the window
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"` // Suggested wait when dropped
}

// HistoryResponse lists the retained request timestamps of one client.
type HistoryResponse struct {
	Category   string      `json:"category"`
	ClientID   string      `json:"client_id"`
	Timestamps []time.Time `json:"timestamps"`
	Count      int         `json:"count"`
}

// CategoriesResponse lists the configured quotas.
type CategoriesResponse struct {
	Categories []CategoryQuota `json:"categories"`
	Window     string          `json:"window"`
}

type CategoryQuota struct {
	Name  string `json:"name"`
	Quota int    `json:"quota"`
}

// ErrorResponse provides consistent error information across all endpoints.
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeUnknownCategory    = "UNKNOWN_CATEGORY"    // 404: No quota configured for category
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeDataCorruption     = "DATA_CORRUPTION"     // 500: Stored entry is not a timestamp
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: Authentication required
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429: Request dropped
	ErrorCodeStorageUnavailable = "STORAGE_UNAVAILABLE" // 503: Timestamp log backend failed
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
