package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratelimiter/internal/models"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestMiddleware_AllowedRequest(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, map[string]int{"API": 10}, at(12, 0, 10))

	handler := Middleware(limiter, "API", nil)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(at(12, 1, 10).Unix(), 10), rr.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_DeniedRequest(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, map[string]int{"API": 2}, at(12, 0, 10))

	handler := Middleware(limiter, "API", nil)(http.HandlerFunc(okHandler))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	// Third request should be denied
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "51", rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "Rate limit exceeded", errResp.Message)
	assert.Equal(t, models.ErrorCodeRateLimitExceeded, errResp.Code)
}

func TestMiddleware_KeysByClientHeader(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, map[string]int{"API": 1}, at(12, 0, 10))

	handler := Middleware(limiter, "API", HeaderKeyFunc("X-Client-ID"))(http.HandlerFunc(okHandler))

	send := func(clientID string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		if clientID != "" {
			req.Header.Set("X-Client-ID", clientID)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	// Same IP, different client id
	assert.Equal(t, http.StatusOK, send("bob"))
	// No header falls back to the IP
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}

type stubEvaluator struct {
	err error
}

func (s stubEvaluator) Evaluate(ctx context.Context, category Category, clientID string) (Result, error) {
	return Result{}, s.err
}

func TestMiddleware_LimiterErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "store failure",
			err:        &StoreError{Op: "read", Key: "k", Err: errors.New("down")},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   models.ErrorCodeStorageUnavailable,
		},
		{
			name:       "corrupt log",
			err:        &DataCorruptionError{Key: "k", Value: "x", Err: errors.New("bad")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   models.ErrorCodeDataCorruption,
		},
		{
			name:       "unconfigured category",
			err:        &ConfigurationError{Category: "API"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   models.ErrorCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
			handler := Middleware(stubEvaluator{err: tt.err}, "API", nil)(next)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

			assert.False(t, called)
			assert.Equal(t, tt.wantStatus, rr.Code)

			var errResp models.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
			assert.Equal(t, tt.wantCode, errResp.Code)
		})
	}
}

func TestErrorStatus(t *testing.T) {
	status, code := ErrorStatus(&ConfigurationError{Category: "X"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, models.ErrorCodeUnknownCategory, code)

	status, code = ErrorStatus(ErrEmptyClient)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.ErrorCodeInvalidRequest, code)

	status, _ = ErrorStatus(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(Result{}))
	assert.Equal(t, 51, RetryAfterSeconds(Result{RetryAfter: 51 * time.Second}))
	assert.Equal(t, 3, RetryAfterSeconds(Result{RetryAfter: 2100 * time.Millisecond}))
}

func TestSetHeaders(t *testing.T) {
	reset := time.Date(2024, 1, 1, 12, 1, 10, 0, time.UTC)

	rec := httptest.NewRecorder()
	SetHeaders(rec, Result{Decision: Admit, Quota: 5, Remaining: 3, ResetAt: reset})
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(reset.Unix(), 10), rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	SetHeaders(rec, Result{Decision: Drop, Quota: 5, ResetAt: reset, RetryAfter: 1500 * time.Millisecond})
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:12345", want: "10.0.0.1"},
		{
			name:       "x-forwarded-for",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"},
			want:       "203.0.113.50",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			want:       "203.0.113.51",
		},
		{name: "no port", remoteAddr: "10.0.0.2", want: "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
