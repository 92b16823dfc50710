package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/version"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLimitService implements LimitService for handler tests
type MockLimitService struct {
	mock.Mock
	quotas *ratelimit.Quotas
}

func (m *MockLimitService) Evaluate(ctx context.Context, category ratelimit.Category, clientID string) (ratelimit.Result, error) {
	args := m.Called(ctx, category, clientID)
	return args.Get(0).(ratelimit.Result), args.Error(1)
}

func (m *MockLimitService) Reset(ctx context.Context, category ratelimit.Category, clientID string) error {
	args := m.Called(ctx, category, clientID)
	return args.Error(0)
}

func (m *MockLimitService) History(ctx context.Context, category ratelimit.Category, clientID string) ([]time.Time, error) {
	args := m.Called(ctx, category, clientID)
	times, _ := args.Get(0).([]time.Time)
	return times, args.Error(1)
}

func (m *MockLimitService) Quotas() *ratelimit.Quotas {
	return m.quotas
}

// mockStorage implements storage.TimestampLog; only Ping matters to handlers
type mockStorage struct {
	pingErr error
}

func (m *mockStorage) Read(context.Context, string) ([]string, error) { return nil, nil }
func (m *mockStorage) Append(context.Context, string, string) error   { return nil }
func (m *mockStorage) PopOldest(context.Context, string) error        { return nil }
func (m *mockStorage) Clear(context.Context, string) error            { return nil }
func (m *mockStorage) Ping(context.Context) error                     { return m.pingErr }
func (m *mockStorage) Close() error                                   { return nil }

func newMockService(t *testing.T) *MockLimitService {
	t.Helper()
	q, err := ratelimit.NewQuotas(map[string]int{"Login": 2, "Message": 5})
	require.NoError(t, err)
	return &MockLimitService{quotas: q}
}

// limitRequest sets the route variables directly so identifiers that could
// not appear in a raw request line can still be exercised.
func limitRequest(method, category, clientID string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/limits/test/test", nil)
	return mux.SetURLVars(req, map[string]string{"category": category, "client_id": clientID})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestNewHandlers(t *testing.T) {
	service := newMockService(t)
	store := &mockStorage{}
	info := version.Info{Version: "1.2.3"}

	handlers := NewHandlers(service, store, info)

	assert.NotNil(t, handlers)
	assert.Equal(t, service, handlers.limiter)
	assert.Equal(t, store, handlers.storage)
	assert.Equal(t, info, handlers.info)
}

func TestHandlers_Decide_Admit(t *testing.T) {
	service := newMockService(t)
	resetAt := time.Date(2024, 1, 1, 12, 1, 10, 0, time.UTC)
	service.On("Evaluate", mock.Anything, ratelimit.Category("Login"), "alice").Return(ratelimit.Result{
		Decision:  ratelimit.Admit,
		Category:  "Login",
		ClientID:  "alice",
		Quota:     2,
		Estimate:  0.5,
		Remaining: 0,
		ResetAt:   resetAt,
	}, nil)

	handlers := NewHandlers(service, nil, version.Info{})
	rec := httptest.NewRecorder()
	handlers.Decide(rec, limitRequest(http.MethodPost, "Login", "alice"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1704110470", rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))

	var resp models.DecisionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.DecisionAdmit, resp.Decision)
	assert.Equal(t, "Login", resp.Category)
	assert.Equal(t, "alice", resp.ClientID)
	assert.Equal(t, 2, resp.Quota)
	assert.InDelta(t, 0.5, resp.Estimate, 1e-9)
	assert.True(t, resetAt.Equal(resp.ResetAt))
	assert.Zero(t, resp.RetryAfterSeconds)
	service.AssertExpectations(t)
}

func TestHandlers_Decide_Drop(t *testing.T) {
	service := newMockService(t)
	service.On("Evaluate", mock.Anything, ratelimit.Category("Login"), "alice").Return(ratelimit.Result{
		Decision:   ratelimit.Drop,
		Quota:      2,
		Estimate:   2,
		ResetAt:    time.Date(2024, 1, 1, 12, 1, 10, 0, time.UTC),
		RetryAfter: 51 * time.Second,
	}, nil)

	handlers := NewHandlers(service, nil, version.Info{})
	rec := httptest.NewRecorder()
	handlers.Decide(rec, limitRequest(http.MethodPost, "Login", "alice"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "51", rec.Header().Get("Retry-After"))

	var resp models.DecisionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.DecisionDrop, resp.Decision)
	assert.Equal(t, 51, resp.RetryAfterSeconds)
}

func TestHandlers_Decide_LimiterErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "unknown category",
			err:        &ratelimit.ConfigurationError{Category: "Login"},
			wantStatus: http.StatusNotFound,
			wantCode:   models.ErrorCodeUnknownCategory,
		},
		{
			name:       "store failure",
			err:        &ratelimit.StoreError{Op: "read", Key: "k", Err: errors.New("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   models.ErrorCodeStorageUnavailable,
			wantMsg:    "Request log storage is unavailable",
		},
		{
			name:       "corrupt entry",
			err:        &ratelimit.DataCorruptionError{Key: "k", Index: 0, Value: "garbage", Err: errors.New("bad")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   models.ErrorCodeDataCorruption,
			wantMsg:    "Request log contains an unreadable entry",
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   models.ErrorCodeInternalError,
			wantMsg:    "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newMockService(t)
			service.On("Evaluate", mock.Anything, ratelimit.Category("Login"), "alice").
				Return(ratelimit.Result{}, tt.err)

			handlers := NewHandlers(service, nil, version.Info{})
			rec := httptest.NewRecorder()
			handlers.Decide(rec, limitRequest(http.MethodPost, "Login", "alice"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))

			resp := decodeError(t, rec)
			assert.Equal(t, "error", resp.Error)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Message)
				assert.NotContains(t, resp.Message, "garbage")
			}
		})
	}
}

func TestHandlers_InvalidIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		category string
		clientID string
	}{
		{"blank client", "Login", "   "},
		{"blank category", "", "alice"},
		{"control character in client", "Login", "ali\x01ce"},
		{"inner whitespace in category", "Log in", "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newMockService(t)
			handlers := NewHandlers(service, nil, version.Info{})

			for _, h := range []http.HandlerFunc{handlers.Decide, handlers.GetHistory, handlers.ResetLimit} {
				rec := httptest.NewRecorder()
				h(rec, limitRequest(http.MethodPost, tt.category, tt.clientID))

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, models.ErrorCodeInvalidRequest, decodeError(t, rec).Code)
			}
			service.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything)
			service.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything)
			service.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandlers_Decide_TrimsIdentifiers(t *testing.T) {
	service := newMockService(t)
	service.On("Evaluate", mock.Anything, ratelimit.Category("Login"), "alice").
		Return(ratelimit.Result{Decision: ratelimit.Admit, Quota: 2}, nil)

	handlers := NewHandlers(service, nil, version.Info{})
	rec := httptest.NewRecorder()
	handlers.Decide(rec, limitRequest(http.MethodPost, " Login ", "alice "))

	assert.Equal(t, http.StatusOK, rec.Code)
	service.AssertExpectations(t)
}

func TestHandlers_GetHistory(t *testing.T) {
	t.Run("returns stored timestamps", func(t *testing.T) {
		times := []time.Time{
			time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC),
			time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC),
		}
		service := newMockService(t)
		service.On("History", mock.Anything, ratelimit.Category("Message"), "bob").Return(times, nil)

		handlers := NewHandlers(service, nil, version.Info{})
		rec := httptest.NewRecorder()
		handlers.GetHistory(rec, limitRequest(http.MethodGet, "Message", "bob"))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp models.HistoryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "Message", resp.Category)
		assert.Equal(t, "bob", resp.ClientID)
		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Timestamps, 2)
		assert.True(t, times[0].Equal(resp.Timestamps[0]))
		assert.True(t, times[1].Equal(resp.Timestamps[1]))
	})

	t.Run("empty log encodes an empty list", func(t *testing.T) {
		service := newMockService(t)
		service.On("History", mock.Anything, ratelimit.Category("Message"), "bob").Return(nil, nil)

		handlers := NewHandlers(service, nil, version.Info{})
		rec := httptest.NewRecorder()
		handlers.GetHistory(rec, limitRequest(http.MethodGet, "Message", "bob"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"timestamps":[]`)
	})

	t.Run("unknown category", func(t *testing.T) {
		service := newMockService(t)
		service.On("History", mock.Anything, ratelimit.Category("Upload"), "bob").
			Return(nil, &ratelimit.ConfigurationError{Category: "Upload"})

		handlers := NewHandlers(service, nil, version.Info{})
		rec := httptest.NewRecorder()
		handlers.GetHistory(rec, limitRequest(http.MethodGet, "Upload", "bob"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, models.ErrorCodeUnknownCategory, resp.Code)
		assert.Contains(t, resp.Message, "Upload")
	})
}

func TestHandlers_ResetLimit(t *testing.T) {
	t.Run("clears the log", func(t *testing.T) {
		service := newMockService(t)
		service.On("Reset", mock.Anything, ratelimit.Category("Login"), "alice").Return(nil)

		handlers := NewHandlers(service, nil, version.Info{})
		rec := httptest.NewRecorder()
		handlers.ResetLimit(rec, limitRequest(http.MethodDelete, "Login", "alice"))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
		service.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		service := newMockService(t)
		service.On("Reset", mock.Anything, ratelimit.Category("Login"), "alice").
			Return(&ratelimit.StoreError{Op: "clear", Key: "k", Err: errors.New("timeout")})

		handlers := NewHandlers(service, nil, version.Info{})
		rec := httptest.NewRecorder()
		handlers.ResetLimit(rec, limitRequest(http.MethodDelete, "Login", "alice"))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, models.ErrorCodeStorageUnavailable, decodeError(t, rec).Code)
	})
}

func TestHandlers_ListCategories(t *testing.T) {
	handlers := NewHandlers(newMockService(t), nil, version.Info{})
	rec := httptest.NewRecorder()
	handlers.ListCategories(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.CategoriesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "1m0s", resp.Window)
	assert.Equal(t, []models.CategoryQuota{
		{Name: "Login", Quota: 2},
		{Name: "Message", Quota: 5},
	}, resp.Categories)
}

func TestHandlers_HealthCheck(t *testing.T) {
	tests := []struct {
		name          string
		store         *mockStorage
		wantStatus    int
		wantHealth    string
		wantComponent string
	}{
		{
			name:          "healthy storage",
			store:         &mockStorage{},
			wantStatus:    http.StatusOK,
			wantHealth:    models.StatusHealthy,
			wantComponent: models.StatusHealthy,
		},
		{
			name:          "unreachable storage",
			store:         &mockStorage{pingErr: errors.New("dial tcp: connection refused")},
			wantStatus:    http.StatusServiceUnavailable,
			wantHealth:    models.StatusUnhealthy,
			wantComponent: models.StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := version.Info{Version: "1.2.3", InstanceID: "instance-1"}
			handlers := NewHandlers(newMockService(t), tt.store, info)

			rec := httptest.NewRecorder()
			handlers.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp models.HealthCheckResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantHealth, resp.Status)
			assert.Equal(t, "1.2.3", resp.Version)
			assert.Equal(t, tt.wantComponent, resp.Components["storage"].Status)
			assert.Equal(t, models.StatusHealthy, resp.Components["api"].Status)
			assert.EqualValues(t, 2, resp.Metrics["categories"])
			assert.Equal(t, "instance-1", resp.Metrics["instance_id"])
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestHandlers_WriteErrorResponse_IncludesRequestID(t *testing.T) {
	handlers := NewHandlers(newMockService(t), nil, version.Info{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), requestIDKey{}, "req-123"))
	rec := httptest.NewRecorder()

	handlers.writeErrorResponse(rec, req, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "bad")

	resp := decodeError(t, rec)
	assert.Equal(t, "req-123", resp.RequestID)
	assert.Equal(t, "bad", resp.Message)
}
