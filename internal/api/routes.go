package api

import (
	"net/http"

	"ratelimiter/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type routeOptions struct {
	otelServiceName string
	apiGuards       []mux.MiddlewareFunc
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeOptions)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(o *routeOptions) {
		o.otelServiceName = serviceName
	}
}

// WithRateLimiter admits the limits and categories endpoints through
// middleware. Health and documentation routes are never guarded.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(o *routeOptions) {
		o.apiGuards = append(o.apiGuards, middleware)
	}
}

func untracedPath(path string) bool {
	switch path {
	case "/health", "/api/v1/health", "/metrics", "/api/v1/openapi.yaml", "/api/v1/docs":
		return true
	}
	return false
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)
	if o.otelServiceName != "" {
		router.Use(otelmux.Middleware(o.otelServiceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return !untracedPath(r.URL.Path)
			}),
		))
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/openapi.yaml", handlers.ServeOpenAPISpec).Methods("GET")
	router.HandleFunc("/api/v1/docs", handlers.ServeSwaggerUI).Methods("GET")
	for _, path := range []string{"/health", "/api/v1/health", "/api/v1/openapi.yaml", "/api/v1/docs"} {
		methodFallback(router, path)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	for _, guard := range o.apiGuards {
		api.Use(guard)
	}

	api.HandleFunc("/categories", handlers.ListCategories).Methods("GET")
	methodFallback(api, "/categories")

	requireAdmin := adminTokenMiddleware(config.Security.AdminToken)
	api.HandleFunc("/limits/{category}/{client_id}", handlers.Decide).Methods("POST")
	api.HandleFunc("/limits/{category}/{client_id}", handlers.GetHistory).Methods("GET")
	api.Handle("/limits/{category}/{client_id}", requireAdmin(http.HandlerFunc(handlers.ResetLimit))).Methods("DELETE")
	methodFallback(api, "/limits/{category}/{client_id}")

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}

// methodFallback answers 405 for any method the routes already registered on
// path do not serve. It must follow those routes. mux drops a recorded method
// mismatch as soon as a later route's path prefix matches, so relying on
// MethodNotAllowedHandler alone turns some mismatches into 404s.
func methodFallback(r *mux.Router, path string) {
	r.HandleFunc(path, methodNotAllowedHandler)
}
