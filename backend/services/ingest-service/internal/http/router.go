package httpserver

import (
	"net/http"

	"gasledger/backend/services/ingest-service/internal/auth"
	"gasledger/backend/services/ingest-service/internal/http/middleware"
)

// Routes groups handlers. Nil handlers are not mounted.
type Routes struct {
	Health          http.HandlerFunc
	Metrics         http.Handler
	StatisticsRange http.HandlerFunc
	LatestPoint     http.HandlerFunc
	Projections     http.HandlerFunc
	Usage           http.HandlerFunc
	Refresh         http.HandlerFunc
}

// NewRouter registers endpoints. When tokens is non-nil every /api/v1 route needs a bearer
// token with the read scope, and refresh needs the refresh scope.
func NewRouter(routes Routes, tokens middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()

	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, routes.Metrics))
	}

	api := func(expected, scope string, handler http.HandlerFunc) http.Handler {
		if tokens == nil {
			return method(expected, handler)
		}
		return method(expected, middleware.Chain(handler, middleware.AuthMiddleware(tokens), middleware.RequireScope(scope)))
	}

	if routes.StatisticsRange != nil {
		mux.Handle("/api/v1/statistics/{series}", api(http.MethodGet, auth.ScopeRead, routes.StatisticsRange))
	}
	if routes.LatestPoint != nil {
		mux.Handle("/api/v1/statistics/{series}/latest", api(http.MethodGet, auth.ScopeRead, routes.LatestPoint))
	}
	if routes.Projections != nil {
		mux.Handle("/api/v1/projections", api(http.MethodGet, auth.ScopeRead, routes.Projections))
	}
	if routes.Usage != nil {
		mux.Handle("/api/v1/usage", api(http.MethodGet, auth.ScopeRead, routes.Usage))
	}
	if routes.Refresh != nil {
		mux.Handle("/api/v1/refresh", api(http.MethodPost, auth.ScopeRefresh, routes.Refresh))
	}
	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
