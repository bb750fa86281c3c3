package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chicogong/media-compositor/pkg/api"
	"github.com/chicogong/media-compositor/pkg/auth"
)

func setupRoutes(server *api.Server, gatherer prometheus.Gatherer, logger *zap.Logger, authenticator *auth.AuthMiddleware) *http.ServeMux {
	mux := http.NewServeMux()

	chain := func(h http.HandlerFunc) http.HandlerFunc {
		return api.Chain(h,
			api.RecoveryMiddleware(logger),
			api.LoggingMiddleware(logger),
			api.CORSMiddleware,
			api.AuthMiddleware(authenticator),
		)
	}

	// Health check
	mux.HandleFunc("/health", api.Chain(
		server.HandleHealth,
		api.LoggingMiddleware(logger),
	))

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/process", chain(server.HandleProcess))
	mux.HandleFunc("/api/v1/renders", chain(handleRendersRoute(server)))
	mux.HandleFunc("/api/v1/renders/", chain(handleRenderDetailRoute(server)))

	return mux
}

// handleRendersRoute handles /api/v1/renders (list and create)
func handleRendersRoute(server *api.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			server.HandleListRenders(w, r)
		case http.MethodPost:
			server.HandleProcess(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

// handleRenderDetailRoute handles /api/v1/renders/{id} (get and delete)
func handleRenderDetailRoute(server *api.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			server.HandleGetRender(w, r)
		case http.MethodDelete:
			server.HandleDeleteRender(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}
