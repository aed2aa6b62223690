package handler

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ylxai/Hafiportrait-sub001/internal/config"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

const healthPath = "/health"

// NewRouter mounts the WebSocket endpoint and the HTTP API behind CORS and
// request logging.
func NewRouter(cfg *config.Config, ws *WSHandler, api *HTTPHandler, logger zerolog.Logger) http.Handler {
	router := mux.NewRouter()

	// WebSocket endpoint
	var upgrade http.Handler = http.HandlerFunc(ws.HandleWebSocket)
	if cfg.RateLimit.HandshakeRequests > 0 {
		upgrade = httprate.LimitByRealIP(cfg.RateLimit.HandshakeRequests, cfg.RateLimit.Window)(upgrade)
	}
	router.Handle(cfg.WebSocket.Path, upgrade)

	// HTTP API endpoints
	router.HandleFunc(healthPath, api.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/stats", api.GetStats).Methods(http.MethodGet)
	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           300,
	})

	return pkglog.HTTPMiddleware(logger, healthPath, cfg.Metrics.Path)(corsHandler(router))
}
