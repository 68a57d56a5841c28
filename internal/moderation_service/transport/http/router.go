// Package http exposes the moderation service to the console and renderer over HTTP/JSON.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/ingestion"
)

// Service is everything the router serves; app.ModerationAppService implements it.
type Service interface {
	MessageService
	SettingsService
}

type RouterConfig struct {
	Service        Service
	Sink           ingestion.Sink
	Validate       *validator.Validate
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// NewRouter builds the chi router with the shared middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Validate == nil {
		cfg.Validate = validator.New()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)
	r.Use(chi_middleware.Timeout(cfg.RequestTimeout))
	r.Use(chi_middleware.SetHeader("Access-Control-Allow-Origin", "*"))
	r.Use(chi_middleware.SetHeader("Access-Control-Allow-Methods", "GET, POST, OPTIONS"))
	r.Use(chi_middleware.SetHeader("Access-Control-Allow-Headers", "Content-Type"))
	r.Use(preflight)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, cfg.Logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	NewMessageHandler(cfg.Service, cfg.Logger, cfg.Validate).RegisterRoutes(r)
	NewSettingsHandler(cfg.Service, cfg.Logger).RegisterRoutes(r)
	if cfg.Sink != nil {
		NewIncomingHandler(cfg.Sink, cfg.Logger, cfg.Validate).RegisterRoutes(r)
	}
	return r
}

// preflight answers CORS OPTIONS requests for every path.
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
