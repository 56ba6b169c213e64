// Package router wires HTTP routes and middleware for the booking assistant.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avaclinic/booking-assistant/internal/conversation"
	"github.com/avaclinic/booking-assistant/internal/http/handlers"
	httpmiddleware "github.com/avaclinic/booking-assistant/internal/http/middleware"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	ChatHandler    *conversation.Handler
	ConfirmHandler *handlers.ConfirmHandler
	MetricsHandler http.Handler

	CORSAllowedOrigins []string

	// Requests/sec and burst per IP. Zero disables the limiter.
	ChatRateLimit    float64
	ChatRateBurst    int
	ConfirmRateLimit float64
	ConfirmRateBurst int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Group(func(chat chi.Router) {
			if cfg.ChatRateLimit > 0 {
				chat.Use(httpmiddleware.RateLimit(cfg.ChatRateLimit, cfg.ChatRateBurst))
			}
			chat.Post("/chat", cfg.ChatHandler.Chat)
		})
	}

	if cfg.ConfirmHandler != nil {
		r.Group(func(confirm chi.Router) {
			if cfg.ConfirmRateLimit > 0 {
				confirm.Use(httpmiddleware.RateLimit(cfg.ConfirmRateLimit, cfg.ConfirmRateBurst))
			}
			confirm.Get("/appointments/confirm", cfg.ConfirmHandler.Confirm)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
