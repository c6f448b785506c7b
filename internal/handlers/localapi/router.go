package localapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"im-sync/internal/config"
	"im-sync/internal/middleware"
	"im-sync/internal/websocket"
)

// NewRouter wires the local API routes. hub and gatherer may be nil, in which
// case GET /events and GET /metrics are not served.
func NewRouter(h *Handler, hub *websocket.Hub, wsCfg config.WebSocketConfig, gatherer prometheus.Gatherer, cfg config.LocalAPIConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.AccessKeyMiddleware(cfg.AccessKey))

	r.HandleFunc("/state", h.GetStateHandler).Methods(http.MethodGet)
	r.HandleFunc("/state/error", h.ClearErrorHandler).Methods(http.MethodDelete)
	r.HandleFunc("/status", h.GetStatusHandler).Methods(http.MethodGet)

	r.HandleFunc("/messages", h.SendMessageHandler).Methods(http.MethodPost)
	r.HandleFunc("/typing", h.SendTypingHandler).Methods(http.MethodPost)

	r.HandleFunc("/notifications/refresh", h.RefreshNotificationsHandler).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{notificationID}/read", h.MarkNotificationReadHandler).Methods(http.MethodPatch)

	r.HandleFunc("/conversations", h.CreateConversationHandler).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{conversationID}/messages", h.GetConversationMessagesHandler).Methods(http.MethodGet)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if hub != nil {
		r.HandleFunc("/events", websocket.ServeEvents(hub, wsCfg, originChecker(cfg.CORS.AllowedOrigins))).Methods(http.MethodGet)
	}

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.CORS.AllowedHeaders),
		handlers.MaxAge(cfg.CORS.MaxAge),
	}
	if cfg.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	return handlers.RecoveryHandler()(handlers.CORS(corsOptions...)(r))
}

// originChecker accepts requests without an Origin header (scripts) and
// browser requests from one of the allowed origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
