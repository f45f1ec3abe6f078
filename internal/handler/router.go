/*
Package handler provides the HTTP handlers and routing setup for the chat relay.

This file defines the main Router, applying middleware for CORS, request IDs, logging and panic
recovery before delegating to the health check and the WebSocket endpoint.
*/
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/samber/lo"

	"chatrelay/internal/app/relay"
	"chatrelay/internal/configs"
	"chatrelay/internal/pkg/auth/jwt"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

// ServiceName is reported by the health check.
const ServiceName = "Chat Relay"

// HealthStatus is the data of a /health response.
type HealthStatus struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	OnlineUsers int    `json:"online_users"`
	Connections int    `json:"connections"`

	// Users lists who is online. Only reported in development.
	Users []OnlineUser `json:"users,omitempty"`
}

// OnlineUser is one registry entry as reported by /health.
type OnlineUser struct {
	UserID          string    `json:"user_id"`
	Username        string    `json:"username"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// Router sets up the main HTTP routing table (chi.Router) for the relay.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		logx.Debug("Health check endpoint hit")

		status := HealthStatus{
			Status:      "ok",
			Service:     ServiceName,
			OnlineUsers: deps.Relay.Registry().Len(),
			Connections: deps.Relay.Connections(),
		}

		if deps.Config.IsDevelopment() {
			status.Users = lo.Map(deps.Relay.Registry().Entries(), func(e relay.Entry, _ int) OnlineUser {
				return OnlineUser{UserID: e.UserID, Username: e.Username, AuthenticatedAt: e.AuthenticatedAt}
			})
		}

		resp.RespondSuccess(w, r, status)
	})

	wsHandler := jwt.BearerExtractorMiddleware(HandleWebSocket(deps.Relay, NewUpgrader(deps.Config)))
	if deps.WSLimiter != nil {
		wsHandler = deps.WSLimiter.Middleware(wsHandler)
	}
	r.Method(http.MethodGet, "/ws", wsHandler)

	return r
}

// NewUpgrader builds the WebSocket upgrader. Outside development only origins in the allow-list
// are accepted; requests without an Origin header (non-browser clients) always are.
func NewUpgrader(cfg *configs.AppConfig) websocket.Upgrader {
	allowedOrigins := make(map[string]struct{})
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}
}
