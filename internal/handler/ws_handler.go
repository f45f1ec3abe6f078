/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which upgrades the HTTP connection to WebSocket and
runs the relay session until the connection closes.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"chatrelay/internal/app/relay"
	"chatrelay/internal/pkg/auth/jwt"
	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/logx"
)

// HandleWebSocket creates an HTTP HandlerFunc that upgrades the request and serves a relay session.
// A bearer token present on the upgrade request authenticates the session immediately; otherwise
// the client must send an authenticate frame.
func HandleWebSocket(r *relay.Relay, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		handshakeToken := jwt.TokenFromContext(req.Context())

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket",
				"ip", logx.AnonymizeIP(limiter.ClientIP(req)),
				"request_id", middleware.GetReqID(req.Context()),
			)
			return
		}

		session := relay.NewSession(req.Context(), r, conn)

		logx.Info("WebSocket connection established",
			"conn_id", session.ID(),
			"ip", logx.AnonymizeIP(limiter.ClientIP(req)),
			"handshake_auth", handshakeToken != "",
		)

		session.Run(handshakeToken)
	}
}
