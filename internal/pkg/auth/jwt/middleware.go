/*
Package jwt inspects bearer tokens before they are sent to the identity service.

The middleware lifts a bearer token out of the WebSocket upgrade request so a client may
authenticate during the handshake instead of sending an authenticate frame.
*/
package jwt

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// ContextBearerKey is the request context key holding the handshake bearer token.
const ContextBearerKey contextKey = "bearer_token"

// BearerFromRequest returns the token from "Authorization: Bearer <token>" or, since browsers
// cannot set headers on WebSocket upgrades, from the "token" query parameter.
func BearerFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// BearerExtractorMiddleware stores the handshake bearer token, if any, in the request context.
// It never rejects a request: an absent token just means the client will authenticate later.
func BearerExtractorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), ContextBearerKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromContext returns the handshake bearer token stored by BearerExtractorMiddleware.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ContextBearerKey).(string)
	return token
}
