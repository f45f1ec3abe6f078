package handler

import (
	"chatrelay/internal/app/relay"
	"chatrelay/internal/configs"
	"chatrelay/internal/pkg/limiter"
)

// AppDeps holds what the HTTP layer needs to serve the relay.
type AppDeps struct {
	Relay  *relay.Relay
	Config *configs.AppConfig

	// WSLimiter throttles WebSocket upgrades per client IP. Owned by the caller, which closes it.
	WSLimiter *limiter.IPRateLimiter
}
