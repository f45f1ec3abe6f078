package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"chatrelay/internal/app/backend"
	"chatrelay/internal/app/backend/mocks"
	"chatrelay/internal/app/relay"
	"chatrelay/internal/configs"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/resp"
)

type routerFixture struct {
	server   *httptest.Server
	relay    *relay.Relay
	identity *mocks.MockIdentityService
}

func newRouterFixture(t *testing.T, cfg *configs.AppConfig, wsLimiter *limiter.IPRateLimiter) routerFixture {
	ctrl := gomock.NewController(t)
	identity := mocks.NewMockIdentityService(ctrl)
	store := mocks.NewMockMessageStore(ctrl)
	r := relay.New(relay.NewRegistry(), identity, store, relay.Options{Timeout: time.Second})

	server := httptest.NewServer(Router(&AppDeps{Relay: r, Config: cfg, WSLimiter: wsLimiter}))
	t.Cleanup(func() {
		r.Shutdown()
		server.Close()
	})

	return routerFixture{server: server, relay: r, identity: identity}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestRouter_Health(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, &configs.AppConfig{Environment: "development"}, nil)

	res, err := http.Get(f.server.URL + "/health")
	req.NoError(err)
	defer res.Body.Close()

	req.Equal(http.StatusOK, res.StatusCode)

	var body resp.Envelope[HealthStatus]
	req.NoError(json.NewDecoder(res.Body).Decode(&body))
	req.Zero(body.Code)
	req.Equal(resp.MessageSuccess, body.Message)
	req.Equal(HealthStatus{Status: "ok", Service: ServiceName}, body.Data)
	req.NotEmpty(body.RequestID)
}

func TestRouter_WebSocket_HandshakeToken(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, &configs.AppConfig{Environment: "development"}, nil)

	f.identity.EXPECT().CurrentUser(gomock.Any(), "tok-a").Return(backend.Identity{ID: "A", Username: "alice"}, nil)

	header := http.Header{"Authorization": []string{"Bearer tok-a"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.server), header)
	req.NoError(err)
	defer conn.Close()

	req.Eventually(func() bool { return f.relay.Registry().Len() == 1 }, 3*time.Second, 10*time.Millisecond)

	res, err := http.Get(f.server.URL + "/health")
	req.NoError(err)
	defer res.Body.Close()

	var body resp.Envelope[HealthStatus]
	req.NoError(json.NewDecoder(res.Body).Decode(&body))
	req.Equal(1, body.Data.OnlineUsers)
	req.Equal(1, body.Data.Connections)

	// Development reports who is online and since when.
	req.Len(body.Data.Users, 1)
	req.Equal("A", body.Data.Users[0].UserID)
	req.Equal("alice", body.Data.Users[0].Username)
	req.False(body.Data.Users[0].AuthenticatedAt.IsZero())
}

func TestRouter_Health_HidesUsersOutsideDevelopment(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, &configs.AppConfig{Environment: "production"}, nil)

	f.identity.EXPECT().CurrentUser(gomock.Any(), "tok-a").Return(backend.Identity{ID: "A", Username: "alice"}, nil)

	header := http.Header{"Authorization": []string{"Bearer tok-a"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.server), header)
	req.NoError(err)
	defer conn.Close()

	req.Eventually(func() bool { return f.relay.Registry().Len() == 1 }, 3*time.Second, 10*time.Millisecond)

	res, err := http.Get(f.server.URL + "/health")
	req.NoError(err)
	defer res.Body.Close()

	var body resp.Envelope[HealthStatus]
	req.NoError(json.NewDecoder(res.Body).Decode(&body))
	req.Equal(1, body.Data.OnlineUsers)
	req.Empty(body.Data.Users)
}

func TestRouter_WebSocket_Origin(t *testing.T) {
	cfg := &configs.AppConfig{Environment: "production", AllowedOrigins: []string{"https://chat.example.com"}}

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed origin", "https://chat.example.com", true},
		{"foreign origin", "https://evil.example.com", false},
		{"no origin", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			f := newRouterFixture(t, cfg, nil)

			header := http.Header{}
			if tc.origin != "" {
				header.Set("Origin", tc.origin)
			}

			conn, res, err := websocket.DefaultDialer.Dial(wsURL(f.server), header)
			if tc.ok {
				req.NoError(err)
				conn.Close()
				return
			}

			req.ErrorIs(err, websocket.ErrBadHandshake)
			req.Equal(http.StatusForbidden, res.StatusCode)
		})
	}
}

func TestRouter_WebSocket_RateLimited(t *testing.T) {
	req := require.New(t)
	wsLimiter := limiter.NewIPRateLimiter(rate.Limit(0.001), 1)
	defer wsLimiter.Close()
	f := newRouterFixture(t, &configs.AppConfig{Environment: "development"}, wsLimiter)

	first, _, err := websocket.DefaultDialer.Dial(wsURL(f.server), nil)
	req.NoError(err)
	defer first.Close()

	_, res, err := websocket.DefaultDialer.Dial(wsURL(f.server), nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusTooManyRequests, res.StatusCode)
	req.NotEmpty(res.Header.Get("Retry-After"))

	var body resp.Envelope[any]
	req.NoError(json.NewDecoder(res.Body).Decode(&body))
	req.Equal(errs.ErrRateLimitExceeded, body.Code)
}
