package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/backend"
	"chatrelay/internal/pkg/auth/jwt"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
)

const (
	// DefaultBackendTimeout bounds identity and storage calls when Options.Timeout is zero.
	DefaultBackendTimeout = 10 * time.Second

	// CloseSessionReplaced is the WebSocket close code sent to a connection whose user
	// authenticated again elsewhere (only when replaced sessions are kicked).
	CloseSessionReplaced = 4001

	// CloseAuthFailed is the WebSocket close code sent when authentication fails.
	CloseAuthFailed = 4003

	// CloseGoingAway is the standard close code used when the relay shuts down.
	CloseGoingAway = 1001

	// how often WaitIdle re-checks the open connection count.
	idlePollInterval = 25 * time.Millisecond
)

var errEmptyToken = errors.New("empty bearer token")

// Conn is a live connection handle as seen by the relay.
type Conn interface {
	// ID uniquely identifies the connection for the process lifetime.
	ID() string

	// Deliver queues a receiveMessage event. It must not block.
	Deliver(payload ReceivePayload) error

	// Terminate closes the connection with a WebSocket close code and reason.
	Terminate(code int, reason string)
}

// Options tunes a Relay.
type Options struct {
	// Timeout bounds each identity lookup and storage call.
	Timeout time.Duration

	// KickReplaced terminates the older connection when a user authenticates again elsewhere.
	// When false the older connection stays open, unauthenticated.
	KickReplaced bool

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Relay implements the authenticate / sendMessage / disconnect protocol on top of a Registry.
type Relay struct {
	registry     *Registry
	identity     backend.IdentityService
	store        backend.MessageStore
	timeout      time.Duration
	kickReplaced bool
	now          func() time.Time

	// live tracks every open connection, authenticated or not, for Shutdown.
	live   map[string]Conn
	liveMu sync.Mutex

	logger zerolog.Logger
}

// New constructs a Relay. The registry is owned by the caller.
func New(registry *Registry, identity backend.IdentityService, store backend.MessageStore, opts Options) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBackendTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Relay{
		registry:     registry,
		identity:     identity,
		store:        store,
		timeout:      opts.Timeout,
		kickReplaced: opts.KickReplaced,
		now:          opts.Now,
		live:         make(map[string]Conn),
		logger:       logx.Component("Relay"),
	}
}

// Registry returns the registry the relay writes to.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Connect starts tracking conn. Every connection is unauthenticated until Authenticate succeeds.
func (r *Relay) Connect(conn Conn) {
	r.liveMu.Lock()
	r.live[conn.ID()] = conn
	total := len(r.live)
	r.liveMu.Unlock()

	r.logger.Info().Str("conn_id", conn.ID()).Int("connections", total).Msg("Connection opened, awaiting authentication.")
}

// Connections returns the number of open connections.
func (r *Relay) Connections() int {
	r.liveMu.Lock()
	defer r.liveMu.Unlock()
	return len(r.live)
}

// Authenticate resolves token through the identity service and registers conn under the
// returned user. On any failure conn is terminated and nothing is registered. Success is
// silent: the client learns it only by not being disconnected.
func (r *Relay) Authenticate(ctx context.Context, conn Conn, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return r.rejectAuth(conn, errs.Wrap(errs.ErrAuthFailed, errEmptyToken))
	}

	// The identity service decides; a passed exp is only logged.
	if info, ok := jwt.Inspect(token); ok && info.Expired(r.now()) {
		r.logger.Debug().
			Str("conn_id", conn.ID()).
			Str("subject", info.Subject).
			Time("expires_at", info.ExpiresAt).
			Msg("Token exp has passed on the local clock, asking the identity service anyway.")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	identity, err := r.identity.CurrentUser(callCtx, token)
	if err != nil {
		code := errs.ErrAuthFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = errs.ErrAuthTimeout
		}
		return r.rejectAuth(conn, errs.Wrap(code, err))
	}

	displaced, replaced := r.registry.Set(Entry{
		UserID:          identity.ID,
		Username:        identity.Username,
		Token:           token,
		Conn:            conn,
		AuthenticatedAt: r.now(),
	})

	r.logger.Info().
		Str("conn_id", conn.ID()).
		Str("user_id", identity.ID).
		Str("username", identity.Username).
		Int("online_users", r.registry.Len()).
		Msg("User authenticated.")

	if replaced {
		r.logger.Warn().
			Str("user_id", identity.ID).
			Str("previous_conn_id", displaced.Conn.ID()).
			Str("conn_id", conn.ID()).
			Bool("kicked", r.kickReplaced).
			Msg("User authenticated from a new connection, previous registration replaced.")

		if r.kickReplaced {
			displaced.Conn.Terminate(CloseSessionReplaced, errs.NewError(errs.ErrSessionReplaced).Message)
		}
	}

	return nil
}

// rejectAuth logs the failure and terminates conn.
func (r *Relay) rejectAuth(conn Conn, customErr *errs.CustomError) error {
	r.logger.Warn().
		Err(customErr).
		Str("conn_id", conn.ID()).
		Int("code", customErr.Code).
		Msg("Authentication failed, terminating connection.")

	conn.Terminate(CloseAuthFailed, customErr.Message)
	return customErr
}

// SendMessage validates, stores and forwards a message from conn, and returns the ack for
// the sender. Delivery happens only after the store accepted the message; an offline
// receiver is not an error.
func (r *Relay) SendMessage(ctx context.Context, conn Conn, payload SendMessagePayload) Ack {
	sender, ok := r.registry.LookupByConn(conn.ID())
	if !ok {
		return r.failAck(conn, errs.NewError(errs.ErrNotAuthenticated))
	}

	if strings.TrimSpace(payload.Content) == "" {
		return r.failAck(conn, errs.NewError(errs.ErrInvalidContent))
	}

	msg := backend.Message{
		ID:         randx.MessageID(),
		Content:    payload.Content,
		SenderID:   sender.UserID,
		ReceiverID: payload.ReceiverID,
		CreatedAt:  r.now(),
	}

	r.logger.Debug().
		Str("message_id", msg.ID).
		Str("sender_id", sender.UserID).
		Str("receiver_id", payload.ReceiverID).
		Int("content_bytes", len(payload.Content)).
		Msg("Message received.")

	if err := r.storeMessage(ctx, msg, sender.Token); err != nil {
		return r.failAck(conn, err)
	}

	receiver, online := r.registry.Get(payload.ReceiverID)
	if !online {
		r.logger.Info().
			Str("message_id", msg.ID).
			Str("receiver_id", payload.ReceiverID).
			Msg("Receiver not connected, delivery skipped.")
		return Ack{Success: true, Message: AckMessageSent}
	}

	err := receiver.Conn.Deliver(ReceivePayload{
		Content:    payload.Content,
		Sender:     sender.Username,
		ReceiverID: payload.ReceiverID,
	})
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Str("receiver_id", payload.ReceiverID).
			Msg("Delivery to receiver failed, message remains stored.")
	} else {
		r.logger.Info().
			Str("message_id", msg.ID).
			Str("receiver_id", payload.ReceiverID).
			Msg("Message delivered.")
	}

	return Ack{Success: true, Message: AckMessageSent}
}

// storeMessage persists msg within the backend timeout.
func (r *Relay) storeMessage(ctx context.Context, msg backend.Message, senderToken string) *errs.CustomError {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.store.SaveMessage(callCtx, msg, senderToken); err != nil {
		code := errs.ErrStorageFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = errs.ErrStorageTimeout
		}

		customErr := errs.Wrap(code, err)
		r.logger.Error().
			Err(customErr).
			Str("message_id", msg.ID).
			Str("sender_id", msg.SenderID).
			Msg("Message storage failed, nothing delivered.")
		return customErr
	}

	return nil
}

// failAck turns a failure into the ack sent to the caller.
func (r *Relay) failAck(conn Conn, customErr *errs.CustomError) Ack {
	r.logger.Debug().
		Str("conn_id", conn.ID()).
		Int("code", customErr.Code).
		Msg("sendMessage rejected.")

	return Ack{Success: false, Message: customErr.Message}
}

// Disconnect forgets conn and removes its own registry entry, if it still has one.
func (r *Relay) Disconnect(conn Conn) {
	r.liveMu.Lock()
	delete(r.live, conn.ID())
	r.liveMu.Unlock()

	e, ok := r.registry.RemoveByConn(conn.ID())
	if !ok {
		r.logger.Debug().Str("conn_id", conn.ID()).Msg("Unauthenticated connection closed.")
		return
	}

	r.logger.Info().
		Str("conn_id", conn.ID()).
		Str("user_id", e.UserID).
		Str("username", e.Username).
		Dur("session_duration", r.now().Sub(e.AuthenticatedAt)).
		Int("online_users", r.registry.Len()).
		Msg("User disconnected.")
}

// Shutdown terminates every open connection. Their sessions deregister themselves as they close.
func (r *Relay) Shutdown() {
	r.liveMu.Lock()
	conns := make([]Conn, 0, len(r.live))
	for _, c := range r.live {
		conns = append(conns, c)
	}
	r.liveMu.Unlock()

	r.logger.Info().
		Int("connections", len(conns)).
		Strs("user_ids", r.registry.UserIDs()).
		Msg("Shutting down relay, closing connections.")

	for _, c := range conns {
		c.Terminate(CloseGoingAway, "server shutting down")
	}
}

// WaitIdle blocks until every connection has disconnected or ctx is done, in which case it
// returns ctx.Err().
func (r *Relay) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for r.Connections() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
