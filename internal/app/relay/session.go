package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
	"chatrelay/internal/pkg/req"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// capacity of the outbound queue.
	sendQueueSize = 256
)

var (
	// ErrSessionClosed is returned by Deliver after the session has shut down.
	ErrSessionClosed = errors.New("session closed")

	// ErrSendQueueFull is returned by Deliver when the peer is not draining its queue.
	ErrSendQueueFull = errors.New("session send queue full")
)

// Session is a single WebSocket connection. It implements Conn.
type Session struct {
	id    string
	relay *Relay
	conn  *websocket.Conn

	// a buffered channel used to queue frames waiting to be written to the peer.
	send chan []byte

	// done is closed once the session shuts down. send is never closed.
	done      chan struct{}
	closeOnce sync.Once

	// ctx bounds backend calls made on behalf of this session.
	ctx    context.Context
	cancel context.CancelFunc

	logger zerolog.Logger
}

// NewSession wraps an upgraded WebSocket connection. ctx is the parent of every backend call
// the session makes.
func NewSession(ctx context.Context, relay *Relay, wsConn *websocket.Conn) *Session {
	id := randx.ConnID()
	sessionCtx, cancel := context.WithCancel(ctx)

	return &Session{
		id:     id,
		relay:  relay,
		conn:   wsConn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		ctx:    sessionCtx,
		cancel: cancel,
		logger: logx.Logger().With().Str("conn_id", id).Logger(),
	}
}

// ID implements Conn.
func (s *Session) ID() string {
	return s.id
}

// Done is closed when the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run serves the connection until it closes. A non-empty handshakeToken is used to
// authenticate before the first frame is read. Run blocks.
func (s *Session) Run(handshakeToken string) {
	go s.WritePump()

	s.relay.Connect(s)

	if handshakeToken != "" {
		if err := s.relay.Authenticate(s.ctx, s, handshakeToken); err != nil {
			s.logger.Info().Int("code", errs.CodeOf(err)).Msg("Handshake authentication rejected.")
			s.cleanupOnDisconnect()
			return
		}
	}

	s.ReadPump()
}

// ReadPump reads frames from the WebSocket and dispatches them one at a time, so the frames
// of one connection are handled in the order they arrived.
func (s *Session) ReadPump() {
	defer s.cleanupOnDisconnect()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frameBytes, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		s.processInboundFrame(frameBytes)
	}
}

// cleanupOnDisconnect deregisters the session and closes the connection once ReadPump exits.
func (s *Session) cleanupOnDisconnect() {
	s.logger.Debug().Msg("Session cleanup starting.")

	s.relay.Disconnect(s)
	s.shutdown()
}

// processInboundFrame decodes one text frame and routes it by event.
func (s *Session) processInboundFrame(frameBytes []byte) {
	var frame InboundFrame
	if customErr := req.DecodeFrame(frameBytes, &frame); customErr != nil {
		s.logger.Warn().Err(customErr).Int("frame_bytes", len(frameBytes)).Msg("Client sent invalid JSON")
		s.SendError(customErr)
		return
	}

	switch frame.Event {
	case EventAuthenticate:
		s.handleAuthenticate(frame.Data)

	case EventSendMessage:
		s.handleSendMessage(frame.Data, frame.AckID)

	default:
		s.logger.Warn().Str("event", string(frame.Event)).Msg("Client sent unsupported event")
		s.SendError(errs.NewError(errs.ErrUnsupportedEvent, frame.Event))
	}
}

// handleAuthenticate accepts the token as a bare string or as {"token": "..."}.
// Anything else authenticates with an empty token, which fails.
func (s *Session) handleAuthenticate(data json.RawMessage) {
	if err := s.relay.Authenticate(s.ctx, s, tokenFromData(data)); err != nil {
		s.logger.Info().Int("code", errs.CodeOf(err)).Msg("Authentication rejected.")
	}
}

func tokenFromData(data json.RawMessage) string {
	var token string
	if req.DecodeData(data, &token) == nil {
		return token
	}

	var payload authenticatePayload
	if req.DecodeData(data, &payload) == nil {
		return payload.Token
	}

	return ""
}

// handleSendMessage runs a sendMessage and answers with exactly one ack frame.
// Data that does not decode is handled as an empty message, so an unauthenticated sender
// still gets "not authenticated" before "invalid content".
func (s *Session) handleSendMessage(data json.RawMessage, ackID string) {
	payload, customErr := decodeSendMessage(data)
	if customErr != nil {
		s.logger.Debug().Err(customErr).Msg("Client sent undecodable sendMessage data")
	}

	ack := s.relay.SendMessage(s.ctx, s, payload)
	s.sendAck(ackID, ack)
}

// decodeSendMessage reads content and receiverId independently. A numeric receiverId is kept
// as its decimal text; a content that is not a string decodes as empty.
func decodeSendMessage(data json.RawMessage) (SendMessagePayload, *errs.CustomError) {
	var fields struct {
		Content    json.RawMessage `json:"content"`
		ReceiverID json.RawMessage `json:"receiverId"`
	}
	if customErr := req.DecodeData(data, &fields); customErr != nil {
		return SendMessagePayload{}, customErr
	}

	var payload SendMessagePayload
	_ = json.Unmarshal(fields.Content, &payload.Content)
	payload.ReceiverID = idText(fields.ReceiverID)

	return payload, nil
}

// idText renders a JSON identifier that may be a string or a number.
func idText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}

// WritePump writes queued frames to the WebSocket and keeps the heartbeat going.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		s.shutdown()
	}()

	for {
		select {
		case frame := <-s.send:
			if !s.writeQueuedFrame(frame) {
				return
			}

		case <-ticker.C:
			if !s.writePingMessage() {
				return
			}

		case <-s.done:
			return
		}
	}
}

// writeQueuedFrame writes one frame. Returns false if the WritePump loop should terminate.
func (s *Session) writeQueuedFrame(frame []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (s *Session) writePingMessage() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// Deliver implements Conn by queueing a receiveMessage frame.
func (s *Session) Deliver(payload ReceivePayload) error {
	return s.enqueue(OutboundFrame{Event: EventReceiveMessage, Data: payload})
}

// sendAck queues the ack answering a sendMessage, echoing its ackId.
func (s *Session) sendAck(ackID string, ack Ack) {
	if err := s.enqueue(OutboundFrame{Event: EventAck, Data: ack, AckID: ackID}); err != nil {
		s.logger.Error().Err(err).Str("ack_id", ackID).Msg("Failed to queue ack")
	}
}

// SendError queues an error frame built from err.
func (s *Session) SendError(err error) {
	payload := ErrorPayload{Code: errs.ErrUnknown, Message: errs.NewError(errs.ErrUnknown).Message}

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		payload.Code = customErr.Code
		payload.Message = customErr.Message
	}

	if err := s.enqueue(OutboundFrame{Event: EventError, Data: payload}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to queue error frame")
	}
}

// enqueue marshals frame and puts it on the send queue without blocking.
func (s *Session) enqueue(frame OutboundFrame) error {
	frameBytes, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(frame.Event)).Msg("Error marshaling frame")
		return err
	}

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- frameBytes:
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Str("event", string(frame.Event)).Msg("Send queue full, dropping frame")
		return ErrSendQueueFull
	}
}

// Terminate implements Conn. It sends a close frame carrying code and reason, then shuts the
// session down. ReadPump notices the closed socket and deregisters the session.
func (s *Session) Terminate(code int, reason string) {
	select {
	case <-s.done:
		return
	default:
	}

	s.logger.Info().
		Int("close_code", code).
		Str("reason", reason).
		Msg("Sending WS close frame and closing connection.")

	closeMessage := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		s.logger.Warn().Err(err).Int("close_code", code).Msg("Failed to send WS close frame.")
	}

	s.shutdown()
}

// shutdown stops the pumps, cancels in-flight backend calls and closes the socket. Idempotent.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Session connection close error")
		}
	})
}
