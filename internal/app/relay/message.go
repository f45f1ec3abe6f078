package relay

import "encoding/json"

// EventType names a frame on the WebSocket.
type EventType string

const (
	// EventAuthenticate carries a bearer token from the client.
	EventAuthenticate EventType = "authenticate"

	// EventSendMessage carries a SendMessagePayload from the client.
	EventSendMessage EventType = "sendMessage"

	// EventReceiveMessage carries a ReceivePayload to the receiver.
	EventReceiveMessage EventType = "receiveMessage"

	// EventAck carries the Ack answering a sendMessage.
	EventAck EventType = "ack"

	// EventError carries an ErrorPayload for frames the relay could not read.
	EventError EventType = "error"
)

// Ack messages returned to the sender of a sendMessage.
const (
	AckMessageSent = "message sent and stored"
)

// InboundFrame is a frame sent by a client.
type InboundFrame struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`

	// AckID correlates the ack frame with the request; it is echoed verbatim.
	AckID string `json:"ackId,omitempty"`
}

// OutboundFrame is a frame sent to a client.
type OutboundFrame struct {
	Event EventType `json:"event"`
	Data  any       `json:"data"`
	AckID string    `json:"ackId,omitempty"`
}

// SendMessagePayload is the data of a sendMessage frame.
type SendMessagePayload struct {
	Content    string `json:"content"`
	ReceiverID string `json:"receiverId"`
}

// ReceivePayload is the data of a receiveMessage frame.
type ReceivePayload struct {
	Content string `json:"content"`

	// Sender is the sender's display name.
	Sender     string `json:"sender"`
	ReceiverID string `json:"receiverId"`
}

// Ack is the result of a sendMessage. Exactly one is produced per request.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// authenticatePayload is the object form of an authenticate frame's data.
type authenticatePayload struct {
	Token string `json:"token"`
}
