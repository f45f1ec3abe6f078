/*
Package backend defines the relay's view of the external backend service: an identity service
that turns a bearer token into a user, and a message store that durably keeps sent messages.

The HTTP implementation talks to a Strapi-style REST API. Other MessageStore implementations
live in the db (PostgreSQL) and storage (S3) packages.
*/
package backend

//go:generate go run go.uber.org/mock/mockgen -source=backend.go -destination=mocks/backend_mock.go -package=mocks

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnauthorized means the backend rejected the presented credential.
	ErrUnauthorized = errors.New("backend rejected credential")

	// ErrMalformedResponse means the backend answered with a body the relay cannot use.
	ErrMalformedResponse = errors.New("malformed backend response")

	// ErrUnavailable means the backend answered with an unexpected status.
	ErrUnavailable = errors.New("backend unavailable")
)

// Identity is the user a bearer token belongs to.
type Identity struct {
	// ID is the stable user identifier used as the registry key.
	ID string

	// Username is the display name shown to message receivers.
	Username string
}

// Message is the record handed to a MessageStore. The relay keeps no copy afterwards.
type Message struct {
	ID         string
	Content    string
	SenderID   string
	ReceiverID string
	CreatedAt  time.Time
}

// IdentityService resolves bearer tokens to users.
type IdentityService interface {
	// CurrentUser returns the identity owning token.
	CurrentUser(ctx context.Context, token string) (Identity, error)
}

// MessageStore persists messages.
type MessageStore interface {
	// SaveMessage stores msg. senderToken is the sender's own bearer token, used by stores that
	// authenticate as the sender when no service credential is configured.
	SaveMessage(ctx context.Context, msg Message, senderToken string) error
}
