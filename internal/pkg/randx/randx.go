/*
Package randx generates identifiers for connections and stored messages.
*/
package randx

import (
	"github.com/google/uuid"
)

// ConnIDPrefix is prepended to every connection identifier so they are easy to tell apart
// from user identifiers in logs.
const ConnIDPrefix = "conn_"

// ConnID returns a new random connection identifier.
func ConnID() string {
	return ConnIDPrefix + uuid.NewString()
}

// MessageID returns a time-ordered (UUIDv7) identifier for a stored message.
// It falls back to a random UUIDv4 if the clock-based generator fails.
func MessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
