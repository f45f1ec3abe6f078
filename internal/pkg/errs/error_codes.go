/*
Package errs provides custom error types and application-level error code constants.

The codes identify relay failures both in logs and on the wire: they travel in `error`
frames and HTTP error envelopes, and the ack messages of sendMessage come from the same table.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrInvalidJSONFormat indicates that a frame or request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnsupportedEvent indicates that a frame named an event the relay does not handle.
	ErrUnsupportedEvent = 1008
)

// 2xxx: Message Content Errors
const (
	// ErrInvalidContent indicates that message content was missing, not a string, or blank.
	ErrInvalidContent = 2201
)

// 3xxx: Session and Identity Errors
const (
	// ErrSessionReplaced indicates that the user authenticated from another connection.
	ErrSessionReplaced = 3004

	// ErrAuthFailed indicates that the identity service rejected the token or could not be used.
	ErrAuthFailed = 3101

	// ErrAuthTimeout indicates that the identity lookup did not finish in time.
	ErrAuthTimeout = 3102

	// ErrNotAuthenticated indicates an operation on a connection with no registry entry.
	ErrNotAuthenticated = 3103
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStorageFailed indicates that the storage service did not accept the message.
	ErrStorageFailed = 5101

	// ErrStorageTimeout indicates that the storage call did not finish in time.
	ErrStorageTimeout = 5102
)
