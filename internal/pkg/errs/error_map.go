/*
Package errs provides custom error types and application-level error code constants.

This file maps error codes to their CustomError templates.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrInvalidJSONFormat: {Code: ErrInvalidJSONFormat, Message: "Unsupported frame format.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnsupportedEvent:  {Code: ErrUnsupportedEvent, Message: "Unsupported event: %s.", Status: http.StatusBadRequest},

	// 2xxx: Message Content Errors
	ErrInvalidContent: {Code: ErrInvalidContent, Message: "invalid content"},

	// 3xxx: Session and Identity Errors
	ErrSessionReplaced:  {Code: ErrSessionReplaced, Message: "You were signed in on another connection."},
	ErrAuthFailed:       {Code: ErrAuthFailed, Message: "authentication failed", Status: http.StatusUnauthorized},
	ErrAuthTimeout:      {Code: ErrAuthTimeout, Message: "authentication timed out", Status: http.StatusGatewayTimeout},
	ErrNotAuthenticated: {Code: ErrNotAuthenticated, Message: "not authenticated", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:        {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStorageFailed:  {Code: ErrStorageFailed, Message: "send or storage error", Status: http.StatusBadGateway},
	ErrStorageTimeout: {Code: ErrStorageTimeout, Message: "storage timed out", Status: http.StatusGatewayTimeout},
}
