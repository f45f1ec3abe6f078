package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	req := require.New(t)

	err := NewError(ErrNotAuthenticated)
	req.Equal(ErrNotAuthenticated, err.Code)
	req.Equal("not authenticated", err.Message)
	req.Equal(http.StatusUnauthorized, err.Status)

	// Templates without a status default to 200 OK.
	req.Equal(http.StatusOK, NewError(ErrInvalidContent).Status)
}

func TestNewError_FormatsDetails(t *testing.T) {
	require.Equal(t, "Unsupported event: joinRoom.", NewError(ErrUnsupportedEvent, "joinRoom").Message)
}

func TestNewError_UnknownCode(t *testing.T) {
	err := NewError(424242)

	require.Equal(t, ErrUnknown, err.Code)
	require.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestNewError_DoesNotShareTemplate(t *testing.T) {
	first := NewError(ErrAuthFailed)
	first.Message = "mutated"

	require.Equal(t, "authentication failed", NewError(ErrAuthFailed).Message)
}

func TestWrap(t *testing.T) {
	req := require.New(t)
	cause := fmt.Errorf("identity lookup: %w", context.DeadlineExceeded)

	err := Wrap(ErrAuthTimeout, cause)

	req.ErrorIs(err, context.DeadlineExceeded)
	req.Contains(err.Error(), "3102")
	req.Contains(err.Error(), "authentication timed out")
	req.Equal("authentication timed out", err.Message)
}

func TestCodeOf(t *testing.T) {
	req := require.New(t)

	wrapped := fmt.Errorf("outer: %w", NewError(ErrStorageFailed))
	req.Equal(ErrStorageFailed, CodeOf(wrapped))
	req.Equal(ErrUnknown, CodeOf(errors.New("plain")))
}

func TestErrorMap_Consistent(t *testing.T) {
	for code, tmpl := range errorMap {
		require.Equal(t, code, tmpl.Code, "template for %d carries another code", code)
		require.NotEmpty(t, tmpl.Message)
	}
}
