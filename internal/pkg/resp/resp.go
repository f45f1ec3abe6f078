/*
Package resp writes the JSON bodies of the relay's plain HTTP answers: the health check and
WebSocket upgrades refused before the handshake (rate limiting).

Every body is an Envelope carrying the errs code (0 on success) and the chi request ID, so a
client report can be matched with the request log line.
*/
package resp

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
)

// MessageSuccess is the message of every successful envelope.
const MessageSuccess = "success"

// Envelope is the body of a JSON answer. Data is omitted on errors.
type Envelope[T any] struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      T      `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondSuccess writes data in a 200 envelope.
func RespondSuccess[T any](w http.ResponseWriter, r *http.Request, data T) {
	write(w, r, http.StatusOK, Envelope[T]{
		Code:      0,
		Message:   MessageSuccess,
		Data:      data,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// RespondError writes err as an error envelope with the status its errs code maps to.
// Errors that are not *errs.CustomError are reported as ErrUnknown.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) {
		if err != nil {
			logx.Error(err, "Responding with an unclassified error", "path", r.URL.Path)
		}
		customErr = errs.NewError(errs.ErrUnknown)
	}

	write(w, r, customErr.Status, Envelope[any]{
		Code:      customErr.Code,
		Message:   customErr.Message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// RespondRateLimited writes ErrRateLimitExceeded with a Retry-After header rounded up to
// whole seconds. A non-positive retryAfter omits the header.
func RespondRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}

	RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
}

func write(w http.ResponseWriter, r *http.Request, httpStatus int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	encoded, err := json.Marshal(body)
	if err != nil {
		logx.Error(err, "Error encoding JSON response", "http_status", httpStatus, "path", r.URL.Path)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	if _, err := w.Write(encoded); err != nil {
		logx.Warn("Failed to write JSON response body", "error", err.Error())
	}
}
