/*
Package req provides helpers for decoding inbound JSON data.

The relay receives JSON text frames over WebSocket; these helpers decode a frame or one of its
data fields and translate decoding problems into errs codes the session can report back.
*/
package req

import (
	"bytes"
	"encoding/json"

	"chatrelay/internal/pkg/errs"
)

// DecodeFrame decodes a complete frame into dst.
// Trailing content after the first JSON value is rejected.
func DecodeFrame(data []byte, dst any) *errs.CustomError {
	decoder := json.NewDecoder(bytes.NewReader(data))

	if err := decoder.Decode(dst); err != nil {
		return errs.Wrap(errs.ErrInvalidJSONFormat, err)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	return nil
}

// DecodeData decodes the data field of a frame into dst. A missing or null field is an error.
func DecodeData(raw json.RawMessage, dst any) *errs.CustomError {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if err := json.Unmarshal(trimmed, dst); err != nil {
		return errs.Wrap(errs.ErrInvalidParams, err)
	}

	return nil
}
