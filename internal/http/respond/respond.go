// Package respond writes the {success, data, error} envelope every API route
// answers with.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = failure.Validation("invalid_body", "Invalid request body.")

// OK writes a successful envelope around data.
func OK[T any](w http.ResponseWriter, status int, data T) {
	JSON(w, status, failure.OK(data))
}

// Error writes a failed envelope. Unexpected failures are logged with their
// cause; only the user-facing message leaves the process.
func Error(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	fe := failure.From(err)
	if logger != nil && (fe.Kind == failure.KindUnexpected || fe.Kind == failure.KindTimeout) {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", fe.Kind,
			"error", fe.Err,
		)
	}
	JSON(w, fe.Kind.HTTPStatus(), failure.Fail[struct{}](fe))
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads a JSON request body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errInvalidBody.Withf("Request body is required.")
		}
		return errInvalidBody.Wrap(err)
	}
	return nil
}
