// Package respond writes JSON responses and maps repository errors to HTTP.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/requestid"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds request bodies read by Decode.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAlreadyMarked:
		return http.StatusConflict
	case apperr.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error writes err as JSON. Unknown errors are logged and reported without
// detail.
func Error(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := StatusOf(err)
	body := ErrorBody{Error: apperr.KindOf(err).String()}

	var ae *apperr.Error
	switch {
	case status == http.StatusInternalServerError:
		if log != nil {
			log.Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestid.From(r.Context())),
				zap.Error(err))
		}
		body.Error = "internal"
	case errors.As(err, &ae):
		body.Fields = ae.Fields
		if ae.Kind == apperr.KindUnauthorized && ae.Err != nil {
			body.Message = ae.Err.Error()
		}
	}
	if status == http.StatusServiceUnavailable {
		if log != nil {
			log.Warn("store unavailable",
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestid.From(r.Context())),
				zap.Error(err))
		}
		w.Header().Set("Retry-After", "5")
	}
	JSON(w, status, body)
}

// TooManyRequests writes 429 with a Retry-After hint in seconds.
func TooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	JSON(w, http.StatusTooManyRequests, ErrorBody{Error: "rate_limited", Message: "too many requests, try again later"})
}

// Decode reads a JSON body into v. A malformed body is a validation error on
// "body".
func Decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Field(op, "body", "is required")
		}
		return apperr.Field(op, "body", "is not valid JSON")
	}
	return nil
}
