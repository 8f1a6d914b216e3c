// Package respond writes the JSON bodies and error envelopes shared by every
// handler.
package respond

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// ErrorResponse is the error envelope for every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a machine-readable code and operator-facing text.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// JSON marshals v and writes it with status.
func JSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		Error(w, http.StatusInternalServerError, "ENCODE_ERROR", "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// Cached writes pre-rendered JSON with cache validators. hit reports whether
// the body came from the response cache.
func Cached(w http.ResponseWriter, data []byte, etag string, ttl time.Duration, hit bool) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("ETag", etag)
	h.Set("Vary", "Accept-Encoding")
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))
	if hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// NotModified answers a conditional request whose validator still matches.
func NotModified(w http.ResponseWriter, etag string) {
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusNotModified)
}

// Error writes the error envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	ErrorHint(w, status, code, message, "")
}

// ErrorHint writes the error envelope with advice for the operator.
func ErrorHint(w http.ResponseWriter, status int, code, message, hint string) {
	data, _ := sonic.Marshal(ErrorResponse{Error: ErrorBody{Code: code, Message: message, Hint: hint}})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
