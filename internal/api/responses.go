package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/qiongqiongyuren/co2yuan3/internal/engine"
)

// errorResponse is the envelope of every non-2xx reply.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var (
	// errInvalidRequest marks request bodies that fail validation.
	errInvalidRequest = errors.New("invalid request")
	errBodyTooLarge   = errors.New("request body too large")
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &errorResponse{Code: status, Message: message})
}

// statusFor maps an error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrNotReady):
		return http.StatusServiceUnavailable, "service is not ready"
	case errors.Is(err, errInvalidRequest):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	default:
		return http.StatusInternalServerError, "query failed"
	}
}
