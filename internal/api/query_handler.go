package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qiongqiongyuren/co2yuan3/internal/metrics"
	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
)

const maxBodyBytes = 1 << 20

// QueryResponse is the body of a successful POST /query.
type QueryResponse struct {
	Answer string `json:"answer"`
}

// QueryHandler forwards questions to the query engine.
type QueryHandler struct {
	querier Querier
	metrics *metrics.Metrics
}

func NewQueryHandler(querier Querier, m *metrics.Metrics) *QueryHandler {
	return &QueryHandler{querier: querier, metrics: m}
}

func (h *QueryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.Query)
}

// Query handles POST /query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	question, err := decodeQuestion(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}

	start := time.Now()
	resp, err := h.querier.Query(r.Context(), question)
	if err != nil {
		status, msg := statusFor(err)
		outcome := metrics.OutcomeError
		if status == http.StatusServiceUnavailable {
			outcome = metrics.OutcomeNotReady
			w.Header().Set("Retry-After", "5")
		} else {
			applog.Error("query failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		}
		h.observe(outcome, start)
		writeError(w, status, msg)
		return
	}
	h.observe(metrics.OutcomeOK, start)
	writeJSON(w, http.StatusOK, &QueryResponse{Answer: resp.Answer})
}

func (h *QueryHandler) observe(outcome string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveQuery(outcome, time.Since(start))
	}
}

// decodeQuestion requires a body holding exactly one JSON object with a
// string "question" field. Unknown fields are ignored and the question is
// returned as sent.
func decodeQuestion(body io.Reader) (string, error) {
	dec := json.NewDecoder(body)
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if tooLarge(err) {
			return "", fmt.Errorf("%w: body exceeds %d bytes", errBodyTooLarge, maxBodyBytes)
		}
		return "", fmt.Errorf("%w: body must be a JSON object", errInvalidRequest)
	}
	if _, err := dec.Token(); err != io.EOF {
		if tooLarge(err) {
			return "", fmt.Errorf("%w: body exceeds %d bytes", errBodyTooLarge, maxBodyBytes)
		}
		return "", fmt.Errorf("%w: unexpected data after JSON object", errInvalidRequest)
	}
	field, ok := raw["question"]
	if !ok {
		return "", fmt.Errorf("%w: field 'question' is required", errInvalidRequest)
	}
	var question string
	if err := json.Unmarshal(field, &question); err != nil || string(field) == "null" {
		return "", fmt.Errorf("%w: field 'question' must be a string", errInvalidRequest)
	}
	return question, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
