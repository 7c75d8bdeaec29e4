package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "capital?", body["question"])
		_, _ = w.Write([]byte(`{"answer":"Paris"}`))
	}))
	defer srv.Close()

	answer, err := New(srv.URL+"/", time.Second).Ask(context.Background(), "capital?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", answer)
}

func TestAskNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":503,"message":"service is not ready"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Ask(context.Background(), "q")
	require.ErrorIs(t, err, ErrNotReady)
	var nr *NotReadyError
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, 5*time.Second, nr.RetryAfter)
}

func TestAskAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"message":"invalid request: field 'question' is required"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Ask(context.Background(), "q")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, apiErr.Message, "question")
}

func TestAskMalformedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"x"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Ask(context.Background(), "q")
	assert.Error(t, err)
}
