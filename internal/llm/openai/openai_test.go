package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 1)
		assert.Equal(t, "user", msgs[0].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Paris."}}]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_LLM_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "TEST_LLM_KEY", Model: "gpt-test"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "Capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", out)
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_LLM_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_LLM_KEY"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("TEST_LLM_KEY_UNSET", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_LLM_KEY_UNSET"})
	assert.Error(t, err)
}
