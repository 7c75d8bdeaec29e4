package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flag struct{ v atomic.Bool }

func (f *flag) Ready() bool { return f.v.Load() }

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveBuild(3, 12, 1500*time.Millisecond)
	m.ObserveQuery(OutcomeOK, time.Second)
	m.ObserveQuery(OutcomeOK, time.Second)
	m.ObserveQuery(OutcomeNotReady, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DocumentsLoaded))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ChunksIndexed))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.IndexBuildSeconds))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues(OutcomeNotReady)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryLatency))
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveQuery(OutcomeError, time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.QueriesTotal.WithLabelValues(OutcomeError)))
}

func TestAdminHandler(t *testing.T) {
	m := New()
	m.RegisterEmbeddingCache(func() (int64, int64) { return 7, 2 })
	ready := &flag{}
	h := NewAdminServer(0, m, ready).Handler()

	get := func(path string) (*http.Response, string) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		body, _ := io.ReadAll(rec.Result().Body)
		return rec.Result(), string(body)
	}

	resp, body := get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, body = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"status":"initializing"}`, body)

	ready.v.Store(true)
	resp, body = get("/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ready"}`, body)

	resp, body = get("/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "aiservice_embedding_cache_hits_total 7")
	assert.Contains(t, body, "go_goroutines")
}
