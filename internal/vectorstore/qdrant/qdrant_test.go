package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func fakeQdrant(t *testing.T, deleteStatus int) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("api-key"))
		rec := recorded{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()

		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(deleteStatus)
		case r.URL.Path == "/collections/docs/points/search":
			_, _ = w.Write([]byte(`{"result":[{"id":1,"score":0.9,"payload":{"document_id":"d","chunk_id":"d:0","index":0,"text":"Paris","metadata":{"file_name":"f.txt"}}}]}`))
		default:
			_, _ = w.Write([]byte(`{"result":true}`))
		}
	}))
	return srv, &calls
}

func TestLifecycle(t *testing.T) {
	srv, calls := fakeQdrant(t, http.StatusOK)
	defer srv.Close()
	ctx := context.Background()

	s := NewStorage(Config{URL: srv.URL + "/", APIKey: "k", Collection: "docs"})
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Init(ctx, 3))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{{DocumentID: "d", ChunkID: "d:0", Text: "Paris"}, {DocumentID: "d", ChunkID: "d:1", Index: 1, Text: "France"}},
		[][]float64{{1, 0, 0}, {0, 1, 0}}))

	res, err := s.Search(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Paris", res[0].Chunk.Text)
	assert.Equal(t, "f.txt", res[0].Chunk.Metadata["file_name"])
	assert.Equal(t, 0.9, res[0].Score)

	require.Len(t, *calls, 4)
	assert.Equal(t, http.MethodDelete, (*calls)[0].method)
	assert.Equal(t, http.MethodPut, (*calls)[1].method)
	assert.Equal(t, float64(3), (*calls)[1].body["vectors"].(map[string]any)["size"])

	points := (*calls)[2].body["points"].([]any)
	require.Len(t, points, 2)
	assert.Equal(t, float64(1), points[0].(map[string]any)["id"])
	assert.Equal(t, float64(2), points[1].(map[string]any)["id"])
	assert.Equal(t, float64(2), (*calls)[3].body["limit"])
}

func TestUpsertSplitsIntoBatches(t *testing.T) {
	srv, calls := fakeQdrant(t, http.StatusOK)
	defer srv.Close()
	ctx := context.Background()

	s := NewStorage(Config{URL: srv.URL, APIKey: "k", Collection: "docs", BatchSize: 2})
	chunks := make([]domain.Chunk, 5)
	vectors := make([][]float64, 5)
	for i := range chunks {
		chunks[i] = domain.Chunk{DocumentID: "d", Index: i}
		vectors[i] = []float64{float64(i)}
	}
	require.NoError(t, s.Upsert(ctx, chunks, vectors))

	require.Len(t, *calls, 3)
	var ids []float64
	for i, want := range []int{2, 2, 1} {
		assert.Equal(t, "/collections/docs/points", (*calls)[i].path)
		points := (*calls)[i].body["points"].([]any)
		require.Len(t, points, want)
		for _, p := range points {
			ids = append(ids, p.(map[string]any)["id"].(float64))
		}
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, ids)
	assert.Equal(t, DefaultBatchSize, NewStorage(Config{}).batchSize)
}

func TestClearMissingCollection(t *testing.T) {
	srv, _ := fakeQdrant(t, http.StatusNotFound)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "k", Collection: "docs"})
	assert.NoError(t, s.Clear(context.Background()))
}

func TestClearServerError(t *testing.T) {
	srv, _ := fakeQdrant(t, http.StatusInternalServerError)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "k", Collection: "docs"})
	assert.Error(t, s.Clear(context.Background()))
}
