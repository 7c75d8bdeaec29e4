// Package cache memoizes embedding vectors in an external key-value store
// so that restarts over an unchanged corpus skip the embedding backend.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/minio/highwayhash"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
)

const keyPrefix = "aiservice:emb:"

var hashKey = []byte("co2yuan3-aiservice-embed-cache!!")

// Store is the key-value backend of the cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Embedder wraps another embedder and serves repeated texts from Store.
// Store failures are logged and fall through to the wrapped embedder.
type Embedder struct {
	inner     domain.Embedder
	store     Store
	model     string
	ttl       time.Duration
	dimension atomic.Int64
	logger    *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps inner. model is folded into the key so that switching models
// never returns stale vectors.
func New(inner domain.Embedder, store Store, model string, ttl time.Duration) *Embedder {
	return &Embedder{
		inner:  inner,
		store:  store,
		model:  model,
		ttl:    ttl,
		logger: applog.With("component", "embedding-cache"),
	}
}

func (e *Embedder) Name() string { return e.inner.Name() }

func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	return e.inner.Prepare(ctx, corpus)
}

func (e *Embedder) Dimension() int {
	if d := e.inner.Dimension(); d > 0 {
		return d
	}
	return int(e.dimension.Load())
}

// Stats returns the hit and miss counters.
func (e *Embedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := e.key(text)
	if vec, ok := e.lookup(ctx, key); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.remember(ctx, key, vec)
	return vec, nil
}

// EmbedBatch looks every text up first and sends only the misses to the
// wrapped embedder, batched when it supports batching.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = e.key(text)
		if vec, ok := e.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	var vecs [][]float64
	if b, ok := e.inner.(domain.BatchEmbedder); ok {
		var err error
		if vecs, err = b.EmbedBatch(ctx, missTexts); err != nil {
			return nil, err
		}
	} else {
		vecs = make([][]float64, len(missTexts))
		for i, text := range missTexts {
			vec, err := e.inner.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			vecs[i] = vec
		}
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		e.remember(ctx, keys[i], vecs[j])
	}
	return out, nil
}

func (e *Embedder) lookup(ctx context.Context, key string) ([]float64, bool) {
	data, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if !ok {
		e.misses.Add(1)
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) == 0 {
		e.logger.Warn("cache entry unreadable", "key", key, "error", err)
		e.misses.Add(1)
		return nil, false
	}
	e.hits.Add(1)
	e.dimension.CompareAndSwap(0, int64(len(vec)))
	return vec, true
}

func (e *Embedder) remember(ctx context.Context, key string, vec []float64) {
	e.dimension.CompareAndSwap(0, int64(len(vec)))
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, key, data, e.ttl); err != nil {
		e.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (e *Embedder) key(text string) string {
	sum := highwayhash.Sum128([]byte(text), hashKey)
	return keyPrefix + e.inner.Name() + ":" + e.model + ":" + hex.EncodeToString(sum[:])
}
