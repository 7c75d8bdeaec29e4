package engine

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	ErrNotReady         = errors.New("query engine is not ready")
	ErrAlreadyPublished = errors.New("query engine already published")
)

// Gate hands the engine to request handlers once it has been built.
// Until Publish succeeds every query fails with ErrNotReady.
type Gate struct {
	engine atomic.Pointer[Engine]
}

func NewGate() *Gate {
	return &Gate{}
}

// Publish makes e visible to readers. Only the first call has effect.
func (g *Gate) Publish(e *Engine) error {
	if e == nil {
		return errors.New("publish nil engine")
	}
	if !g.engine.CompareAndSwap(nil, e) {
		return ErrAlreadyPublished
	}
	return nil
}

func (g *Gate) Ready() bool {
	return g.engine.Load() != nil
}

func (g *Gate) Query(ctx context.Context, question string) (*Response, error) {
	e := g.engine.Load()
	if e == nil {
		return nil, ErrNotReady
	}
	return e.Query(ctx, question)
}
