package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateNotReady(t *testing.T) {
	g := NewGate()
	assert.False(t, g.Ready())

	resp, err := g.Query(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Nil(t, resp)
}

func TestGatePublishOnce(t *testing.T) {
	g := NewGate()
	first := &Engine{}
	require.NoError(t, g.Publish(first))
	assert.True(t, g.Ready())

	assert.ErrorIs(t, g.Publish(&Engine{}), ErrAlreadyPublished)
	assert.Same(t, first, g.engine.Load())
	assert.Error(t, NewGate().Publish(nil))
}
