package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyAddrDisables(t *testing.T) {
	assert.Nil(t, New("", "", 0))
}

func TestNilClient_BehavesAsEmptyCache(t *testing.T) {
	var c *Client
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	data, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, data)

	c.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute)
	var dst map[string]int
	assert.False(t, c.GetJSON(ctx, "k", &dst))

	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.Close())
}

func TestUnreachableServer_ReadsFailSafeWritesReport(t *testing.T) {
	c := New("127.0.0.1:1", "", 0)
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, c.Ping(ctx))
	assert.Error(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	c.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute)

	data, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.False(t, c.GetJSON(ctx, "k", &struct{}{}))
}
