package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFQDNCache_InMemory_SetAndGet(t *testing.T) {
	c := NewInMemory(time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "proj-1")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "proj-1", "opencode-proj-1.example.com"))
	fqdn, ok := c.Get(ctx, "proj-1")
	require.True(t, ok)
	assert.Equal(t, "opencode-proj-1.example.com", fqdn)
}

func TestFQDNCache_InMemory_ExpiresAfterTTL(t *testing.T) {
	c := NewInMemory(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "proj-1", "fqdn"))
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get(ctx, "proj-1")
	assert.False(t, ok)
}

func TestFQDNCache_InMemory_Delete(t *testing.T) {
	c := NewInMemory(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "proj-1", "fqdn"))
	c.Delete(ctx, "proj-1")

	_, ok := c.Get(ctx, "proj-1")
	assert.False(t, ok)
}

func TestClientCache_SetGetEvict(t *testing.T) {
	c := NewClientCache()

	_, ok := c.Get("proj-1")
	assert.False(t, ok)

	entry := &Client{BaseURL: "http://10.0.0.5:4096"}
	c.Set("proj-1", entry)

	got, ok := c.Get("proj-1")
	require.True(t, ok)
	assert.Equal(t, entry, got)

	c.Evict("proj-1")
	_, ok = c.Get("proj-1")
	assert.False(t, ok)
}
