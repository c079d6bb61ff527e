// Package cache backs the assistant proxy's (C7) two pieces of shared
// mutable state: the per-project FQDN resolution result, which benefits
// from being shared across orchestrator replicas, and the per-project
// prepared HTTP client, which cannot be (an *http.Client's connection pool
// is process-local) and so stays in an in-process, reader-biased map.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FQDNBackend is the storage interface FQDNCache delegates to.
type FQDNBackend interface {
	Get(ctx context.Context, projectID string) (string, bool)
	Set(ctx context.Context, projectID, fqdn string, ttl time.Duration) error
	Delete(ctx context.Context, projectID string)
}

// FQDNCache caches project_id -> resolved FQDN, per the proxy's URL
// resolution cascade. With no Redis configured it falls back to an
// in-process map, so a single-replica deployment needs no external
// service; with Redis configured, every replica observes the same
// resolution and avoids redundant platform get_app calls.
type FQDNCache struct {
	backend FQDNBackend
	ttl     time.Duration
}

// NewInMemory builds an FQDNCache with no external dependency.
func NewInMemory(ttl time.Duration) *FQDNCache {
	return &FQDNCache{backend: newMemoryBackend(), ttl: ttl}
}

// NewRedis builds an FQDNCache backed by Redis at addr.
func NewRedis(addr, password string, db int, ttl time.Duration) *FQDNCache {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &FQDNCache{backend: &redisBackend{client: client}, ttl: ttl}
}

// Get returns the cached FQDN for a project, if present and unexpired.
func (c *FQDNCache) Get(ctx context.Context, projectID string) (string, bool) {
	return c.backend.Get(ctx, projectID)
}

// Set stores the resolved FQDN for a project using the cache's configured TTL.
func (c *FQDNCache) Set(ctx context.Context, projectID, fqdn string) error {
	return c.backend.Set(ctx, projectID, fqdn, c.ttl)
}

// Delete evicts a project's cached FQDN, called on stop/delete.
func (c *FQDNCache) Delete(ctx context.Context, projectID string) {
	c.backend.Delete(ctx, projectID)
}

// memoryBackend is the in-process fallback.
type memoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	fqdn      string
	expiresAt time.Time
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{entries: make(map[string]memoryEntry)}
}

func (m *memoryBackend) Get(_ context.Context, projectID string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[projectID]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, projectID)
		m.mu.Unlock()
		return "", false
	}
	return e.fqdn, true
}

func (m *memoryBackend) Set(_ context.Context, projectID, fqdn string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[projectID] = memoryEntry{fqdn: fqdn, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, projectID string) {
	m.mu.Lock()
	delete(m.entries, projectID)
	m.mu.Unlock()
}

// redisBackend stores the FQDN as a plain string value under a namespaced key.
type redisBackend struct {
	client *redis.Client
}

func redisKey(projectID string) string { return "orchestrator:fqdn:" + projectID }

func (r *redisBackend) Get(ctx context.Context, projectID string) (string, bool) {
	val, err := r.client.Get(ctx, redisKey(projectID)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (r *redisBackend) Set(ctx context.Context, projectID, fqdn string, ttl time.Duration) error {
	return r.client.Set(ctx, redisKey(projectID), fqdn, ttl).Err()
}

func (r *redisBackend) Delete(ctx context.Context, projectID string) {
	r.client.Del(ctx, redisKey(projectID))
}

// Client is a prepared assistant-proxy client entry: a connection-pooled
// HTTP client plus the resolved base URL it was built for.
type Client struct {
	BaseURL string
	HTTP    interface{} // *http.Client; kept as interface{} to avoid an import cycle with assistantproxy
}

// ClientCache is the per-project prepared-client cache described in the
// concurrency model: reader-biased, because lookups sit on the hot request
// path and writes only happen on first use or after eviction.
type ClientCache struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientCache constructs an empty, in-process client cache.
func NewClientCache() *ClientCache {
	return &ClientCache{clients: make(map[string]*Client)}
}

// Get returns the cached client for a project, if any.
func (c *ClientCache) Get(projectID string) (*Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.clients[projectID]
	return cl, ok
}

// Set installs (or replaces) the prepared client for a project.
func (c *ClientCache) Set(projectID string, client *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[projectID] = client
}

// Evict removes a project's prepared client, called on stop_project and
// delete_project_fully.
func (c *ClientCache) Evict(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, projectID)
}
