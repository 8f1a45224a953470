package dnsproxy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/miekg/dns"
)

const fallbackTTL = 60 * time.Second

type cacheEntry struct {
	msg       *dns.Msg
	expiresAt time.Time
}

// Cache stores upstream responses until their answer TTL runs out. Blocked
// names never enter the cache; the blocking decision is made before lookup
// so a policy change takes effect on the next query.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	log     *slog.Logger
}

// NewCache creates an empty response cache.
func NewCache(log *slog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		log:     log,
	}
}

// Get returns the cached response for key, or false when absent or expired.
func (c *Cache) Get(key string) (*dns.Msg, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, found := c.entries[key]
	if !found {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.log.Debug("cache entry expired", "name", entry.msg.Question[0].Name)
		return nil, false
	}
	return entry.msg, true
}

// Set stores a response keyed by question, using the first answer's TTL.
func (c *Cache) Set(key string, msg *dns.Msg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ttl := fallbackTTL
	if len(msg.Answer) > 0 {
		ttl = time.Duration(msg.Answer[0].Header().Ttl) * time.Second
	}
	c.entries[key] = cacheEntry{msg: msg, expiresAt: time.Now().Add(ttl)}
}

// Clear drops all cached responses.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.log.Info("dns response cache cleared")
}
