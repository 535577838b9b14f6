package gateway

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Pool caches one gateway connection handle per account/user identity.
// The cache is bounded by capacity and by idle TTL; evicted handles are
// closed. This replaces keeping live connections in an unbounded map for the
// life of the process.
type Pool struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, *Client]
	baseURL string
	logger  *zap.Logger
}

func NewPool(baseURL string, size int, ttl time.Duration, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{baseURL: baseURL, logger: logger}
	p.cache = expirable.NewLRU[string, *Client](size, func(key string, c *Client) {
		logger.Debug("closing evicted gateway handle", zap.String("identity", key))
		c.Close()
	}, ttl)
	return p
}

// Get returns the cached handle for the identity, creating one if absent.
// Changing the password for an identity replaces its handle.
func (p *Pool) Get(creds Credentials) *Client {
	key := creds.Account + "/" + creds.User
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cache.Get(key); ok && c.creds.Password == creds.Password {
		return c
	}
	c := NewClient(p.baseURL, creds)
	p.cache.Add(key, c)
	return c
}

// Len reports how many handles are currently cached.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}

// Close evicts and closes every cached handle.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
}
