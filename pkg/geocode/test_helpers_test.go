package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient returns an HTTP client that sends every request whose URL
// starts with a key of rewrites to the mapped test server instead.
func newRewriteClient(rewrites map[string]string) *http.Client {
	return &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, rewrites: rewrites}}
}

type rewriteTransport struct {
	base     http.RoundTripper
	rewrites map[string]string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	for prefix, target := range t.rewrites {
		if !strings.HasPrefix(orig, prefix) {
			continue
		}
		parsed, err := req.URL.Parse(target + orig[len(prefix):])
		if err != nil {
			return nil, err
		}
		out := req.Clone(req.Context())
		out.URL = parsed
		out.Host = parsed.Host
		return t.base.RoundTrip(out)
	}
	return t.base.RoundTrip(req)
}

// memCache is an in-memory Cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string]Result
	getErr  error
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]Result)}
}

func (c *memCache) GetCachedPostal(_ context.Context, key string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	r, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *memCache) SetCachedPostal(_ context.Context, key string, r *Result, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *r
	c.sets++
	return nil
}
