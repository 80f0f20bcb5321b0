package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Cache stores resolved postal codes. A nil result with a nil error is a miss.
type Cache interface {
	GetCachedPostal(ctx context.Context, key string) (*Result, error)
	SetCachedPostal(ctx context.Context, key string, result *Result, ttl time.Duration) error
}

// cacheKey returns the SHA-256 hex of the normalized country and postal code.
func cacheKey(q PostalQuery) string {
	normalized := fmt.Sprintf("%s|%s",
		strings.ToLower(strings.TrimSpace(q.Country)),
		strings.ToLower(strings.TrimSpace(q.PostalCode)),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
