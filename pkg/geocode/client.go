// Package geocode resolves postal codes to coordinates via Nominatim
// (primary) and the Google Geocoding API (optional fallback).
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client looks up the centroid of a postal code.
type Client interface {
	// LookupPostalCode resolves a postal code. An unresolvable code is not an
	// error: the result comes back with Matched=false.
	LookupPostalCode(ctx context.Context, q PostalQuery) (*Result, error)
}

// PostalQuery identifies a postal code within a country.
type PostalQuery struct {
	PostalCode string
	Country    string // ISO 3166-1 alpha-2, e.g. "US"
}

// Result holds the geocoding output for a postal code.
type Result struct {
	Latitude    float64
	Longitude   float64
	Source      string // "nominatim", "google" or "cache"
	DisplayName string
	Matched     bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables the Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets the HTTP client used for every provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second ceiling shared by all lookups.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent sent to Nominatim, which rejects
// anonymous clients.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithNominatimURL overrides the Nominatim search endpoint.
func WithNominatimURL(u string) Option {
	return func(g *geocoder) {
		g.nominatimURL = u
	}
}

// WithCache consults c before the network and stores matches for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

type geocoder struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	userAgent    string
	nominatimURL string
	googleKey    string
	cache        Cache
	cacheTTL     time.Duration
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(1, 1), // Nominatim usage policy: 1 req/s
		userAgent:    "camera-recon",
		nominatimURL: nominatimSearchURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LookupPostalCode tries the cache, then Nominatim, then Google if configured.
// An error is returned only when no provider matched and at least one failed.
func (g *geocoder) LookupPostalCode(ctx context.Context, q PostalQuery) (*Result, error) {
	q = normalize(q)
	key := cacheKey(q)

	if g.cache != nil {
		cached, err := g.cache.GetCachedPostal(ctx, key)
		if err != nil {
			zap.L().Debug("geocode: cache lookup failed", zap.String("postal_code", q.PostalCode), zap.Error(err))
		} else if cached != nil && cached.Matched {
			cached.Source = "cache"
			return cached, nil
		}
	}

	var lastErr error
	result, err := g.lookupNominatim(ctx, q)
	if err != nil {
		lastErr = err
		zap.L().Debug("geocode: nominatim failed", zap.String("postal_code", q.PostalCode), zap.Error(err))
	}

	if (result == nil || !result.Matched) && g.googleKey != "" {
		googleResult, googleErr := g.lookupGoogle(ctx, q)
		if googleErr != nil {
			lastErr = googleErr
			zap.L().Debug("geocode: google failed", zap.String("postal_code", q.PostalCode), zap.Error(googleErr))
		} else {
			result = googleResult
		}
	}

	if result != nil && result.Matched {
		g.store(ctx, key, result)
		return result, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return &Result{Matched: false, Source: "nominatim"}, nil
}

func (g *geocoder) store(ctx context.Context, key string, r *Result) {
	if g.cache == nil {
		return
	}
	if err := g.cache.SetCachedPostal(ctx, key, r, g.cacheTTL); err != nil {
		zap.L().Warn("geocode: cache store failed", zap.Error(err))
	}
}

func normalize(q PostalQuery) PostalQuery {
	q.PostalCode = strings.TrimSpace(q.PostalCode)
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	if q.Country == "" {
		q.Country = "US"
	}
	return q
}
