// Package shodan provides a client for the Shodan host search API.
package shodan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/camera-recon/internal/resilience"
)

const (
	defaultBaseURL = "https://api.shodan.io"
	hostPageURL    = "https://www.shodan.io/host/"
)

// Client runs device searches.
type Client interface {
	// Search runs a single host search. It never retries.
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// SearchResponse is the parsed /shodan/host/search response.
type SearchResponse struct {
	Total   int     `json:"total"`
	Matches []Match `json:"matches"`
}

// Match is one banner returned by a host search.
type Match struct {
	IPStr      string      `json:"ip_str"`
	Port       int         `json:"port"`
	Org        string      `json:"org"`
	Product    string      `json:"product"`
	Hostnames  []string    `json:"hostnames"`
	Location   Location    `json:"location"`
	Screenshot *Screenshot `json:"screenshot,omitempty"`
}

// Location is the geolocation block of a match. Coordinates are null for
// addresses Shodan cannot place.
type Location struct {
	City        string   `json:"city"`
	CountryCode string   `json:"country_code"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// Screenshot carries a base64-encoded capture of the device's display.
type Screenshot struct {
	Data string `json:"data"`
	Mime string `json:"mime"`
}

// APIError is a non-200 response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "shodan: status " + http.StatusText(e.StatusCode)
	}
	return "shodan: " + e.Message
}

// HostURL returns the public detail page for an address.
func HostURL(ip string) string {
	return hostPageURL + ip
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps calls per second across every caller of this client.
// Shodan allows one search request per second per key.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithCircuitBreaker rejects calls while the backend is failing.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewClient creates a Shodan client for apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	if c.breaker == nil {
		return c.search(ctx, query)
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*SearchResponse, error) {
		return c.search(ctx, query)
	})
}

func (c *httpClient) search(ctx context.Context, query string) (*SearchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "shodan: rate limit")
	}

	params := url.Values{
		"key":    {c.apiKey},
		"query":  {query},
		"minify": {"false"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/shodan/host/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(withoutURL(err), "shodan: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(withoutURL(err), "shodan: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "shodan: read body"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "shodan: parse response")
	}
	return &out, nil
}

// withoutURL unwraps a *url.Error so the request URL, which carries the API
// key, never reaches logs or sweep summaries.
func withoutURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// errorMessage extracts {"error": "..."} from an error body, falling back to
// the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
