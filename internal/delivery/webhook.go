package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/camera-recon/internal/resilience"
)

// WebhookSink POSTs the JSON report, images inlined, to a URL. Transient
// failures are retried, honoring the receiver's Retry-After.
type WebhookSink struct {
	url   string
	http  *http.Client
	retry resilience.RetryConfig
}

// NewWebhookSink creates a WebhookSink. A nil client gets a 30s timeout.
func NewWebhookSink(url string, retry resilience.RetryConfig, hc *http.Client) *WebhookSink {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookSink{url: url, http: hc, retry: retry}
}

func (s *WebhookSink) Deliver(ctx context.Context, d Delivery) error {
	body, err := encodeDocument(d, true)
	if err != nil {
		return err
	}

	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "delivery: build webhook request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.http.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "delivery: webhook post"), 0)
		}
		defer resp.Body.Close()               //nolint:errcheck
		_, _ = io.Copy(io.Discard, resp.Body) // drain for connection reuse

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		err = eris.Errorf("delivery: webhook returned %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			te := resilience.NewTransientError(err, resp.StatusCode)
			te.RetryAfter = resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			return te
		}
		return err
	})
}
