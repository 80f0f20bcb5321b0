package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertQueryFailureRate AlertType = "query_failure_rate"
	AlertSearchOutage     AlertType = "search_outage"
	AlertNotFoundRate     AlertType = "not_found_rate"
)

// minSample is the number of queries or finished sweeps a rate needs
// before it is trusted.
const minSample = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.QueriesTotal >= minSample && snap.QueryFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertQueryFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Search query failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d queries in last %dh)",
				snap.QueryFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.QueriesFailed, snap.QueriesTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.QueryFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.QueriesFailed,
				"queries":      snap.QueriesTotal,
			},
			Timestamp: now,
		})
	}

	// A sweep where every query failed usually means a bad key or exhausted credits.
	if snap.OutcomeFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertSearchOutage,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d sweep(s) had every search query fail in last %dh",
				snap.OutcomeFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_sweeps":   snap.OutcomeFailed,
				"complete_sweeps": snap.SweepsComplete,
			},
			Timestamp: now,
		})
	}

	if a.cfg.NotFoundRateThreshold > 0 && snap.Finished() >= minSample && snap.NotFoundRate > a.cfg.NotFoundRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertNotFoundRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"ZIP lookup failure rate %.1f%% exceeds threshold %.1f%% (%d of %d sweeps in last %dh)",
				snap.NotFoundRate*100, a.cfg.NotFoundRateThreshold*100,
				snap.SweepsNotFound, snap.Finished(), snap.LookbackHours,
			),
			Details: map[string]any{
				"not_found_rate": snap.NotFoundRate,
				"threshold":      a.cfg.NotFoundRateThreshold,
				"not_found":      snap.SweepsNotFound,
				"finished":       snap.Finished(),
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
