package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/delivery"
	"github.com/sells-group/camera-recon/internal/resilience"
	"github.com/sells-group/camera-recon/internal/store"
	"github.com/sells-group/camera-recon/internal/sweep"
	"github.com/sells-group/camera-recon/pkg/geocode"
	"github.com/sells-group/camera-recon/pkg/shodan"
)

// sweepFunc runs one sweep. The Sweeper satisfies it; tests substitute fakes.
type sweepFunc func(ctx context.Context, req sweep.Request) (*sweep.Report, error)

// sweepEnv holds the initialized dependencies shared by the sweep, batch and
// serve commands.
type sweepEnv struct {
	Store   store.Store
	Sweeper *sweep.Sweeper
	Sink    delivery.Sink
	MapDir  string
}

// Close releases resources held by the environment.
func (e *sweepEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "camrecon.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSweepEnv validates config for mode and wires the store, the backend
// clients, the sweeper and the delivery sinks. outDir overrides the
// configured delivery directory when set.
func initSweepEnv(ctx context.Context, mode, outDir string) (*sweepEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	geoOpts := []geocode.Option{
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithRateLimit(cfg.Geocode.RatePerSec),
		geocode.WithCache(st, cfg.Geocode.CacheTTL()),
	}
	if cfg.Geocode.NominatimURL != "" {
		geoOpts = append(geoOpts, geocode.WithNominatimURL(cfg.Geocode.NominatimURL))
	}
	if cfg.Geocode.GoogleKey != "" {
		geoOpts = append(geoOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	geo := geocode.NewClient(geoOpts...)

	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs))
	shodanOpts := []shodan.Option{
		shodan.WithRateLimit(cfg.Shodan.RatePerSec),
		shodan.WithCircuitBreaker(breaker),
		shodan.WithHTTPClient(&http.Client{Timeout: secondsOr(cfg.Shodan.TimeoutSecs, 30)}),
	}
	if cfg.Shodan.BaseURL != "" {
		shodanOpts = append(shodanOpts, shodan.WithBaseURL(cfg.Shodan.BaseURL))
	}
	search := shodan.NewClient(cfg.Shodan.Key, shodanOpts...)

	sweeper := sweep.NewSweeper(
		sweep.NewGeoResolver(geo, cfg.Geocode.Country),
		sweep.NewSearchGateway(search),
		sweep.WithPacer(sweep.FixedPacer(cfg.Sweep.Pacing())),
		sweep.WithHistory(st),
	)

	dir := artifactDir(outDir)
	sink, err := buildSinks(dir)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	return &sweepEnv{Store: st, Sweeper: sweeper, Sink: sink, MapDir: dir}, nil
}

// artifactDir picks the directory that receives maps and screenshots: the
// flag, then delivery.dir, then sweep.map_dir.
func artifactDir(outDir string) string {
	switch {
	case outDir != "":
		return outDir
	case cfg.Delivery.Dir != "":
		return cfg.Delivery.Dir
	default:
		return cfg.Sweep.MapDir
	}
}

// buildSinks assembles the configured delivery targets. The directory sink
// is always present so map artifacts land in a known place.
func buildSinks(dir string) (delivery.Sink, error) {
	sinks := delivery.Multi{delivery.NewDirSink(dir)}

	if cfg.Delivery.WebhookURL != "" {
		retry := resilience.FromRetryConfig(cfg.Delivery.Retries, 0)
		sinks = append(sinks, delivery.NewWebhookSink(cfg.Delivery.WebhookURL, retry, &http.Client{Timeout: 30 * time.Second}))
	}
	if cfg.Delivery.FTPURL != "" {
		ftpSink, err := delivery.NewFTPSink(cfg.Delivery.FTPURL)
		if err != nil {
			return nil, eris.Wrap(err, "init ftp delivery")
		}
		sinks = append(sinks, ftpSink)
	}
	return sinks, nil
}

// deliverResult hands a finished sweep to sink. A NotFound sweep is
// delivered as the operator message; other run errors have nothing to send.
func deliverResult(ctx context.Context, sink delivery.Sink, req sweep.Request, rep *sweep.Report, runErr error) error {
	if sink == nil {
		return nil
	}
	var d delivery.Delivery
	switch {
	case runErr == nil && rep != nil:
		d = delivery.FromReport(rep)
	case errors.Is(runErr, sweep.ErrNotFound):
		d = delivery.NotFound(req.ID, req.PostalCode, req.Mode)
	default:
		return nil
	}
	if err := sink.Deliver(ctx, d); err != nil {
		zap.L().Warn("delivery failed",
			zap.String("sweep_id", d.SweepID),
			zap.String("postal_code", d.PostalCode),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func secondsOr(secs, fallback int) time.Duration {
	if secs <= 0 {
		secs = fallback
	}
	return time.Duration(secs) * time.Second
}
