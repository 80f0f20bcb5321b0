package sweep

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/model"
)

// Aggregator runs a query plan through a Gateway and merges the results.
type Aggregator struct {
	gateway Gateway
	pacer   Pacer
}

// NewAggregator creates an Aggregator. A nil pacer defaults to
// FixedPacer(DefaultPacingInterval).
func NewAggregator(g Gateway, p Pacer) *Aggregator {
	if p == nil {
		p = FixedPacer(DefaultPacingInterval)
	}
	return &Aggregator{gateway: g, pacer: p}
}

// Aggregate attempts every query exactly once, in order. Records are merged
// first-seen-wins; a failed query is recorded and the sweep moves on. The
// pacer runs between queries only, so a single-query plan never waits.
func (a *Aggregator) Aggregate(ctx context.Context, queries []model.QuerySpec) (*model.MergedResultSet, []model.SearchFailure) {
	set := model.NewMergedResultSet()
	var failures []model.SearchFailure

	for i, q := range queries {
		if i > 0 {
			if err := a.pacer.Pause(ctx); err != nil {
				zap.L().Debug("sweep: pacing interrupted", zap.Error(err))
			}
		}

		records, failure := a.gateway.Execute(ctx, q)
		if failure != nil {
			zap.L().Warn("sweep: query failed",
				zap.String("signature", q.Signature),
				zap.String("query", q.Query),
				zap.Bool("transient", failure.Transient),
				zap.String("error", failure.Err),
			)
			failures = append(failures, *failure)
			continue
		}

		var added int
		for _, rec := range records {
			if set.Add(rec) {
				added++
			}
		}
		zap.L().Debug("sweep: query complete",
			zap.String("signature", q.Signature),
			zap.Int("matches", len(records)),
			zap.Int("new", added),
		)
	}

	return set, failures
}
