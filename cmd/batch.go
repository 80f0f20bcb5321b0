package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/camera-recon/internal/delivery"
	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/sweep"
	"github.com/sells-group/camera-recon/internal/ziplist"
)

var (
	batchFile        string
	batchFull        bool
	batchConcurrency int
	batchOutDir      string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Sweep every ZIP code listed in a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchFile == "" {
			return eris.New("batch: --file is required")
		}
		if batchConcurrency > 0 {
			cfg.Batch.MaxConcurrentSweeps = batchConcurrency
		}

		env, err := initSweepEnv(ctx, "batch", batchOutDir)
		if err != nil {
			return err
		}
		defer env.Close()

		codes, err := ziplist.ReadFile(ctx, batchFile)
		if err != nil {
			return err
		}

		results, err := processBatch(ctx, codes, modeFromFlag(batchFull), cfg.Batch.MaxConcurrentSweeps, env.Sink, env.Sweeper.Run)
		if err != nil {
			return err
		}
		formatBatchResults(os.Stdout, results)
		return nil
	},
}

// batchResult is the outcome of one ZIP code in a batch.
type batchResult struct {
	PostalCode string
	SweepID    string
	Outcome    model.SweepOutcome
	Devices    int
	Failures   int
	Err        error
}

// processBatch sweeps codes concurrently and delivers each result. A failing
// sweep is recorded in its result and never aborts the batch.
func processBatch(ctx context.Context, codes []string, mode model.ScanMode, concurrency int, sink delivery.Sink, run sweepFunc) ([]batchResult, error) {
	if len(codes) == 0 {
		zap.L().Info("no postal codes to sweep")
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("postal_codes", len(codes)),
		zap.String("mode", string(mode)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	results := make([]batchResult, len(codes))

	for i, code := range codes {
		g.Go(func() error {
			req := sweep.Request{ID: uuid.NewString(), PostalCode: code, Mode: mode}
			log := zap.L().With(zap.String("postal_code", code), zap.String("sweep_id", req.ID))

			rep, err := run(gctx, req)
			_ = deliverResult(gctx, sink, req, rep, err)

			res := batchResult{PostalCode: code, SweepID: req.ID}
			switch {
			case errors.Is(err, sweep.ErrNotFound):
				res.Outcome = model.OutcomeNotFound
				failed.Add(1)
				log.Warn("postal code not found")
			case err != nil:
				res.Err = err
				failed.Add(1)
				log.Error("sweep failed", zap.Error(err))
			default:
				res.Outcome = rep.Outcome
				res.Devices = len(rep.Records)
				res.Failures = len(rep.Failures)
				succeeded.Add(1)
				log.Info("sweep complete",
					zap.String("outcome", string(rep.Outcome)),
					zap.Int("devices", res.Devices),
				)
			}
			results[i] = res
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}

func formatBatchResults(w io.Writer, results []batchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ZIP\tSWEEP\tOUTCOME\tDEVICES\tFAILED_QUERIES")
	for _, r := range results {
		outcome := string(r.Outcome)
		if r.Err != nil {
			outcome = "error: " + r.Err.Error()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.PostalCode, truncateID(r.SweepID), outcome, r.Devices, r.Failures)
	}
	_ = tw.Flush()
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "CSV or XLSX file of ZIP codes (first column)")
	batchCmd.Flags().BoolVar(&batchFull, "full", false, "run every camera signature for each ZIP code")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent sweeps (default from config)")
	batchCmd.Flags().StringVar(&batchOutDir, "out", "", "directory for maps and screenshots (default from config)")
	rootCmd.AddCommand(batchCmd)
}
