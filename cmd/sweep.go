package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/delivery"
	"github.com/sells-group/camera-recon/internal/export"
	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/sweep"
)

var (
	sweepFull      bool
	sweepOutDir    string
	sweepXLSX      string
	sweepShapefile string
	sweepJSON      bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <zip>",
	Short: "Search for cameras around a single ZIP code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSweepEnv(ctx, "sweep", sweepOutDir)
		if err != nil {
			return err
		}
		defer env.Close()

		req := sweep.Request{
			ID:         uuid.NewString(),
			PostalCode: args[0],
			Mode:       modeFromFlag(sweepFull),
		}

		return runSweep(ctx, os.Stdout, os.Stderr, env.Sweeper.Run, env.Sink, env.MapDir, req, sweepOutput{
			xlsx:      sweepXLSX,
			shapefile: sweepShapefile,
			json:      sweepJSON,
		})
	},
}

// sweepOutput selects what the sweep command writes besides delivery.
type sweepOutput struct {
	xlsx      string
	shapefile string
	json      bool
}

// runSweep runs one sweep, delivers its result and prints it. A failed
// delivery is reported on stderr after the results are printed and makes the
// command fail.
func runSweep(ctx context.Context, stdout, stderr io.Writer, run sweepFunc, sink delivery.Sink, mapDir string, req sweep.Request, out sweepOutput) error {
	rep, runErr := run(ctx, req)

	deliverErr := deliverResult(ctx, sink, req, rep, runErr)
	if deliverErr != nil {
		_, _ = fmt.Fprintf(stderr, "warning: results for %s were not delivered: %v\n", req.PostalCode, deliverErr)
		deliverErr = eris.Wrap(deliverErr, "sweep: deliver results")
	}

	if errors.Is(runErr, sweep.ErrNotFound) {
		_, _ = fmt.Fprintln(stdout, sweep.NotFoundMessage)
		return deliverErr
	}
	if runErr != nil {
		return eris.Wrap(runErr, "sweep")
	}

	if err := writeExports(rep, out.xlsx, out.shapefile); err != nil {
		return err
	}

	if out.json {
		if err := writeReportJSON(stdout, rep); err != nil {
			return err
		}
	} else {
		printReport(stdout, rep, mapDir)
	}
	return deliverErr
}

func modeFromFlag(full bool) model.ScanMode {
	if full {
		return model.ScanModeFull
	}
	return model.ScanModeQuick
}

// writeExports writes the optional spreadsheet and shapefile outputs.
func writeExports(rep *sweep.Report, xlsxPath, shpPath string) error {
	if xlsxPath != "" {
		if err := export.WriteXLSX(xlsxPath, rep.Records, rep.Failures); err != nil {
			return err
		}
		zap.L().Info("wrote spreadsheet", zap.String("path", xlsxPath), zap.Int("devices", len(rep.Records)))
	}
	if shpPath != "" {
		n, err := export.WriteShapefile(shpPath, rep.Records)
		if err != nil {
			return err
		}
		zap.L().Info("wrote shapefile", zap.String("path", shpPath), zap.Int("points", n))
	}
	return nil
}

// printReport writes the operator view of a sweep: the status line, one
// block per failed query, one line per device and the map location.
func printReport(w io.Writer, rep *sweep.Report, mapDir string) {
	fmt.Fprintln(w, rep.Summary())
	for _, line := range rep.FailureLines() {
		fmt.Fprintln(w, line)
	}
	for _, p := range rep.Payloads {
		note := ""
		switch {
		case p.DecodeErr != "":
			note = " [screenshot unreadable]"
		case !p.HasImage():
			note = " [no screenshot]"
		}
		fmt.Fprintf(w, "- %s%s\n", p.Text, note)
	}
	if rep.Map != nil {
		fmt.Fprintf(w, "Map: %s\n", filepath.Join(mapDir, rep.Map.Name))
	}
}

type reportJSON struct {
	SweepID    string `json:"sweep_id"`
	PostalCode string `json:"postal_code"`
	Mode       string `json:"mode"`
	Message    string `json:"message"`
	*model.SweepSummary
}

func writeReportJSON(w io.Writer, rep *sweep.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reportJSON{
		SweepID:      rep.SweepID,
		PostalCode:   rep.PostalCode,
		Mode:         string(rep.Mode),
		Message:      rep.Summary(),
		SweepSummary: rep.SweepSummary(),
	})
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepFull, "full", false, "run every camera signature instead of the quick RTSP query")
	sweepCmd.Flags().StringVar(&sweepOutDir, "out", "", "directory for maps and screenshots (default from config)")
	sweepCmd.Flags().StringVar(&sweepXLSX, "xlsx", "", "also write devices to this .xlsx file")
	sweepCmd.Flags().StringVar(&sweepShapefile, "shapefile", "", "also write located devices to this .shp file")
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(sweepCmd)
}
