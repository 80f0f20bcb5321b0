package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/monitoring"
	"github.com/sells-group/camera-recon/internal/store"
)

var sweepsCmd = &cobra.Command{
	Use:   "sweeps",
	Short: "Inspect sweep history",
	Long:  "Commands for listing and viewing past camera sweeps.",
}

// -- sweeps list --

var sweepsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past sweeps",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		zip, _ := cmd.Flags().GetString("zip")
		limit, _ := cmd.Flags().GetInt("limit")

		sweeps, err := st.ListSweeps(ctx, store.SweepFilter{
			Status:     model.SweepStatus(status),
			PostalCode: zip,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "sweeps list")
		}

		if len(sweeps) == 0 {
			fmt.Fprintln(os.Stderr, "No sweeps found.")
			return nil
		}

		formatSweepsList(os.Stdout, sweeps)
		return nil
	},
}

// -- sweeps show --

var sweepsShowCmd = &cobra.Command{
	Use:   "show <sweep-id>",
	Short: "Show full details of a sweep",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sw, err := st.GetSweep(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sweeps show")
		}

		format, _ := cmd.Flags().GetString("format")
		return writeSweep(os.Stdout, sw, format)
	},
}

// -- sweeps stats --

var sweepsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate sweep statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "sweeps stats")
		}
		formatSweepStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	sweepsListCmd.Flags().String("status", "", "filter by status (resolving, searching, not_found, complete)")
	sweepsListCmd.Flags().String("zip", "", "filter by ZIP code")
	sweepsListCmd.Flags().Int("limit", 50, "max number of sweeps to display")

	sweepsShowCmd.Flags().String("format", "json", "output format (json or yaml)")

	sweepsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	sweepsCmd.AddCommand(sweepsListCmd)
	sweepsCmd.AddCommand(sweepsShowCmd)
	sweepsCmd.AddCommand(sweepsStatsCmd)
	rootCmd.AddCommand(sweepsCmd)
}

// formatSweepsList writes a tabular list of sweeps to w.
func formatSweepsList(out io.Writer, sweeps []model.Sweep) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tZIP\tMODE\tSTATUS\tOUTCOME\tDEVICES\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---\t----\t------\t-------\t-------\t-------\t--------")

	for _, s := range sweeps {
		outcome := ""
		devices := ""
		if s.Summary != nil {
			outcome = string(s.Summary.Outcome)
			devices = fmt.Sprintf("%d", len(s.Summary.Devices))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(s.ID),
			s.PostalCode,
			s.Mode,
			s.Status,
			outcome,
			devices,
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.UpdatedAt.Sub(s.CreatedAt).Round(time.Second).String(),
		)
	}
	_ = w.Flush()
}

// formatSweepStats writes aggregate stats to w.
func formatSweepStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total sweeps:\t%d\n", s.SweepsTotal)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.SweepsComplete)
	_, _ = fmt.Fprintf(w, "  Found:\t%d\n", s.OutcomeFound)
	_, _ = fmt.Fprintf(w, "  Partial:\t%d\n", s.OutcomePartial)
	_, _ = fmt.Fprintf(w, "  Empty:\t%d\n", s.OutcomeEmpty)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", s.OutcomeFailed)
	_, _ = fmt.Fprintf(w, "ZIP not found:\t%d\n", s.SweepsNotFound)
	_, _ = fmt.Fprintf(w, "In flight:\t%d\n", s.SweepsInFlight)
	_, _ = fmt.Fprintf(w, "Queries failed:\t%d of %d (%.1f%%)\n", s.QueriesFailed, s.QueriesTotal, s.QueryFailRate*100)
	_, _ = fmt.Fprintf(w, "Devices found:\t%d\n", s.DevicesFound)
	if s.AvgDurationMs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", float64(s.AvgDurationMs)/1000)
	}
	_ = w.Flush()
}

// writeSweep encodes one sweep as json or yaml.
func writeSweep(w io.Writer, sw *model.Sweep, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sw)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sw); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown format %q (want json or yaml)", format)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
