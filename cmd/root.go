package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "camera-recon",
	Short: "Find internet-exposed cameras around a ZIP code",
	Long: `camera-recon searches a device-search engine for internet-exposed
cameras near a US ZIP code and reports what it finds with screenshots and
an interactive map.

A quick scan issues a single RTSP query. A full scan issues one query per
known camera signature (RTSP, GoAhead, MJPEG-Streamer, Dahua and generic
"Network Camera" pages) and merges the results by device identity.

Example:
  camera-recon sweep 90001
  camera-recon sweep 90001 --full --xlsx cameras.xlsx`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
