package delivery

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DirSink writes deliveries to a local directory: the map artifact at the
// root (where the HTTP server serves it) and the report plus screenshots
// under a per-sweep subdirectory.
type DirSink struct {
	dir string
}

// NewDirSink creates a DirSink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Dir returns the root directory.
func (s *DirSink) Dir() string {
	return s.dir
}

func (s *DirSink) Deliver(_ context.Context, d Delivery) error {
	sweepDir := filepath.Join(s.dir, safeName(d.SweepID))
	if err := os.MkdirAll(sweepDir, 0o755); err != nil {
		return eris.Wrapf(err, "delivery: create dir %s", sweepDir)
	}

	if d.Map != nil {
		mapPath := filepath.Join(s.dir, filepath.Base(d.Map.Name))
		if err := os.WriteFile(mapPath, d.Map.HTML, 0o644); err != nil {
			return eris.Wrapf(err, "delivery: write map %s", mapPath)
		}
	}

	for _, p := range d.Payloads {
		if !p.HasImage() {
			continue
		}
		imgPath := filepath.Join(sweepDir, imageFileName(p))
		if err := os.WriteFile(imgPath, p.Image, 0o644); err != nil {
			return eris.Wrapf(err, "delivery: write image %s", imgPath)
		}
	}

	doc, err := encodeDocument(d, false)
	if err != nil {
		return err
	}
	reportPath := filepath.Join(sweepDir, "report.json")
	if err := os.WriteFile(reportPath, doc, 0o644); err != nil {
		return eris.Wrapf(err, "delivery: write report %s", reportPath)
	}

	zap.L().Info("delivery: wrote sweep report",
		zap.String("sweep_id", d.SweepID),
		zap.String("path", sweepDir),
		zap.Int("payloads", len(d.Payloads)),
	)
	return nil
}
