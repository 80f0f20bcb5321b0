package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/model"
)

// shapeFields are the DBF attributes of each device point. DBF field names
// are limited to 10 characters.
var shapeFields = []shp.Field{
	shp.StringField("IDENTITY", 64),
	shp.NumberField("PORT", 6),
	shp.StringField("SIGNATURE", 32),
	shp.StringField("PRODUCT", 96),
	shp.StringField("ORG", 128),
	shp.StringField("CITY", 64),
}

// WriteShapefile writes a point shapefile (path plus sibling .shx and .dbf)
// with one point per record that has both coordinates. It returns the number
// of points written.
func WriteShapefile(path string, records []model.DeviceRecord) (int, error) {
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		path += ".shp"
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))

	writer, err := shp.Create(path, shp.POINT)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create shapefile %s", path)
	}
	closed := false
	defer func() {
		if !closed {
			writer.Close()
		}
	}()

	if err := writer.SetFields(shapeFields); err != nil {
		return 0, eris.Wrapf(err, "export: set shapefile fields %s", path)
	}

	var written, skipped int
	for _, r := range records {
		pos, ok := r.Position()
		if !ok {
			skipped++
			continue
		}
		n := int(writer.Write(&shp.Point{X: pos.Longitude, Y: pos.Latitude}))
		attrs := []any{r.Identity, r.Port, r.Signature, truncate(r.Product, 96), truncate(r.Organization, 128), truncate(r.City, 64)}
		for i, v := range attrs {
			if err := writer.WriteAttribute(n, i, v); err != nil {
				return written, eris.Wrapf(err, "export: write attribute %s", shapeFields[i].String())
			}
		}
		written++
	}

	writer.Close()
	closed = true
	if err := fixDBFName(base); err != nil {
		return written, err
	}

	if skipped > 0 {
		zap.L().Debug("export: skipped records without coordinates",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return written, nil
}

// fixDBFName moves the attribute table to <base>.dbf. go-shp joins the base
// name and "dbf" without a dot, so readers would otherwise find no table.
func fixDBFName(base string) error {
	want := base + ".dbf"
	if _, err := os.Stat(want); err == nil {
		return nil
	}
	for _, got := range []string{base + "dbf", base + "..dbf"} {
		if _, err := os.Stat(got); err != nil {
			continue
		}
		if err := os.Rename(got, want); err != nil {
			return eris.Wrapf(err, "export: rename %s", got)
		}
		return nil
	}
	return eris.Errorf("export: attribute table for %s not written", base)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
