package sweep

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html"
	"html/template"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/camera-recon/internal/model"
)

// MapZoom is the initial zoom level of the map artifact.
const MapZoom = 11

//go:embed templates/map.html.tmpl
var templateFS embed.FS

var mapTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html.tmpl"))

type mapPage struct {
	Title   string
	Center  template.JS
	Zoom    int
	Markers template.JS
}

// MapName returns the artifact file name for a sweep.
func MapName(sweepID string) string {
	return fmt.Sprintf("camera_map_%s.html", sweepID)
}

// BuildMap renders a marker for every record with both coordinates. Records
// missing either coordinate are left off the map but keep their payload.
func (b *ReportBuilder) BuildMap(set *model.MergedResultSet, center model.Coordinates, name string) (*model.MapArtifact, error) {
	art := &model.MapArtifact{Name: name, Center: center}

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, rec := range set.Records() {
		pos, ok := rec.Position()
		if !ok {
			continue
		}
		popup := b.popup(rec)
		art.Markers = append(art.Markers, model.MapMarker{
			Identity: rec.Identity,
			Position: pos,
			Popup:    popup,
		})
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       rec.Identity,
			Geometry: geom.NewPointFlat(geom.XY, []float64{pos.Longitude, pos.Latitude}),
			Properties: map[string]interface{}{
				"identity": rec.Identity,
				"popup":    popup,
			},
		})
	}

	// encoding/json escapes <, > and & so the payload is safe inside <script>.
	markers, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "sweep: encode map markers")
	}

	var buf bytes.Buffer
	err = mapTemplate.Execute(&buf, mapPage{
		Title:   "Camera map " + name,
		Center:  template.JS("[" + formatCoord(center.Latitude) + ", " + formatCoord(center.Longitude) + "]"), //nolint:gosec // formatted floats
		Zoom:    MapZoom,
		Markers: template.JS(markers), //nolint:gosec // json.Marshal output
	})
	if err != nil {
		return nil, eris.Wrap(err, "sweep: render map")
	}
	art.HTML = buf.Bytes()
	return art, nil
}

func (b *ReportBuilder) popup(rec model.DeviceRecord) string {
	id := html.EscapeString(rec.Identity)
	return "<b>" + id + "</b><br>" + orUnknown(rec.Organization) +
		"<br><a href='" + html.EscapeString(b.hostURL(rec.Identity)) + "' target='_blank'>View on Shodan</a>"
}
