package sweep

import (
	"strconv"

	"github.com/sells-group/camera-recon/internal/model"
)

// Signature is a query fragment matching one camera product or protocol.
type Signature struct {
	Name     string
	Fragment string
}

// screenshotFilter restricts every query to hosts with a captured screenshot.
const screenshotFilter = "has_screenshot:true"

var rtspSignature = Signature{Name: "rtsp", Fragment: "port:554"}

// fullSignatures is ordered by dedup seniority: a device matched by an
// earlier signature keeps that signature's record.
var fullSignatures = []Signature{
	rtspSignature,
	{Name: "goahead", Fragment: `port:81 product:"GoAhead-Webs"`},
	{Name: "mjpeg-streamer", Fragment: `"server: MJPEG-Streamer"`},
	{Name: "dahua", Fragment: `product:"Dahua"`},
	{Name: "network-camera", Fragment: `title:"Network Camera"`},
}

// Signatures returns the signatures issued for mode.
func Signatures(mode model.ScanMode) []Signature {
	if mode == model.ScanModeFull {
		out := make([]Signature, len(fullSignatures))
		copy(out, fullSignatures)
		return out
	}
	return []Signature{rtspSignature}
}

// Plan builds the ordered queries for a sweep around c. Quick mode (and any
// unrecognized mode) yields the single RTSP query. Proximity is left to the
// backend's geo filter.
func Plan(c model.Coordinates, mode model.ScanMode) []model.QuerySpec {
	geo := GeoFilter(c)
	sigs := Signatures(mode)
	out := make([]model.QuerySpec, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, model.QuerySpec{
			Signature: sig.Name,
			Query:     sig.Fragment + " " + screenshotFilter + " " + geo,
		})
	}
	return out
}

// GeoFilter formats the backend's geo:<lat>,<lon> filter using the shortest
// exact representation of each coordinate.
func GeoFilter(c model.Coordinates) string {
	return "geo:" + strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}
