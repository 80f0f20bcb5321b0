package sweep

import (
	"encoding/base64"
	"html"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/pkg/shodan"
)

const (
	unknownValue = "Unknown"
	missingCoord = "N/A"

	// DefaultImageMime is assumed when the backend omits a screenshot type.
	DefaultImageMime = "image/jpeg"
)

// ReportBuilder turns a merged result set into display payloads and a map.
type ReportBuilder struct {
	hostURL func(identity string) string
}

// NewReportBuilder creates a ReportBuilder linking devices to their Shodan
// host page.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{hostURL: shodan.HostURL}
}

// BuildPayloads produces one payload per record, in first-seen order. A
// screenshot that fails to decode degrades that payload to text only.
func (b *ReportBuilder) BuildPayloads(set *model.MergedResultSet) []model.DisplayPayload {
	records := set.Records()
	out := make([]model.DisplayPayload, 0, len(records))
	for _, rec := range records {
		p := model.DisplayPayload{
			Identity: rec.Identity,
			Text:     b.Caption(rec),
		}
		if rec.Screenshot != "" {
			img, err := decodeScreenshot(rec.Screenshot)
			if err != nil {
				zap.L().Warn("sweep: screenshot decode failed",
					zap.String("identity", rec.Identity),
					zap.Error(err),
				)
				p.DecodeErr = err.Error()
			} else {
				p.Image = img
				p.ImageMime = rec.ScreenshotMime
				if p.ImageMime == "" {
					p.ImageMime = DefaultImageMime
				}
			}
		}
		out = append(out, p)
	}
	return out
}

// Caption renders the HTML caption for one device. Every interpolated value
// is escaped.
func (b *ReportBuilder) Caption(rec model.DeviceRecord) string {
	lat, lon := missingCoord, missingCoord
	if rec.Latitude != nil {
		lat = formatCoord(*rec.Latitude)
	}
	if rec.Longitude != nil {
		lon = formatCoord(*rec.Longitude)
	}

	var sb strings.Builder
	sb.WriteString("📸 <b>Open Camera Found</b>\n")
	sb.WriteString("<b>IP:</b> " + html.EscapeString(rec.Identity) + "\n")
	sb.WriteString("<b>Product:</b> " + orUnknown(rec.Product) + "\n")
	sb.WriteString("<b>Org:</b> " + orUnknown(rec.Organization) + "\n")
	sb.WriteString("<b>Location:</b> " + orUnknown(rec.City) + " (" + lat + ", " + lon + ")\n")
	sb.WriteString("<a href='" + html.EscapeString(b.hostURL(rec.Identity)) + "'>View on Shodan</a>")
	return sb.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownValue
	}
	return html.EscapeString(s)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decodeScreenshot decodes standard base64, ignoring embedded whitespace.
func decodeScreenshot(data string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, data)
	img, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, eris.Wrap(err, "sweep: decode screenshot")
	}
	return img, nil
}
