// Package delivery hands finished sweep reports to their destinations.
package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/sweep"
)

// Delivery is everything a sink may publish for one sweep.
type Delivery struct {
	SweepID      string
	PostalCode   string
	Mode         model.ScanMode
	Outcome      model.SweepOutcome
	Summary      string
	FailureLines []string
	Payloads     []model.DisplayPayload
	Map          *model.MapArtifact
}

// FromReport builds a Delivery from a sweep report.
func FromReport(rep *sweep.Report) Delivery {
	return Delivery{
		SweepID:      rep.SweepID,
		PostalCode:   rep.PostalCode,
		Mode:         rep.Mode,
		Outcome:      rep.Outcome,
		Summary:      rep.Summary(),
		FailureLines: rep.FailureLines(),
		Payloads:     rep.Payloads,
		Map:          rep.Map,
	}
}

// NotFound builds the Delivery sent when a postal code does not resolve.
func NotFound(sweepID, postalCode string, mode model.ScanMode) Delivery {
	return Delivery{
		SweepID:    sweepID,
		PostalCode: postalCode,
		Mode:       mode,
		Outcome:    model.OutcomeNotFound,
		Summary:    sweep.NotFoundMessage,
	}
}

// Sink publishes a Delivery. The sweep does not depend on the outcome
// beyond logging the error.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Multi fans a Delivery out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, d Delivery) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, d); err != nil {
			zap.L().Warn("delivery: sink failed", zap.String("sweep_id", d.SweepID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// document is the JSON form of a Delivery written by the directory, webhook
// and FTP sinks.
type document struct {
	SweepID    string        `json:"sweep_id"`
	PostalCode string        `json:"postal_code"`
	Mode       string        `json:"mode"`
	Outcome    string        `json:"outcome"`
	Summary    string        `json:"summary"`
	Failures   []string      `json:"failures,omitempty"`
	Payloads   []payloadDoc  `json:"payloads"`
	Map        *mapReference `json:"map,omitempty"`
}

type payloadDoc struct {
	Identity    string `json:"identity"`
	Text        string `json:"text"`
	Image       string `json:"image,omitempty"`
	ImageMime   string `json:"image_mime,omitempty"`
	ImageFile   string `json:"image_file,omitempty"`
	DecodeError string `json:"decode_error,omitempty"`
}

type mapReference struct {
	Name    string `json:"name"`
	Markers int    `json:"markers"`
}

// encodeDocument renders d. Images are inlined as base64 when inline is
// true and referenced by file name otherwise.
func encodeDocument(d Delivery, inline bool) ([]byte, error) {
	doc := document{
		SweepID:    d.SweepID,
		PostalCode: d.PostalCode,
		Mode:       string(d.Mode),
		Outcome:    string(d.Outcome),
		Summary:    d.Summary,
		Failures:   d.FailureLines,
		Payloads:   make([]payloadDoc, 0, len(d.Payloads)),
	}
	for _, p := range d.Payloads {
		pd := payloadDoc{Identity: p.Identity, Text: p.Text, DecodeError: p.DecodeErr}
		if p.HasImage() {
			pd.ImageMime = p.ImageMime
			if inline {
				pd.Image = base64.StdEncoding.EncodeToString(p.Image)
			} else {
				pd.ImageFile = imageFileName(p)
			}
		}
		doc.Payloads = append(doc.Payloads, pd)
	}
	if d.Map != nil {
		doc.Map = &mapReference{Name: d.Map.Name, Markers: len(d.Map.Markers)}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "delivery: encode document")
	}
	return b, nil
}

// imageFileName returns a filesystem-safe name for a payload's screenshot.
func imageFileName(p model.DisplayPayload) string {
	return safeName(p.Identity) + imageExt(p.ImageMime)
}

func imageExt(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

func safeName(s string) string {
	if s == "." || s == ".." {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
