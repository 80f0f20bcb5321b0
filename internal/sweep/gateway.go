package sweep

import (
	"context"
	"fmt"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/resilience"
	"github.com/sells-group/camera-recon/pkg/shodan"
)

// Gateway executes one query against the search backend. A failure is
// returned as a value, never as a panic or error.
type Gateway interface {
	Execute(ctx context.Context, q model.QuerySpec) ([]model.DeviceRecord, *model.SearchFailure)
}

// SearchGateway adapts a shodan.Client to Gateway.
type SearchGateway struct {
	client shodan.Client
}

// NewSearchGateway wraps client.
func NewSearchGateway(client shodan.Client) *SearchGateway {
	return &SearchGateway{client: client}
}

// Execute makes exactly one backend call for q.
func (g *SearchGateway) Execute(ctx context.Context, q model.QuerySpec) (records []model.DeviceRecord, failure *model.SearchFailure) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			failure = &model.SearchFailure{Query: q, Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	resp, err := g.client.Search(ctx, q.Query)
	if err != nil {
		return nil, &model.SearchFailure{
			Query:     q,
			Err:       err.Error(),
			Transient: resilience.IsTransient(err),
		}
	}
	if resp == nil {
		return nil, nil
	}

	records = make([]model.DeviceRecord, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		records = append(records, toRecord(m, q.Signature))
	}
	return records, nil
}

func toRecord(m shodan.Match, signature string) model.DeviceRecord {
	rec := model.DeviceRecord{
		Identity:     m.IPStr,
		Organization: m.Org,
		Product:      m.Product,
		City:         m.Location.City,
		Latitude:     m.Location.Latitude,
		Longitude:    m.Location.Longitude,
		Port:         m.Port,
		Signature:    signature,
	}
	if m.Screenshot != nil {
		rec.Screenshot = m.Screenshot.Data
		rec.ScreenshotMime = m.Screenshot.Mime
	}
	return rec
}
