package sweep

import (
	"context"
	"sync"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/pkg/geocode"
	"github.com/sells-group/camera-recon/pkg/shodan"
)

func ptr(f float64) *float64 { return &f }

// fakeGeocoder answers from a fixed table; unknown codes are unmatched.
type fakeGeocoder struct {
	known map[string]model.Coordinates
	err   error
	calls int
}

func (f *fakeGeocoder) LookupPostalCode(_ context.Context, q geocode.PostalQuery) (*geocode.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.known[q.PostalCode]
	if !ok {
		return &geocode.Result{}, nil
	}
	return &geocode.Result{Latitude: c.Latitude, Longitude: c.Longitude, Matched: true, Source: "fake"}, nil
}

// scriptedGateway returns canned results per call index.
type scriptedGateway struct {
	mu       sync.Mutex
	results  map[int][]model.DeviceRecord
	failures map[int]string
	queries  []model.QuerySpec
}

func (g *scriptedGateway) Execute(_ context.Context, q model.QuerySpec) ([]model.DeviceRecord, *model.SearchFailure) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := len(g.queries)
	g.queries = append(g.queries, q)
	if msg, ok := g.failures[idx]; ok {
		return nil, &model.SearchFailure{Query: q, Err: msg}
	}
	out := make([]model.DeviceRecord, 0, len(g.results[idx]))
	for _, r := range g.results[idx] {
		r.Signature = q.Signature
		out = append(out, r)
	}
	return out, nil
}

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queries)
}

type countingPacer struct {
	pauses int
}

func (p *countingPacer) Pause(context.Context) error {
	p.pauses++
	return nil
}

// fakeShodan implements shodan.Client.
type fakeShodan struct {
	resp  *shodan.SearchResponse
	err   error
	panic any
	calls int
}

func (f *fakeShodan) Search(_ context.Context, _ string) (*shodan.SearchResponse, error) {
	f.calls++
	if f.panic != nil {
		panic(f.panic)
	}
	return f.resp, f.err
}

type historyEvent struct {
	id      string
	status  model.SweepStatus
	summary *model.SweepSummary
}

type fakeHistory struct {
	mu      sync.Mutex
	created []*model.Sweep
	events  []historyEvent
	err     error
}

func (h *fakeHistory) CreateSweep(_ context.Context, sw *model.Sweep) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, sw)
	return h.err
}

func (h *fakeHistory) UpdateSweepStatus(_ context.Context, id string, status model.SweepStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, historyEvent{id: id, status: status})
	return h.err
}

func (h *fakeHistory) CompleteSweep(_ context.Context, id string, status model.SweepStatus, summary *model.SweepSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, historyEvent{id: id, status: status, summary: summary})
	return h.err
}

func (h *fakeHistory) statuses() []model.SweepStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.SweepStatus, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.status)
	}
	return out
}
