//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/store"
	"github.com/sells-group/camera-recon/internal/sweep"
)

type serveFixture struct {
	srv    *server
	store  store.Store
	sink   *recordingSink
	mapDir string

	mu   sync.Mutex
	reqs []sweep.Request
}

func newServeFixture(t *testing.T, run sweepFunc) *serveFixture {
	t.Helper()
	f := &serveFixture{store: testStore(t), sink: &recordingSink{}, mapDir: t.TempDir()}
	if run == nil {
		run = func(_ context.Context, req sweep.Request) (*sweep.Report, error) {
			return sampleReport(req.ID, req.PostalCode), nil
		}
	}
	recorded := func(ctx context.Context, req sweep.Request) (*sweep.Report, error) {
		f.mu.Lock()
		f.reqs = append(f.reqs, req)
		f.mu.Unlock()
		return run(ctx, req)
	}
	f.srv = newServer(context.Background(), f.store, recorded, f.sink, f.mapDir)
	return f
}

func (f *serveFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.srv.routes().ServeHTTP(w, req)
	return w
}

func TestServe_Health(t *testing.T) {
	f := newServeFixture(t, nil)
	w := f.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServe_CreateSweep_Accepted(t *testing.T) {
	f := newServeFixture(t, nil)
	w := f.do(http.MethodPost, "/sweeps", `{"postal_code":"90001","mode":"full"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "90001", resp["postal_code"])
	assert.Equal(t, "full", resp["mode"])
	require.NotEmpty(t, resp["sweep_id"])

	f.srv.wait()

	f.mu.Lock()
	require.Len(t, f.reqs, 1)
	assert.Equal(t, resp["sweep_id"], f.reqs[0].ID)
	assert.Equal(t, model.ScanModeFull, f.reqs[0].Mode)
	f.mu.Unlock()

	got := f.sink.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, resp["sweep_id"], got[0].SweepID)
}

func TestServe_CreateSweep_DefaultsToQuick(t *testing.T) {
	f := newServeFixture(t, nil)
	w := f.do(http.MethodPost, "/sweeps", `{"postal_code":" 90001 "}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	f.srv.wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.reqs, 1)
	assert.Equal(t, model.ScanModeQuick, f.reqs[0].Mode)
	assert.Equal(t, "90001", f.reqs[0].PostalCode)
}

func TestServe_CreateSweep_NotFoundDelivered(t *testing.T) {
	f := newServeFixture(t, func(context.Context, sweep.Request) (*sweep.Report, error) {
		return nil, sweep.ErrNotFound
	})
	w := f.do(http.MethodPost, "/sweeps", `{"postal_code":"00000"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	f.srv.wait()

	got := f.sink.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, model.OutcomeNotFound, got[0].Outcome)
	assert.Equal(t, "00000", got[0].PostalCode)
}

func TestServe_CreateSweep_BadRequests(t *testing.T) {
	f := newServeFixture(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{not json`, "invalid request body"},
		{"missing postal code", `{"mode":"quick"}`, "postal_code is required"},
		{"unknown mode", `{"postal_code":"90001","mode":"deep"}`, "mode must be quick or full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/sweeps", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}

	f.srv.wait()
	assert.Empty(t, f.reqs)
}

func TestServe_ListSweeps(t *testing.T) {
	f := newServeFixture(t, nil)
	ctx := context.Background()
	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, f.store.CreateSweep(ctx, &model.Sweep{
			ID: id, PostalCode: "90001", Mode: model.ScanModeQuick, Status: model.SweepStatusResolving,
		}))
	}
	require.NoError(t, f.store.CreateSweep(ctx, &model.Sweep{
		ID: "s3", PostalCode: "10001", Mode: model.ScanModeFull, Status: model.SweepStatusResolving,
	}))

	w := f.do(http.MethodGet, "/sweeps?zip=90001", "")
	require.Equal(t, http.StatusOK, w.Code)

	var sweeps []model.Sweep
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sweeps))
	assert.Len(t, sweeps, 2)
	for _, s := range sweeps {
		assert.Equal(t, "90001", s.PostalCode)
	}
}

func TestServe_ListSweeps_EmptyIsArray(t *testing.T) {
	f := newServeFixture(t, nil)
	w := f.do(http.MethodGet, "/sweeps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestServe_ListSweeps_BadLimit(t *testing.T) {
	f := newServeFixture(t, nil)
	w := f.do(http.MethodGet, "/sweeps?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/sweeps?offset=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServe_GetSweep(t *testing.T) {
	f := newServeFixture(t, nil)
	require.NoError(t, f.store.CreateSweep(context.Background(), &model.Sweep{
		ID: "s1", PostalCode: "90001", Mode: model.ScanModeQuick, Status: model.SweepStatusResolving,
	}))

	w := f.do(http.MethodGet, "/sweeps/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sw model.Sweep
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sw))
	assert.Equal(t, "s1", sw.ID)
	assert.Equal(t, model.SweepStatusResolving, sw.Status)

	w = f.do(http.MethodGet, "/sweeps/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "sweep not found")
}

func TestServe_Map(t *testing.T) {
	f := newServeFixture(t, nil)
	name := sweep.MapName("s1")
	require.NoError(t, os.WriteFile(filepath.Join(f.mapDir, name), []byte("<html>map</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.mapDir, "secret.txt"), []byte("nope"), 0o644))

	w := f.do(http.MethodGet, "/maps/"+name, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<html>map</html>")

	for _, target := range []string{"/maps/secret.txt", "/maps/camera_map_missing.html", "/maps/..%2Fsecret.txt"} {
		w = f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, w.Code, target)
	}
}

func TestServe_CORS(t *testing.T) {
	f := newServeFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dashboard.example")
	w := httptest.NewRecorder()
	f.srv.routes().ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest(http.MethodOptions, "/sweeps", nil)
	pre.Header.Set("Origin", "http://dashboard.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	f.srv.routes().ServeHTTP(w, pre)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestServe_BackgroundUsesServerContext(t *testing.T) {
	started := make(chan struct{})
	f := newServeFixture(t, func(ctx context.Context, req sweep.Request) (*sweep.Report, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
		return sampleReport(req.ID, req.PostalCode), nil
	})

	w := f.do(http.MethodPost, "/sweeps", `{"postal_code":"90001"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	<-started
	f.srv.wait()

	// The request context ended with the response; the sweep still completed.
	assert.Len(t, f.sink.deliveries(), 1)
}
