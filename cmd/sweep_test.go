//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/sweep"
)

func TestModeFromFlag(t *testing.T) {
	assert.Equal(t, model.ScanModeFull, modeFromFlag(true))
	assert.Equal(t, model.ScanModeQuick, modeFromFlag(false))
}

func TestPrintReport_Found(t *testing.T) {
	rep := sampleReport("sweep-1", "90001")
	rep.Payloads = append(rep.Payloads,
		model.DisplayPayload{Identity: "5.6.7.8", Text: "5.6.7.8 Unknown N/A"},
		model.DisplayPayload{Identity: "9.9.9.9", Text: "9.9.9.9 Unknown N/A", DecodeErr: "illegal base64"},
	)

	var buf bytes.Buffer
	printReport(&buf, rep, "maps")
	out := buf.String()

	assert.Contains(t, out, "Found 1 cameras near 90001.")
	assert.Contains(t, out, "- 1.2.3.4 Acme ISP Los Angeles\n")
	assert.Contains(t, out, "5.6.7.8 Unknown N/A [no screenshot]")
	assert.Contains(t, out, "9.9.9.9 Unknown N/A [screenshot unreadable]")
	assert.Contains(t, out, "Map: "+filepath.Join("maps", "camera_map_sweep-1.html"))
}

func TestPrintReport_FailedQueries(t *testing.T) {
	rep := sampleReport("sweep-2", "90001")
	rep.Records = nil
	rep.Payloads = nil
	rep.Map = nil
	rep.Outcome = model.OutcomeFailed
	rep.Failures = []model.SearchFailure{{Query: rep.Queries[0], Err: "rate limited"}}

	var buf bytes.Buffer
	printReport(&buf, rep, "maps")
	out := buf.String()

	assert.Contains(t, out, "No cameras found: 1 of 1 queries failed.")
	assert.Contains(t, out, "Error running query: port:554 has_screenshot:true geo:33.97,-118.25\nrate limited")
	assert.NotContains(t, out, "Map:")
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReportJSON(&buf, sampleReport("sweep-3", "90001")))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "sweep-3", got["sweep_id"])
	assert.Equal(t, "90001", got["postal_code"])
	assert.Equal(t, "quick", got["mode"])
	assert.Equal(t, "found", got["outcome"])
	assert.Equal(t, "camera_map_sweep-3.html", got["map_name"])
	assert.Equal(t, "Found 1 cameras near 90001.", got["message"])
	assert.EqualValues(t, 1500, got["duration_ms"])

	devices, ok := got["devices"].([]any)
	require.True(t, ok)
	assert.Len(t, devices, 1)
}

func TestWriteExports(t *testing.T) {
	dir := t.TempDir()
	xlsxPath := filepath.Join(dir, "cams.xlsx")
	shpPath := filepath.Join(dir, "cams.shp")

	require.NoError(t, writeExports(sampleReport("sweep-4", "90001"), xlsxPath, shpPath))

	_, err := os.Stat(xlsxPath)
	assert.NoError(t, err)
	_, err = os.Stat(shpPath)
	assert.NoError(t, err)
}

func TestWriteExports_NoneRequested(t *testing.T) {
	assert.NoError(t, writeExports(sampleReport("sweep-5", "90001"), "", ""))
}

func fixedRun(rep *sweep.Report, err error) sweepFunc {
	return func(_ context.Context, _ sweep.Request) (*sweep.Report, error) {
		return rep, err
	}
}

func TestRunSweep_PrintsAndDelivers(t *testing.T) {
	sink := &recordingSink{}
	req := sweep.Request{ID: "s1", PostalCode: "90001", Mode: model.ScanModeQuick}
	var stdout, stderr bytes.Buffer

	err := runSweep(context.Background(), &stdout, &stderr, fixedRun(sampleReport("s1", "90001"), nil), sink, "maps", req, sweepOutput{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Found 1 cameras near 90001.")
	assert.Empty(t, stderr.String())
	assert.Len(t, sink.deliveries(), 1)
}

func TestRunSweep_DeliveryFailureFailsCommand(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	req := sweep.Request{ID: "s2", PostalCode: "90001", Mode: model.ScanModeQuick}
	var stdout, stderr bytes.Buffer

	err := runSweep(context.Background(), &stdout, &stderr, fixedRun(sampleReport("s2", "90001"), nil), sink, "maps", req, sweepOutput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, stdout.String(), "Found 1 cameras near 90001.", "results still printed")
	assert.Contains(t, stderr.String(), "warning: results for 90001 were not delivered")
}

func TestRunSweep_NotFound(t *testing.T) {
	sink := &recordingSink{}
	req := sweep.Request{ID: "s3", PostalCode: "00000", Mode: model.ScanModeQuick}
	var stdout, stderr bytes.Buffer

	err := runSweep(context.Background(), &stdout, &stderr, fixedRun(nil, sweep.ErrNotFound), sink, "maps", req, sweepOutput{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), sweep.NotFoundMessage)
	require.Len(t, sink.deliveries(), 1)
	assert.Equal(t, "s3", sink.deliveries()[0].SweepID)
}

func TestRunSweep_NotFoundDeliveryFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("ftp down")}
	req := sweep.Request{ID: "s4", PostalCode: "00000", Mode: model.ScanModeQuick}
	var stdout, stderr bytes.Buffer

	err := runSweep(context.Background(), &stdout, &stderr, fixedRun(nil, sweep.ErrNotFound), sink, "maps", req, sweepOutput{})
	require.Error(t, err)
	assert.Contains(t, stdout.String(), sweep.NotFoundMessage)
	assert.Contains(t, stderr.String(), "warning:")
}

func TestRunSweep_RunError(t *testing.T) {
	sink := &recordingSink{}
	var stdout, stderr bytes.Buffer

	err := runSweep(context.Background(), &stdout, &stderr, fixedRun(nil, errors.New("boom")), sink, "maps",
		sweep.Request{ID: "s5", PostalCode: "90001"}, sweepOutput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, sink.deliveries())
}

func TestRunSweep_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runSweep(context.Background(), &stdout, &stderr, fixedRun(sampleReport("s6", "90001"), nil), nil, "maps",
		sweep.Request{ID: "s6", PostalCode: "90001"}, sweepOutput{json: true})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "s6", got["sweep_id"])
}
