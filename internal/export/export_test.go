package export

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/camera-recon/internal/model"
)

func ptr(f float64) *float64 { return &f }

func sampleRecords() []model.DeviceRecord {
	return []model.DeviceRecord{
		{Identity: "1.2.3.4", Port: 554, Signature: "rtsp", Product: "Hikvision", Organization: "Acme ISP",
			City: "Los Angeles", Latitude: ptr(33.96), Longitude: ptr(-118.24)},
		{Identity: "5.6.7.8", Signature: "dahua"},
		{Identity: "9.9.9.9", Port: 81, Signature: "goahead", Latitude: ptr(34.01), Longitude: ptr(-118.3)},
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.xlsx")
	failures := []model.SearchFailure{{Query: model.QuerySpec{Signature: "mjpeg-streamer", Query: "q"}, Err: "timeout", Transient: true}}

	require.NoError(t, WriteXLSX(path, sampleRecords(), failures))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	devices := f.Sheet["Devices"]
	require.NotNil(t, devices)
	require.Len(t, devices.Rows, 4)
	assert.Equal(t, "Identity", devices.Rows[0].Cells[0].String())
	assert.Equal(t, "1.2.3.4", devices.Rows[1].Cells[0].String())
	assert.Equal(t, "554", devices.Rows[1].Cells[1].String())
	assert.Equal(t, "https://www.shodan.io/host/1.2.3.4", devices.Rows[1].Cells[8].String())

	fs := f.Sheet["Failures"]
	require.NotNil(t, fs)
	require.Len(t, fs.Rows, 2)
	assert.Equal(t, "mjpeg-streamer", fs.Rows[1].Cells[0].String())
}

func TestWriteXLSX_NoFailuresSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.xlsx")
	require.NoError(t, WriteXLSX(path, nil, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 1)
}

func TestWriteShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.shp")

	n, err := WriteShapefile(path, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dir := filepath.Dir(path)
	assert.FileExists(t, filepath.Join(dir, "devices.dbf"))
	assert.FileExists(t, filepath.Join(dir, "devices.shx"))
	assert.NoFileExists(t, filepath.Join(dir, "devicesdbf"))

	reader, err := shp.Open(path)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	require.Len(t, fields, len(shapeFields))
	assert.Equal(t, "IDENTITY", fields[0].String())

	var ids []string
	var points []*shp.Point
	for reader.Next() {
		_, shape := reader.Shape()
		p, ok := shape.(*shp.Point)
		require.True(t, ok)
		points = append(points, p)
		ids = append(ids, strings.TrimSpace(strings.TrimRight(reader.Attribute(0), "\x00")))
	}
	assert.Equal(t, []string{"1.2.3.4", "9.9.9.9"}, ids)
	require.Len(t, points, 2)
	assert.InDelta(t, -118.24, points[0].X, 1e-9)
	assert.InDelta(t, 33.96, points[0].Y, 1e-9)
}

func TestWriteShapefile_AddsExtension(t *testing.T) {
	dir := t.TempDir()

	n, err := WriteShapefile(filepath.Join(dir, "devices"), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(dir, "devices.shp"))
	assert.FileExists(t, filepath.Join(dir, "devices.dbf"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
}
