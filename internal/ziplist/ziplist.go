// Package ziplist reads postal-code lists for batch sweeps from CSV or XLSX.
package ziplist

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// headerNames are first-row values treated as a column header, not a code.
var headerNames = map[string]bool{
	"zip":         true,
	"zipcode":     true,
	"zip_code":    true,
	"postal":      true,
	"postalcode":  true,
	"postal_code": true,
}

// ReadFile reads postal codes from the first column of a .csv or .xlsx file.
// Blank rows, '#' comments, a header row and duplicates are skipped; order
// is preserved.
func ReadFile(ctx context.Context, path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ziplist: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	}
}

// ReadCSV reads postal codes from the first column of r.
func ReadCSV(ctx context.Context, r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var c collector
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ziplist: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ziplist: read csv row")
		}
		if len(record) > 0 {
			c.add(record[0])
		}
	}
	return c.codes, nil
}

func readXLSX(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ziplist: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ziplist: workbook has no sheets")
	}

	var c collector
	for _, row := range f.Sheets[0].Rows {
		if row == nil || len(row.Cells) == 0 {
			continue
		}
		c.add(row.Cells[0].String())
	}
	return c.codes, nil
}

type collector struct {
	codes []string
	seen  map[string]bool
	rows  int
}

func (c *collector) add(raw string) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return
	}
	c.rows++
	if c.rows == 1 && headerNames[strings.ToLower(code)] {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[code] {
		return
	}
	c.seen[code] = true
	c.codes = append(c.codes, code)
}
