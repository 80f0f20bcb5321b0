// Package export writes a sweep's devices to spreadsheet and GIS formats.
package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/pkg/shodan"
)

// DeviceColumns is the header row of the device sheet.
var DeviceColumns = []string{
	"Identity", "Port", "Signature", "Product", "Organization", "City", "Latitude", "Longitude", "Shodan URL",
}

// WriteXLSX writes records to a workbook at path with a "Devices" sheet
// and, when failures is non-empty, a "Failures" sheet.
func WriteXLSX(path string, records []model.DeviceRecord, failures []model.SearchFailure) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Devices")
	if err != nil {
		return eris.Wrap(err, "export: add devices sheet")
	}
	addStringRow(sheet, DeviceColumns...)

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Identity)
		if r.Port > 0 {
			row.AddCell().SetInt(r.Port)
		} else {
			row.AddCell()
		}
		row.AddCell().SetString(r.Signature)
		row.AddCell().SetString(r.Product)
		row.AddCell().SetString(r.Organization)
		row.AddCell().SetString(r.City)
		addCoordCell(row, r.Latitude)
		addCoordCell(row, r.Longitude)
		row.AddCell().SetString(shodan.HostURL(r.Identity))
	}

	if len(failures) > 0 {
		fs, err := f.AddSheet("Failures")
		if err != nil {
			return eris.Wrap(err, "export: add failures sheet")
		}
		addStringRow(fs, "Signature", "Query", "Error", "Transient")
		for _, fl := range failures {
			row := fs.AddRow()
			row.AddCell().SetString(fl.Query.Signature)
			row.AddCell().SetString(fl.Query.Query)
			row.AddCell().SetString(fl.Err)
			row.AddCell().SetBool(fl.Transient)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save xlsx %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addCoordCell(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}
