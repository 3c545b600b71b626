package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheetName = "Reporte"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes the title on row 1, headers on row 3 and data below them, with the
// header row frozen.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", xlsxSheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E6E6E6"}},
	})

	f.SetCellValue(xlsxSheetName, "A1", data.Title)
	f.SetCellStyle(xlsxSheetName, "A1", "A1", titleStyle)
	if label := data.generatedLabel(); label != "" {
		f.SetCellValue(xlsxSheetName, "A2", label)
	}

	const headerRow = 3
	for i, header := range data.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, headerRow)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		f.SetCellValue(xlsxSheetName, cell, header)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(data.Headers))
	f.SetCellStyle(xlsxSheetName, "A3", fmt.Sprintf("%s%d", lastCol, headerRow), headerStyle)
	f.SetColWidth(xlsxSheetName, "A", lastCol, 22)

	for i, row := range data.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, headerRow+1+i)
		values := row
		if err := f.SetSheetRow(xlsxSheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if err := f.SetPanes(xlsxSheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: fmt.Sprintf("A%d", headerRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
