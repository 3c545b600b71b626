package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// CSVExporter renders datasets as CSV with a UTF-8 byte order mark so spreadsheet
// tools keep accented names intact.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	buf := bytes.NewBuffer(append([]byte(nil), utf8BOM...))
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write(neutralise(row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// neutralise prefixes cells that spreadsheets would evaluate as formulas. Case
// descriptions and student names are free text typed by staff; plain numbers
// such as negative day counts pass through.
func neutralise(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				cell = "'" + cell
			}
		}
		out[i] = cell
	}
	return out
}
