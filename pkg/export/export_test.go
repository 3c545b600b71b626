package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Riesgo de nulidad",
		Headers: []string{"Folio", "Estudiante", "Etapa"},
		Rows: [][]string{
			{"EXP-2025-000001", "Ana Pérez", "NOTIFIED"},
			{"EXP-2025-000002", "Diego Núñez", "INVESTIGATION"},
		},
		GeneratedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
	}
}

func TestDatasetValidate(t *testing.T) {
	assert.Error(t, Dataset{}.Validate())
	bad := sampleDataset()
	bad.Rows = append(bad.Rows, []string{"only-one"})
	assert.Error(t, bad.Validate())
	assert.NoError(t, sampleDataset().Validate())
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, utf8BOM))

	records, err := csv.NewReader(bytes.NewReader(out[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Folio", "Estudiante", "Etapa"}, records[0])
	assert.Equal(t, "Ana Pérez", records[1][1])
}

func TestCSVExporterNeutralisesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"Folio", "Estudiante", "Días"},
		Rows:    [][]string{{"EXP-1", "=HYPERLINK(\"http://x\")", "-3"}},
	}
	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "'=HYPERLINK(\"http://x\")", records[1][1])
	assert.Equal(t, "-3", records[1][2])
}

func TestPDFExporterRender(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 60; i++ {
		data.Rows = append(data.Rows, []string{"EXP", "Estudiante", "OPENED"})
	}
	out, err := NewPDFExporter().Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue(xlsxSheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Riesgo de nulidad", title)

	rows, err := f.GetRows(xlsxSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Folio", "Estudiante", "Etapa"}, rows[2])
	assert.Equal(t, "Diego Núñez", rows[4][1])
}

func TestExportersRejectEmptyHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewXLSXExporter().Render(Dataset{})
	assert.Error(t, err)
}
