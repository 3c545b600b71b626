package export

import (
	"fmt"
	"time"
)

// Dataset defines tabular export content. Each row holds one value per header.
type Dataset struct {
	Title       string
	Headers     []string
	Rows        [][]string
	GeneratedAt time.Time
}

// Validate checks that every row matches the header width.
func (d Dataset) Validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(d.Headers))
		}
	}
	return nil
}

func (d Dataset) generatedLabel() string {
	if d.GeneratedAt.IsZero() {
		return ""
	}
	return "Generado: " + d.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")
}
