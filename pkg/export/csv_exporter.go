package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders tables into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// ContentType reports the MIME type of rendered documents.
func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

// Extension reports the file extension of rendered documents.
func (e *CSVExporter) Extension() string { return "csv" }

// Render produces CSV encoded bytes for the table. The title is not written.
func (e *CSVExporter) Render(table Table) ([]byte, error) {
	if err := table.validate("csv"); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(table.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	if err := writer.WriteAll(table.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
