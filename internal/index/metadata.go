package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

var metadataHeader = []string{"title", "ingredients", "directions", "text"}

// MetadataWriter streams recipe records to the tabular metadata file,
// row-aligned with the vector artifact's insertion order.
type MetadataWriter struct {
	f *os.File
	w *csv.Writer
}

// NewMetadataWriter creates the metadata file at path and writes the header.
func NewMetadataWriter(path string) (*MetadataWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating metadata file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(metadataHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing metadata header: %w", err)
	}
	return &MetadataWriter{f: f, w: w}, nil
}

// Append writes a chunk of records as CSV rows.
func (m *MetadataWriter) Append(records []Record) error {
	for _, r := range records {
		if err := m.w.Write([]string{r.Title, r.Ingredients, r.Directions, r.Text}); err != nil {
			return fmt.Errorf("writing metadata row: %w", err)
		}
	}
	m.w.Flush()
	return m.w.Error()
}

// Close flushes and closes the metadata file.
func (m *MetadataWriter) Close() error {
	m.w.Flush()
	if err := m.w.Error(); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}

// ReadMetadata parses the metadata table and returns its records together
// with the SHA-256 checksum of the raw file, used for pair verification.
func ReadMetadata(path string) ([]Record, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(metadataHeader)

	header, err := r.Read()
	if err != nil {
		return nil, "", fmt.Errorf("reading metadata header: %w", err)
	}
	for i, name := range metadataHeader {
		if header[i] != name {
			return nil, "", fmt.Errorf("unexpected metadata column %d: got %q, want %q", i, header[i], name)
		}
	}

	var records []Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("reading metadata row %d: %w", len(records), err)
		}
		records = append(records, Record{
			Title:       row[0],
			Ingredients: row[1],
			Directions:  row[2],
			Text:        row[3],
		})
	}
	return records, hex.EncodeToString(sum[:]), nil
}

// MetadataChecksum returns the SHA-256 checksum of the metadata file.
func MetadataChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
