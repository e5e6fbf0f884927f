package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/souschef-platform/souschef/internal/config"
	"github.com/souschef-platform/souschef/internal/embedding"
	"github.com/souschef-platform/souschef/internal/index"
)

// Builder turns a raw recipe dataset into the persisted index pair. The
// dataset is consumed in fixed-size chunks so peak memory stays
// proportional to the chunk size, not the dataset size.
type Builder struct {
	encoder      embedding.Encoder
	chunkSize    int
	maxRecords   int
	showProgress bool
}

// Result summarizes a completed build.
type Result struct {
	Records int
	Skipped int
}

// NewBuilder creates a builder with the configured chunking budget.
func NewBuilder(encoder embedding.Encoder, cfg config.IngestConfig) *Builder {
	return &Builder{
		encoder:    encoder,
		chunkSize:  cfg.ChunkSize,
		maxRecords: cfg.MaxRecords,
	}
}

// WithProgress enables a terminal progress bar during the build.
func (b *Builder) WithProgress() *Builder {
	b.showProgress = true
	return b
}

// Run streams the dataset from source and publishes the index pair at
// indexPath/metadataPath. Publication is atomic relative to the pair:
// everything is staged under temp paths and renamed only after the
// manifest is finalized, so a failed build never replaces a valid pair.
func (b *Builder) Run(ctx context.Context, source, indexPath, metadataPath string) (*Result, error) {
	if b.chunkSize < 1 || b.maxRecords < 1 {
		return nil, fmt.Errorf("ingest budget must be positive: chunk size %d, max records %d", b.chunkSize, b.maxRecords)
	}

	src, cleanup, err := openSource(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	defer src.Close()

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	columns, err := readColumns(reader)
	if err != nil {
		return nil, err
	}

	indexTmp := indexPath + ".tmp"
	metaTmp := metadataPath + ".tmp"
	discardStaged := func() {
		os.Remove(indexTmp)
		os.Remove(metaTmp)
	}

	metaWriter, err := index.NewMetadataWriter(metaTmp)
	if err != nil {
		return nil, err
	}
	vecWriter, err := index.NewWriter(indexTmp, b.encoder.Dimension())
	if err != nil {
		metaWriter.Close()
		discardStaged()
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if b.showProgress {
		bar = progressbar.Default(int64(b.maxRecords), "encoding recipes")
	}

	result := &Result{}
	for result.Records < b.maxRecords {
		// A chunk may be cut short by the record ceiling: only the needed
		// prefix of the final chunk is consumed.
		limit := b.chunkSize
		if remaining := b.maxRecords - result.Records; remaining < limit {
			limit = remaining
		}

		records, skipped, readErr := b.readChunk(reader, columns, limit)
		result.Skipped += skipped
		if len(records) > 0 {
			if err := b.encodeChunk(ctx, records, vecWriter, metaWriter, result, bar); err != nil {
				vecWriter.Close()
				metaWriter.Close()
				discardStaged()
				return nil, err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			vecWriter.Close()
			metaWriter.Close()
			discardStaged()
			return nil, fmt.Errorf("reading dataset: %w", readErr)
		}
	}

	if err := metaWriter.Close(); err != nil {
		vecWriter.Close()
		discardStaged()
		return nil, fmt.Errorf("closing metadata table: %w", err)
	}
	sum, err := index.MetadataChecksum(metaTmp)
	if err != nil {
		vecWriter.Close()
		discardStaged()
		return nil, fmt.Errorf("hashing metadata table: %w", err)
	}
	if err := vecWriter.Finalize(sum); err != nil {
		discardStaged()
		return nil, err
	}

	// Publish: metadata first, then the artifact whose manifest pins it.
	// A crash in between leaves an old artifact next to new metadata, which
	// the checksum verification refuses at load time.
	if err := os.Rename(metaTmp, metadataPath); err != nil {
		discardStaged()
		return nil, fmt.Errorf("publishing metadata table: %w", err)
	}
	if err := os.Rename(indexTmp, indexPath); err != nil {
		discardStaged()
		return nil, fmt.Errorf("publishing vector artifact: %w", err)
	}

	slog.Info("index build complete",
		"records", result.Records,
		"skipped", result.Skipped,
		"index", indexPath,
		"metadata", metadataPath,
	)
	return result, nil
}

// readChunk reads up to limit parseable rows. Malformed rows are skipped
// with a warning; a read failure other than EOF aborts the build.
func (b *Builder) readChunk(reader *csv.Reader, columns datasetColumns, limit int) ([]index.Record, int, error) {
	var records []index.Record
	var skipped int
	for len(records) < limit {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return records, skipped, io.EOF
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				slog.Warn("skipping malformed dataset row", "line", parseErr.Line, "error", parseErr.Err)
				continue
			}
			return records, skipped, err
		}
		rec, ok := columns.record(row)
		if !ok {
			skipped++
			slog.Warn("skipping dataset row with missing columns", "fields", len(row))
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// encodeChunk embeds one chunk and appends it to both halves of the pair.
// Chunk buffers go out of scope afterwards, keeping peak memory bounded.
func (b *Builder) encodeChunk(
	ctx context.Context,
	records []index.Record,
	vecWriter *index.Writer,
	metaWriter *index.MetadataWriter,
	result *Result,
	bar *progressbar.ProgressBar,
) error {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	vectors, err := b.encoder.EncodeBatch(ctx, texts)
	if err != nil {
		// Batch encoding failed; fall back to per-record encoding so a
		// single bad record costs itself, not the run.
		slog.Warn("batch encoding failed, encoding records individually", "error", err)
		vectors = vectors[:0]
		kept := records[:0]
		for _, r := range records {
			vec, err := b.encoder.Encode(ctx, r.Text)
			if err != nil {
				result.Skipped++
				slog.Warn("skipping record that failed to encode", "title", r.Title, "error", err)
				continue
			}
			vectors = append(vectors, vec)
			kept = append(kept, r)
		}
		records = kept
	}

	if err := vecWriter.Append(vectors); err != nil {
		return err
	}
	if err := metaWriter.Append(records); err != nil {
		return err
	}
	result.Records += len(records)
	if bar != nil {
		_ = bar.Add(len(records))
	}

	slog.Debug("chunk ingested", "records", result.Records, "chunk", len(records))
	return nil
}

// datasetColumns maps the source header to the fields we ingest.
type datasetColumns struct {
	title       int
	ingredients int
	directions  int
}

func readColumns(reader *csv.Reader) (datasetColumns, error) {
	header, err := reader.Read()
	if err != nil {
		return datasetColumns{}, fmt.Errorf("reading dataset header: %w", err)
	}
	cols := datasetColumns{title: -1, ingredients: -1, directions: -1}
	for i, name := range header {
		switch name {
		case "title":
			cols.title = i
		case "ingredients":
			cols.ingredients = i
		case "directions":
			cols.directions = i
		}
	}
	if cols.title < 0 || cols.ingredients < 0 || cols.directions < 0 {
		return datasetColumns{}, fmt.Errorf("dataset header %v lacks title/ingredients/directions", header)
	}
	return cols, nil
}

func (c datasetColumns) record(row []string) (index.Record, bool) {
	if c.title >= len(row) || c.ingredients >= len(row) || c.directions >= len(row) {
		return index.Record{}, false
	}
	return index.NewRecord(row[c.title], row[c.ingredients], row[c.directions]), true
}
