package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// openSource resolves the dataset source into a reader. HTTP(S) URLs are
// downloaded to a temp file first (and removed on cleanup); anything else
// is treated as a local path. A fetch failure aborts the whole build.
func openSource(ctx context.Context, source string) (io.ReadCloser, func(), error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		f, err := os.Open(source)
		if err != nil {
			return nil, nil, fmt.Errorf("opening dataset: %w", err)
		}
		return f, func() {}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating dataset request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("fetching dataset: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "souschef-dataset-*.csv")
	if err != nil {
		return nil, nil, fmt.Errorf("creating temp dataset file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, nil, fmt.Errorf("downloading dataset: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, nil, fmt.Errorf("rewinding temp dataset file: %w", err)
	}

	slog.Info("dataset downloaded", "source", source, "temp", tmp.Name())
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil {
			slog.Warn("removing temp dataset file", "error", err)
		}
	}
	return tmp, cleanup, nil
}
