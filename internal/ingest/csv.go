package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Column names of the distance monitoring export.
const (
	ColumnRecipe    = "Recipe"
	ColumnMean      = "Mean"
	ColumnTimestamp = "Timestamp"
)

// S3Scheme prefixes experiment paths stored in the configured bucket.
const S3Scheme = "s3://"

// ReadCSV parses a distance export. Columns are located by header name and
// may appear in any order; unknown columns are ignored. Empty numeric cells
// read as NaN so that Clean drops them.
func ReadCSV(r io.Reader) ([]domain.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ingest: csv: missing header")
		}
		return nil, fmt.Errorf("ingest: csv: read header: %w", err)
	}

	idx := map[string]int{ColumnRecipe: -1, ColumnMean: -1, ColumnTimestamp: -1}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, ok := idx[name]; ok {
			idx[name] = i
		}
	}
	for _, name := range []string{ColumnRecipe, ColumnMean, ColumnTimestamp} {
		if idx[name] < 0 {
			return nil, fmt.Errorf("ingest: csv: missing column %q", name)
		}
	}

	var out []domain.RawRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: csv: line %d: %w", line, err)
		}

		rec := domain.RawRecord{Recipe: cell(row, idx[ColumnRecipe])}
		if rec.Mean, err = parseFloat(cell(row, idx[ColumnMean])); err != nil {
			return nil, fmt.Errorf("ingest: csv: line %d: %s: %w", line, ColumnMean, err)
		}
		if rec.Timestamp, err = parseFloat(cell(row, idx[ColumnTimestamp])); err != nil {
			return nil, fmt.Errorf("ingest: csv: line %d: %s: %w", line, ColumnTimestamp, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// CSVSource reads experiments from CSV files on disk or, for paths starting
// with S3Scheme, from object storage.
type CSVSource struct {
	paths map[string]string
	blobs domain.BlobReader
}

var _ domain.RecordSource = (*CSVSource)(nil)

// NewCSVSource creates a CSVSource over the experiment name to path mapping.
// blobs may be nil when no path uses object storage.
func NewCSVSource(paths map[string]string, blobs domain.BlobReader) *CSVSource {
	return &CSVSource{paths: paths, blobs: blobs}
}

// Experiments returns the configured experiment names.
func (s *CSVSource) Experiments() []string {
	names := make([]string, 0, len(s.paths))
	for name := range s.paths {
		names = append(names, name)
	}
	return names
}

// LoadRecords implements domain.RecordSource.
func (s *CSVSource) LoadRecords(ctx context.Context, experiment string) ([]domain.RawRecord, error) {
	path, ok := s.paths[experiment]
	if !ok {
		return nil, fmt.Errorf("ingest: experiment %q: %w", experiment, domain.ErrNotFound)
	}
	rc, err := s.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, err := ReadCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("ingest: experiment %q: %w", experiment, err)
	}
	return records, nil
}

func (s *CSVSource) open(ctx context.Context, path string) (io.ReadCloser, error) {
	if key, ok := strings.CutPrefix(path, S3Scheme); ok {
		if s.blobs == nil {
			return nil, fmt.Errorf("ingest: %s: object storage is not configured", path)
		}
		rc, err := s.blobs.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("ingest: fetch %s: %w", path, err)
		}
		return rc, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("ingest: open %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	return f, nil
}
