package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// reportFile is the object every archived report carries, used by Latest.
const reportFile = "report.json"

// ReportArchive implements domain.ReportArchive on object storage. Reports
// are stored under reports/<experiment>/<id>/.
type ReportArchive struct {
	reader domain.BlobReader
	writer domain.BlobWriter
}

var _ domain.ReportArchive = (*ReportArchive)(nil)

// NewReportArchive creates a ReportArchive over the given blob accessors.
func NewReportArchive(reader domain.BlobReader, writer domain.BlobWriter) *ReportArchive {
	return &ReportArchive{reader: reader, writer: writer}
}

// ReportPrefix returns the key prefix of one report.
//
//	reports/safety_areas/5f0c.../
func ReportPrefix(experiment, id string) string {
	return path.Join("reports", experiment, id) + "/"
}

// Save uploads files plus report.json and a risk.jsonl line file, and
// returns the prefix they were written under.
func (a *ReportArchive) Save(ctx context.Context, report domain.Report, files []domain.ReportFile) (string, error) {
	if report.Experiment == "" || report.ID == "" {
		return "", fmt.Errorf("s3blob: archive report: experiment and id are required")
	}
	prefix := ReportPrefix(report.Experiment, report.ID)

	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive report marshal: %w", err)
	}
	risk, err := marshalJSONL(report.Risk)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive risk marshal: %w", err)
	}

	all := []domain.ReportFile{
		{Name: reportFile, ContentType: "application/json", Data: body},
		{Name: "risk.jsonl", ContentType: "application/x-ndjson", Data: risk},
	}
	for _, f := range files {
		if f.Name != reportFile {
			all = append(all, f)
		}
	}

	for _, f := range all {
		key := prefix + f.Name
		if err := a.writer.Put(ctx, key, bytes.NewReader(f.Data), f.ContentType); err != nil {
			return "", fmt.Errorf("s3blob: archive report upload: %w", err)
		}
	}
	return prefix, nil
}

// Latest returns the most recently archived report of experiment.
func (a *ReportArchive) Latest(ctx context.Context, experiment string) (domain.Report, error) {
	infos, err := a.reader.List(ctx, path.Join("reports", experiment)+"/")
	if err != nil {
		return domain.Report{}, fmt.Errorf("s3blob: list reports of %s: %w", experiment, err)
	}

	var latest *domain.BlobInfo
	for i := range infos {
		info := &infos[i]
		if !strings.HasSuffix(info.Path, "/"+reportFile) {
			continue
		}
		if latest == nil || info.LastModified.After(latest.LastModified) ||
			(info.LastModified.Equal(latest.LastModified) && info.Path > latest.Path) {
			latest = info
		}
	}
	if latest == nil {
		return domain.Report{}, fmt.Errorf("s3blob: reports of %s: %w", experiment, domain.ErrNotFound)
	}

	rc, err := a.reader.Get(ctx, latest.Path)
	if err != nil {
		return domain.Report{}, err
	}
	defer rc.Close()

	var r domain.Report
	if err := json.NewDecoder(rc).Decode(&r); err != nil {
		return domain.Report{}, fmt.Errorf("s3blob: decode %s: %w", latest.Path, err)
	}
	return r, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
