package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// ReportFile is one rendered artifact of a report.
type ReportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReportArchive keeps rendered reports in object storage.
type ReportArchive interface {
	Save(ctx context.Context, report Report, files []ReportFile) (prefix string, err error)
	Latest(ctx context.Context, experiment string) (Report, error)
}
