package domain

import "context"

// RecordSource supplies the raw distance rows of an experiment.
type RecordSource interface {
	LoadRecords(ctx context.Context, experiment string) ([]RawRecord, error)
}

// TaskResultSource supplies executed tasks for plan duration statistics.
type TaskResultSource interface {
	LoadTaskResults(ctx context.Context, experiment string) ([]TaskResult, error)
}

// RecordImporter loads raw rows into a repository. Importing into an
// experiment that already holds data fails with ErrAlreadyExists.
type RecordImporter interface {
	ImportRecords(ctx context.Context, experiment string, records []RawRecord) (int64, error)
}

// TaskResultImporter loads task results into a repository with the same
// overwrite rule as RecordImporter.
type TaskResultImporter interface {
	ImportTaskResults(ctx context.Context, experiment string, results []TaskResult) (int64, error)
}
