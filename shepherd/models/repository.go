package models

import (
	"context"
)

// Repository contains all of the methods the API needs to interact with
// import job data. Implemented by postgres.Repository.
type Repository interface {
	importJobRepository
	importErrorRepository
}

type importJobRepository interface {
	// CreateImportJob inserts the job and returns the generated ID.
	CreateImportJob(ctx context.Context, j ImportJob) (int64, error)

	// GetImportJobByID returns nil, nil when no job matches the supplied ID.
	GetImportJobByID(ctx context.Context, jobID int64) (*ImportJob, error)

	// GetImportJobs returns a page of jobs, newest first. An empty createdBy
	// matches jobs from every submitter.
	GetImportJobs(ctx context.Context, createdBy string, limit, offset int) ([]*ImportJob, error)

	CountImportJobs(ctx context.Context, createdBy string) (int, error)

	// UpdateImportJobStatusCheckStatus updates the particular job indicated by
	// the jobID iff the job's status field matches current.
	UpdateImportJobStatusCheckStatus(ctx context.Context, jobID int64, current, new JobStatus) error

	// DeleteImportJob removes the job row. Error entries go with it via the
	// import_errors cascade.
	DeleteImportJob(ctx context.Context, jobID int64) error
}

type importErrorRepository interface {
	// GetImportJobErrors returns the job's error entries in row order.
	GetImportJobErrors(ctx context.Context, jobID int64) ([]*ImportError, error)

	CountImportErrors(ctx context.Context, jobID int64) (int, error)
}
