package models

import (
	"bytes"
	"context"
	"database/sql"
	goerrors "errors"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	cerrors "github.com/ShepherdCMS/shepherd-app/shepherd/errors"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
	"github.com/ShepherdCMS/shepherd-app/uploads"
)

// Ensure service satisfies the interface
var _ Service = &service{}

// Service contains all of the methods needed to orchestrate roster imports
type Service interface {
	// StartImport validates the roster's structure, stages the file, and
	// records the pending job. The caller is responsible for placing the
	// job on the queue.
	StartImport(ctx context.Context, fileName string, data io.Reader, createdBy string) (*ImportJob, error)

	GetJob(ctx context.Context, jobID int64) (*ImportJob, error)

	GetJobAndErrors(ctx context.Context, jobID int64) (*ImportJob, []*ImportError, error)

	// GetJobs returns one page of jobs plus the total count across all pages.
	GetJobs(ctx context.Context, createdBy string, page, limit int) ([]*ImportJob, int, error)

	CancelJob(ctx context.Context, jobID int64) (int64, error)

	DeleteJob(ctx context.Context, jobID int64) error
}

func NewService(r Repository, fileHandler uploads.FileHandler, maxRows int) Service {
	return &service{
		repository:  r,
		fileHandler: fileHandler,
		logger:      log.StandardLogger(),
		maxRows:     maxRows,
	}
}

type service struct {
	repository Repository

	fileHandler uploads.FileHandler

	logger *log.Logger

	maxRows int
}

func (s *service) StartImport(ctx context.Context, fileName string, data io.Reader, createdBy string) (*ImportJob, error) {
	// Buffer the upload so the staged copy is byte for byte what was validated
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read roster upload")
	}

	r, err := roster.Parse(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}

	if len(r.Rows) > s.maxRows {
		return nil, &cerrors.RosterSizeError{Rows: len(r.Rows), Limit: s.maxRows}
	}

	path, err := s.fileHandler.Save(ctx, fileName, bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrap(err, "failed to stage roster file")
	}

	j := ImportJob{
		FileName:     fileName,
		FilePath:     path,
		Status:       JobStatusPending,
		TotalRecords: len(r.Rows),
		CreatedBy:    createdBy,
	}

	id, err := s.repository.CreateImportJob(ctx, j)
	if err != nil {
		if cleanupErr := s.fileHandler.Cleanup(ctx, path, false); cleanupErr != nil {
			s.logger.Warnf("Failed to clean up staged roster %s: %s", path, cleanupErr.Error())
		}
		return nil, errors.Wrap(err, "failed to create import job")
	}
	j.ID = id

	return &j, nil
}

func (s *service) GetJob(ctx context.Context, jobID int64) (*ImportJob, error) {
	job, err := s.repository.GetImportJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, &cerrors.EntityNotFoundError{Err: sql.ErrNoRows, JobID: jobID}
	}

	return job, nil
}

func (s *service) GetJobAndErrors(ctx context.Context, jobID int64) (*ImportJob, []*ImportError, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.repository.GetImportJobErrors(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	return job, entries, nil
}

func (s *service) GetJobs(ctx context.Context, createdBy string, page, limit int) ([]*ImportJob, int, error) {
	offset := (page - 1) * limit

	jobs, err := s.repository.GetImportJobs(ctx, createdBy, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.repository.CountImportJobs(ctx, createdBy)
	if err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

func (s *service) CancelJob(ctx context.Context, jobID int64) (int64, error) {
	// Assumes the job exists and retrieves the job by ID
	job, err := s.repository.GetImportJobByID(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job == nil {
		return 0, &cerrors.EntityNotFoundError{Err: sql.ErrNoRows, JobID: jobID}
	}

	// Check if the job is pending or processing.
	if job.Status == JobStatusPending || job.Status == JobStatusProcessing {
		err = s.repository.UpdateImportJobStatusCheckStatus(ctx, jobID, job.Status, JobStatusCancelled)
		if err != nil {
			return 0, ErrJobNotCancelled
		}
		return jobID, nil
	}

	// Return 0, ErrJobNotCancellable when attempting to cancel a non-cancellable job.
	return 0, ErrJobNotCancellable
}

func (s *service) DeleteJob(ctx context.Context, jobID int64) error {
	job, err := s.repository.GetImportJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return &cerrors.EntityNotFoundError{Err: sql.ErrNoRows, JobID: jobID}
	}

	if !job.Status.Terminal() {
		return ErrJobNotDeletable
	}

	if err := s.repository.DeleteImportJob(ctx, jobID); err != nil {
		return errors.Wrap(err, "failed to delete import job")
	}

	// The staged roster is no longer reachable once the job history is gone.
	if job.FilePath != "" {
		if err := s.fileHandler.Cleanup(ctx, job.FilePath, job.Status == JobStatusCompleted); err != nil {
			s.logger.Warnf("Failed to clean up roster file %s for deleted job %d: %s", job.FilePath, jobID, err.Error())
		}
	}

	return nil
}

var (
	ErrJobNotCancelled   = goerrors.New("Job was not cancelled due to internal server error.")
	ErrJobNotCancellable = goerrors.New("Job was not cancelled because it is not Pending or Processing")
	ErrJobNotDeletable   = goerrors.New("Job was not deleted because it has not reached a terminal status")
)
