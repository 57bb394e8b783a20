package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type executable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ models.Repository = &Repository{}

type Repository struct {
	queryable
	executable
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db, db}
}

func NewRepositoryTx(tx *sql.Tx) *Repository {
	return &Repository{tx, tx}
}

var jobColumns []string = []string{"id", "file_name", "file_path", "status", "total_records",
	"processed_records", "successful_records", "failed_records", "created_by",
	"created_at", "started_at", "completed_at"}

func (r *Repository) CreateImportJob(ctx context.Context, j models.ImportJob) (int64, error) {
	// Use the raw builder since we need to retrieve the generated ID
	query, args := sqlbuilder.Buildf("INSERT INTO import_jobs (file_name, file_path, status, total_records, created_by, created_at) VALUES (%s, %s, %s, %s, %s, NOW()) RETURNING id",
		j.FileName, j.FilePath, j.Status, j.TotalRecords, j.CreatedBy).
		BuildWithFlavor(sqlFlavor)

	var id int64
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetImportJobByID(ctx context.Context, jobID int64) (*models.ImportJob, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("import_jobs").Where(sb.Equal("id", jobID))

	query, args := sb.Build()

	var (
		j                                 models.ImportJob
		createdAt, startedAt, completedAt sql.NullTime
	)

	err := r.QueryRowContext(ctx, query, args...).Scan(&j.ID, &j.FileName, &j.FilePath, &j.Status,
		&j.TotalRecords, &j.ProcessedRecords, &j.SuccessfulRecords, &j.FailedRecords, &j.CreatedBy,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	j.CreatedAt = createdAt.Time
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}

	return &j, nil
}

func (r *Repository) GetImportJobs(ctx context.Context, createdBy string, limit, offset int) ([]*models.ImportJob, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("import_jobs")
	if createdBy != "" {
		sb.Where(sb.Equal("created_by", createdBy))
	}
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	return r.getJobs(ctx, query, args...)
}

func (r *Repository) CountImportJobs(ctx context.Context, createdBy string) (int, error) {
	sb := sqlFlavor.NewSelectBuilder().Select("COUNT(1)").From("import_jobs")
	if createdBy != "" {
		sb.Where(sb.Equal("created_by", createdBy))
	}

	query, args := sb.Build()
	var count int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}

func (r *Repository) UpdateImportJobStatusCheckStatus(ctx context.Context, jobID int64, current, new models.JobStatus) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("import_jobs")
	ub.Set(ub.Assign("status", new))
	ub.Where(ub.Equal("id", jobID), ub.Equal("status", current))

	query, args := ub.Build()
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("import job %d not updated, no row found with status %s", jobID, current)
	}

	return nil
}

func (r *Repository) DeleteImportJob(ctx context.Context, jobID int64) error {
	delb := sqlFlavor.NewDeleteBuilder()
	delb.DeleteFrom("import_jobs").Where(delb.Equal("id", jobID))

	query, args := delb.Build()
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("import job %d not deleted, no row found", jobID)
	}

	return nil
}

var errorColumns []string = []string{"id", "job_id", "row_number", "severity", "message", "row_data", "created_at"}

func (r *Repository) GetImportJobErrors(ctx context.Context, jobID int64) ([]*models.ImportError, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(errorColumns...)
	sb.From("import_errors").Where(sb.Equal("job_id", jobID))
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ImportError
	for rows.Next() {
		var (
			e       models.ImportError
			rowData []byte
		)
		if err = rows.Scan(&e.ID, &e.JobID, &e.RowNumber, &e.Severity, &e.Message,
			&rowData, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RowData = rowData
		entries = append(entries, &e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *Repository) CountImportErrors(ctx context.Context, jobID int64) (int, error) {
	sb := sqlFlavor.NewSelectBuilder().Select("COUNT(1)").From("import_errors")
	sb.Where(sb.Equal("job_id", jobID))

	query, args := sb.Build()
	var count int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}

func (r *Repository) getJobs(ctx context.Context, query string, args ...interface{}) ([]*models.ImportJob, error) {
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		var (
			j                                 models.ImportJob
			createdAt, startedAt, completedAt sql.NullTime
		)
		if err = rows.Scan(&j.ID, &j.FileName, &j.FilePath, &j.Status, &j.TotalRecords,
			&j.ProcessedRecords, &j.SuccessfulRecords, &j.FailedRecords, &j.CreatedBy,
			&createdAt, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		j.CreatedAt = createdAt.Time
		if startedAt.Valid {
			t := startedAt.Time
			j.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			j.CompletedAt = &t
		}
		jobs = append(jobs, &j)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
