package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// QUE_PROCESS_IMPORT_JOB identifies roster import jobs in the worker pool's
// work map.
const QUE_PROCESS_IMPORT_JOB = "ProcessImportJob"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is an end state. A terminal job is
// never transitioned again; it can only be deleted.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

const (
	RoleMember      = "member"
	RoleGroupLeader = "group_leader"

	MembershipStatusPending = "pending"
)

type ImportJob struct {
	ID                int64      `json:"id"`
	FileName          string     `json:"file_name"`
	FilePath          string     `json:"-"`
	Status            JobStatus  `json:"status"`
	TotalRecords      int        `json:"total_records"`
	ProcessedRecords  int        `json:"processed_records"`
	SuccessfulRecords int        `json:"successful_records"`
	FailedRecords     int        `json:"failed_records"`
	CreatedBy         string     `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`

	// Errors is only populated on snapshot reads; it does not live on the
	// import_jobs row.
	Errors []ImportError `json:"errors,omitempty"`
}

// StatusMessage renders the job status, with a completion percentage while
// the run is underway.
func (j *ImportJob) StatusMessage() string {
	if j.Status == JobStatusProcessing && j.TotalRecords > 0 {
		pct := float64(j.ProcessedRecords) / float64(j.TotalRecords) * 100
		return fmt.Sprintf("%s (%d%%)", j.Status, int(pct))
	}
	return string(j.Status)
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ImportError is one entry in a job's error log. RowNumber counts from the
// top of the file with the header as row 1, so the first data row is 2.
// Structural file errors carry RowNumber 0.
type ImportError struct {
	ID        int64           `json:"-"`
	JobID     int64           `json:"-"`
	RowNumber int             `json:"row_number"`
	Severity  Severity        `json:"severity"`
	Message   string          `json:"message"`
	RowData   json.RawMessage `json:"row_data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Member struct {
	ID                    int64
	FirstName             string
	LastName              string
	Email                 string
	Phone                 string
	DateOfBirth           *time.Time
	Gender                string
	BloodGroup            string
	Address               string
	EmergencyContactName  string
	EmergencyContactPhone string
	Role                  string
	Notes                 string
	FamilyID              *int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Family struct {
	ID             int64
	Name           string
	Address        string
	Phone          string
	HeadOfFamilyID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Group struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

type GroupMembership struct {
	ID        int64
	GroupID   int64
	MemberID  int64
	Status    string
	Role      string
	CreatedAt time.Time
}

// ImportJobArgs is the queue payload for one roster import run.
type ImportJobArgs struct {
	ID            int64
	TransactionID string
}
