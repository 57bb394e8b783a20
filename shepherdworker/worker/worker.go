package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"strings"

	"github.com/ShepherdCMS/shepherd-app/log"
	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
	"github.com/ShepherdCMS/shepherd-app/shepherd/utils"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/repository"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/repository/postgres"
	"github.com/ShepherdCMS/shepherd-app/uploads"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Worker interface {
	ValidateJob(ctx context.Context, jobArgs models.ImportJobArgs) (*models.ImportJob, error)
	ProcessJob(ctx context.Context, job models.ImportJob, jobArgs models.ImportJobArgs) error
}

type worker struct {
	db            *sql.DB
	r             repository.Repository
	fileHandler   uploads.FileHandler
	flushInterval int
}

func NewWorker(db *sql.DB) Worker {
	flushInterval := utils.GetEnvInt("SHEPHERD_IMPORT_FLUSH_INTERVAL", 10)
	if flushInterval < 1 {
		flushInterval = 1
	}
	return &worker{
		db:            db,
		r:             postgres.NewRepository(db),
		fileHandler:   uploads.NewFileHandler(log.Worker),
		flushInterval: flushInterval,
	}
}

// ValidateJob decides whether the queued entry still has work behind it. Any
// status other than pending returns a JobError sentinel, which the queue layer
// acknowledges without running; that neutralizes redeliveries of jobs that
// already ran, failed, or were cancelled.
func (w *worker) ValidateJob(ctx context.Context, jobArgs models.ImportJobArgs) (*models.ImportJob, error) {
	importJob, err := w.r.GetImportJobByID(ctx, jobArgs.ID)
	if goerrors.Is(err, repository.ErrJobNotFound) {
		return nil, ErrParentJobNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "could not retrieve import job from database")
	}

	switch importJob.Status {
	case models.JobStatusCancelled:
		return nil, ErrParentJobCancelled
	case models.JobStatusFailed:
		return nil, ErrParentJobFailed
	case models.JobStatusCompleted:
		return nil, ErrParentJobCompleted
	case models.JobStatusProcessing:
		return nil, ErrParentJobProcessing
	}

	return importJob, nil
}

// importRun carries the mutable state of one roster run: live counters, the
// group preload, and the family memo that spares repeated lookups while rows
// from the same household stream past.
type importRun struct {
	jobID      int64
	total      int
	processed  int
	successful int
	failed     int
	groups     map[string]int64
	families   map[string]int64
}

func (w *worker) ProcessJob(ctx context.Context, job models.ImportJob, jobArgs models.ImportJobArgs) error {
	defer getSegment(ctx, "ProcessJob").End()

	logger := log.GetCtxLogger(ctx)

	err := w.r.StartImportJob(ctx, job.ID)
	if goerrors.Is(err, repository.ErrJobNotUpdated) {
		logger.Warnf("Failed to start import job. Assume job already started. Continuing. %s", err.Error())
	} else if err != nil {
		return errors.Wrap(err, "could not update job status in database")
	}

	parsed, err := w.readRoster(ctx, job)
	if err != nil {
		// A roster that cannot be fetched or parsed fails the whole job. The
		// job row is the durable record, so the queue entry is done.
		w.recordStructuralFailure(ctx, logger, job.ID, err)
		return nil
	}

	groups, err := w.loadGroups(ctx)
	if err != nil {
		run := &importRun{jobID: job.ID, total: len(parsed.Rows)}
		return w.failJob(ctx, logger, run, errors.Wrap(err, "could not preload groups"))
	}

	run := &importRun{
		jobID:    job.ID,
		total:    len(parsed.Rows),
		groups:   groups,
		families: make(map[string]int64),
	}

	for _, row := range parsed.Rows {
		if ctx.Err() != nil {
			logger.Warnf("Import job %d cancelled after %d of %d rows", job.ID, run.processed, run.total)
			return w.finishCancelled(logger, run)
		}

		if err := w.importRow(ctx, run, row); err != nil {
			// A cancellation that lands mid-row surfaces as a row error;
			// treat it as the boundary check would have.
			if ctx.Err() != nil {
				logger.Warnf("Import job %d cancelled after %d of %d rows", job.ID, run.processed, run.total)
				return w.finishCancelled(logger, run)
			}
			return w.failJob(ctx, logger, run, errors.Wrapf(err, "import run halted at row %d", row.Number))
		}

		if run.processed%w.flushInterval == 0 {
			if err := w.flushCounts(ctx, run); err != nil {
				return w.failJob(ctx, logger, run, errors.Wrap(err, "could not flush progress counters"))
			}
		}
	}

	if err := w.flushCounts(ctx, run); err != nil {
		return w.failJob(ctx, logger, run, errors.Wrap(err, "could not flush final counters"))
	}

	err = w.r.FinalizeImportJob(ctx, job.ID, models.JobStatusProcessing, models.JobStatusCompleted)
	if goerrors.Is(err, repository.ErrJobNotUpdated) {
		// Lost a cancel race at the finish line; whatever terminal status won
		// stands.
		logger.Warnf("Import job %d not marked completed, status changed mid-run", job.ID)
		return nil
	} else if err != nil {
		return errors.Wrap(err, "could not mark import job completed")
	}

	logger.Infof("Import job %d completed: %d rows, %d imported, %d failed", job.ID, run.total, run.successful, run.failed)
	return nil
}

// importRow runs one roster row to its recorded outcome. Row-level faults are
// contained here: they append an error entry and bump the failed counter. A
// returned error means the error log itself could not be written, which is
// systemic and halts the run.
func (w *worker) importRow(ctx context.Context, run *importRun, row roster.Row) error {
	run.processed++

	if err := roster.Validate(row.Record); err != nil {
		run.failed++
		return w.appendRowError(ctx, run.jobID, row, err.Error())
	}

	outcome, err := w.importRowTx(ctx, run, row)
	if err != nil {
		run.failed++
		log.GetCtxLogger(ctx).Error(errors.Wrapf(err, "failed to import row %d of job %d", row.Number, run.jobID))
		return w.appendRowError(ctx, run.jobID, row, fmt.Sprintf("row could not be imported: %s", err))
	}

	run.successful++
	if outcome.familyKey != "" {
		run.families[outcome.familyKey] = outcome.familyID
	}

	for _, name := range outcome.unmatchedGroups {
		entry := models.ImportError{
			JobID:     run.jobID,
			RowNumber: row.Number,
			Severity:  models.SeverityWarning,
			Message:   fmt.Sprintf("group %q does not exist, membership skipped", name),
		}
		if err := w.r.AppendImportError(ctx, entry); err != nil {
			return err
		}
	}

	return nil
}

// rowOutcome reports what a committed row resolved, so the caller can memoize
// the family and record any skipped group names.
type rowOutcome struct {
	familyKey       string
	familyID        int64
	unmatchedGroups []string
}

// importRowTx wraps the row transaction in a retry. Two rows of the same new
// family racing across worker processes both pass the lookup and one loses
// the families_lower_name unique index; the loser's transaction is aborted,
// so the whole row is rerun and the lookup then finds the winner's family.
func (w *worker) importRowTx(ctx context.Context, run *importRun, row roster.Row) (*rowOutcome, error) {
	var outcome *rowOutcome

	op := func() error {
		var err error
		outcome, err = w.runRowTx(ctx, run, row)
		if err != nil && !isUniqueViolation(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}

	return outcome, nil
}

func (w *worker) runRowTx(ctx context.Context, run *importRun, row roster.Row) (*rowOutcome, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !goerrors.Is(err, sql.ErrTxDone) {
			log.GetCtxLogger(ctx).Warnf("Failed to rollback row %d of job %d: %s", row.Number, run.jobID, err.Error())
		}
	}()

	r := postgres.NewRepositoryTx(tx)
	rec := row.Record
	outcome := &rowOutcome{}

	memberID, err := saveMember(ctx, r, rec)
	if err != nil {
		return nil, err
	}

	if err := resolveFamily(ctx, r, run, rec, memberID, outcome); err != nil {
		return nil, err
	}

	if err := saveGroupMemberships(ctx, r, run, rec, memberID, outcome); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	return outcome, nil
}

// saveMember resolves the row to a member id: matched members get their
// mutable profile fields rewritten in place, unmatched rows insert. Email is
// the identity anchor and is never rewritten on a match.
func saveMember(ctx context.Context, r repository.Repository, rec roster.RowRecord) (int64, error) {
	existing, err := r.GetMemberByEmailOrPhone(ctx, rec.Email, rec.Phone)
	if err != nil {
		return 0, err
	}

	m := models.Member{
		FirstName:             rec.FirstName,
		LastName:              rec.LastName,
		Email:                 rec.Email,
		Phone:                 rec.Phone,
		Gender:                rec.Gender,
		BloodGroup:            rec.BloodGroup,
		Address:               rec.Address,
		EmergencyContactName:  rec.EmergencyContactName,
		EmergencyContactPhone: rec.EmergencyContactPhone,
		Role:                  rec.Role,
		Notes:                 rec.Notes,
	}
	if rec.DateOfBirth != "" {
		dob, err := roster.ParseDate(rec.DateOfBirth)
		if err != nil {
			return 0, err
		}
		m.DateOfBirth = &dob
	}

	if existing == nil {
		return r.CreateMember(ctx, m)
	}

	m.ID = existing.ID
	if err := r.UpdateMember(ctx, m); err != nil {
		return 0, err
	}
	return existing.ID, nil
}

// resolveFamily finds or creates the row's family and links the member to it.
// The run memo is checked first; it is only written back by the caller once
// the row commits, so a rolled-back create never poisons later rows.
func resolveFamily(ctx context.Context, r repository.Repository, run *importRun, rec roster.RowRecord, memberID int64, out *rowOutcome) error {
	if rec.FamilyName == "" {
		return nil
	}

	key := strings.ToLower(rec.FamilyName)
	familyID, ok := run.families[key]
	if !ok {
		family, err := r.GetFamilyByName(ctx, rec.FamilyName)
		if err != nil {
			return err
		}
		if family != nil {
			familyID = family.ID
		} else {
			familyID, err = r.CreateFamily(ctx, models.Family{
				Name:    rec.FamilyName,
				Address: rec.Address,
				Phone:   rec.Phone,
			})
			if err != nil {
				return err
			}
		}
	}

	if err := r.UpdateMemberFamily(ctx, memberID, familyID); err != nil {
		return err
	}

	if rec.HeadOfFamily {
		// Last row in the file carrying the marker wins.
		if err := r.SetHeadOfFamily(ctx, familyID, memberID); err != nil {
			return err
		}
	}

	out.familyKey, out.familyID = key, familyID
	return nil
}

func saveGroupMemberships(ctx context.Context, r repository.Repository, run *importRun, rec roster.RowRecord, memberID int64, out *rowOutcome) error {
	for _, name := range rec.GroupNames {
		groupID, ok := run.groups[strings.ToLower(name)]
		if !ok {
			out.unmatchedGroups = append(out.unmatchedGroups, name)
			continue
		}

		gm := models.GroupMembership{
			GroupID:  groupID,
			MemberID: memberID,
			Status:   models.MembershipStatusPending,
			Role:     models.RoleMember,
		}
		if err := r.UpsertGroupMembership(ctx, gm); err != nil {
			return err
		}
	}
	return nil
}

func (w *worker) readRoster(ctx context.Context, job models.ImportJob) (*roster.Roster, error) {
	defer getSegment(ctx, "readRoster").End()

	rc, release, err := w.fileHandler.Open(ctx, job.FilePath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open staged roster for job %d", job.ID)
	}
	defer release()

	parsed, err := roster.Parse(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse staged roster %s", job.FileName)
	}
	return parsed, nil
}

func (w *worker) loadGroups(ctx context.Context) (map[string]int64, error) {
	groups, err := w.r.GetGroups(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int64, len(groups))
	for _, g := range groups {
		byName[strings.ToLower(g.Name)] = g.ID
	}
	return byName, nil
}

func (w *worker) appendRowError(ctx context.Context, jobID int64, row roster.Row, message string) error {
	rowData, err := json.Marshal(row.Record)
	if err != nil {
		return err
	}

	return w.r.AppendImportError(ctx, models.ImportError{
		JobID:     jobID,
		RowNumber: row.Number,
		Severity:  models.SeverityError,
		Message:   message,
		RowData:   rowData,
	})
}

func (w *worker) flushCounts(ctx context.Context, run *importRun) error {
	return w.r.UpdateImportJobCounts(ctx, run.jobID, run.total, run.processed, run.successful, run.failed)
}

// recordStructuralFailure marks a job whose file never yielded rows: one
// RowNumber-0 entry and a failed status. Failures to record are logged and
// dropped; there is nothing better to do with them.
func (w *worker) recordStructuralFailure(ctx context.Context, logger logrus.FieldLogger, jobID int64, cause error) {
	logger.Error(cause)

	entry := models.ImportError{
		JobID:     jobID,
		RowNumber: 0,
		Severity:  models.SeverityError,
		Message:   cause.Error(),
	}
	if err := w.r.AppendImportError(ctx, entry); err != nil {
		logger.Errorf("Failed to append structural import error for job %d: %s", jobID, err.Error())
	}

	if err := w.r.FinalizeImportJob(ctx, jobID, models.JobStatusProcessing, models.JobStatusFailed); err != nil {
		logger.Errorf("Failed to mark import job %d failed: %s", jobID, err.Error())
	}
}

// failJob terminalizes a run the loop could not finish. The wrapped cause is
// handed back to the queue layer; redelivery is neutralized by ValidateJob
// once the status reads failed.
func (w *worker) failJob(ctx context.Context, logger logrus.FieldLogger, run *importRun, cause error) error {
	if err := w.flushCounts(ctx, run); err != nil {
		logger.Warnf("Failed to flush counters for failed import job %d: %s", run.jobID, err.Error())
	}
	if err := w.r.FinalizeImportJob(ctx, run.jobID, models.JobStatusProcessing, models.JobStatusFailed); err != nil {
		logger.Warnf("Failed to mark import job %d failed: %s", run.jobID, err.Error())
	}
	return cause
}

// finishCancelled flushes a cancelled run's counters and stamps its end time.
// The run context is already dead, so the terminal writes use their own.
func (w *worker) finishCancelled(logger logrus.FieldLogger, run *importRun) error {
	ctx := context.Background()

	if err := w.flushCounts(ctx, run); err != nil {
		logger.Warnf("Failed to flush counters for cancelled import job %d: %s", run.jobID, err.Error())
	}

	err := w.r.FinalizeImportJob(ctx, run.jobID, models.JobStatusCancelled, models.JobStatusCancelled)
	if err != nil && !goerrors.Is(err, repository.ErrJobNotUpdated) {
		logger.Warnf("Failed to stamp completion time for cancelled import job %d: %s", run.jobID, err.Error())
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if goerrors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return false
}

func getSegment(ctx context.Context, name string) *newrelic.Segment {
	return newrelic.FromContext(ctx).StartSegment(name)
}

type JobError struct {
	ErrorString string
}

func (je JobError) Error() string {
	return je.ErrorString
}

var (
	ErrParentJobNotFound   = JobError{"parent import job not found"}
	ErrParentJobCancelled  = JobError{"parent import job cancelled"}
	ErrParentJobFailed     = JobError{"parent import job failed"}
	ErrParentJobCompleted  = JobError{"parent import job already completed"}
	ErrParentJobProcessing = JobError{"parent import job already processing"}
)
