package api

import (
	"database/sql"
	goerrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/ShepherdCMS/shepherd-app/log"
	"github.com/ShepherdCMS/shepherd-app/shepherd/constants"
	cerrors "github.com/ShepherdCMS/shepherd-app/shepherd/errors"
	"github.com/ShepherdCMS/shepherd-app/shepherd/logging"
	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/ShepherdCMS/shepherd-app/shepherd/models/postgres"
	"github.com/ShepherdCMS/shepherd-app/shepherd/responseutils"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
	"github.com/ShepherdCMS/shepherd-app/shepherd/servicemux"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/queueing"
	"github.com/ShepherdCMS/shepherd-app/uploads"
)

// multipartMemoryBytes caps what ParseMultipartForm keeps in memory before
// spilling to temp files.
const multipartMemoryBytes = 1 << 20

// Handler serves the roster import endpoints. Routes are wired up in
// shepherd/web.
type Handler struct {
	Svc models.Service

	Enq queueing.Enqueuer
}

func NewHandler(db *sql.DB, enq queueing.Enqueuer) *Handler {
	repo := postgres.NewRepository(db)
	svc := models.NewService(repo, uploads.NewFileHandler(log.API), roster.MaxRows)
	return &Handler{Svc: svc, Enq: enq}
}

// ImportAcceptedResponse is the 202 payload for a queued roster import.
type ImportAcceptedResponse struct {
	JobID     int64 `json:"job_id"`
	TotalRows int   `json:"total_rows"`
}

// ImportErrorsResponse is the payload for a job's error log.
type ImportErrorsResponse struct {
	FileName    string                `json:"file_name"`
	FailedCount int                   `json:"failed_count"`
	Errors      []*models.ImportError `json:"errors"`
}

// ImportHistoryResponse is one page of import history, newest first.
type ImportHistoryResponse struct {
	Jobs  []*models.ImportJob `json:"jobs"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}

/*
	swagger:route POST /api/v1/imports imports startImport

	Start a roster import

	Accepts a multipart roster CSV (field name `file`, optional `created_by`
	value), validates its structure, stages the file, and queues the import.
	Poll the returned job ID for progress.

	Consumes:
	- multipart/form-data

	Produces:
	- application/json

	Responses:
		202: ImportAcceptedResponse
		400: badRequestResponse
		413: requestTooLargeResponse
		500: errorResponse
*/
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, roster.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		// MaxBytesReader reports an exceeded limit as a plain error
		if strings.Contains(err.Error(), "request body too large") {
			responseutils.WriteError(w, http.StatusRequestEntityTooLarge, responseutils.SizeErr,
				fmt.Sprintf("roster upload exceeds the %dMB limit", roster.MaxUploadBytes>>20))
			return
		}
		responseutils.WriteError(w, http.StatusBadRequest, responseutils.RequestErr,
			"could not parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		responseutils.WriteError(w, http.StatusBadRequest, responseutils.RequestErr,
			"file field is required")
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.API.Warnf("Failed to close roster upload %s: %s", header.Filename, err.Error())
		}
	}()

	createdBy := r.FormValue("created_by")
	if createdBy == "" {
		createdBy = r.Header.Get("X-Actor-ID")
	}

	job, err := h.Svc.StartImport(r.Context(), header.Filename, file, createdBy)
	if err != nil {
		var (
			formatErr *cerrors.RosterFormatError
			sizeErr   *cerrors.RosterSizeError
		)
		switch {
		case goerrors.As(err, &formatErr):
			responseutils.WriteError(w, http.StatusBadRequest, responseutils.FormatErr, formatErr.Msg)
		case goerrors.As(err, &sizeErr):
			responseutils.WriteError(w, http.StatusBadRequest, responseutils.SizeErr, sizeErr.Error())
		default:
			log.API.Error(err)
			responseutils.WriteError(w, http.StatusInternalServerError, responseutils.InternalErr, "")
		}
		return
	}

	jobArgs := models.ImportJobArgs{
		ID:            job.ID,
		TransactionID: logging.GetTransactionID(r.Context()),
	}
	if err := h.Enq.AddJob(r.Context(), jobArgs, getJobPriority(job.TotalRecords)); err != nil {
		// The job stays pending; the operator can cancel it via DELETE.
		log.API.Error(errors.Wrapf(err, "failed to enqueue import job %d", job.ID))
		responseutils.WriteError(w, http.StatusInternalServerError, responseutils.QueueErr, "")
		return
	}

	logging.LogEntrySetField(r, "job_id", job.ID)

	scheme := "http"
	if servicemux.IsHTTPS(r) {
		scheme = "https"
	}
	w.Header().Set("Content-Location", fmt.Sprintf("%s://%s/api/v1/imports/%d", scheme, r.Host, job.ID))
	responseutils.WriteJSON(w, http.StatusAccepted, ImportAcceptedResponse{
		JobID:     job.ID,
		TotalRows: job.TotalRecords,
	})
}

/*
	swagger:route GET /api/v1/imports/{jobID} imports jobStatus

	Get import job status

	Returns the job record as currently persisted, including the live error
	log. Counters reflect the last flushed checkpoint while the run is
	underway.

	Produces:
	- application/json

	Responses:
		200: ImportJobResponse
		400: badRequestResponse
		404: notFoundResponse
		500: errorResponse
*/
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, entries, err := h.Svc.GetJobAndErrors(r.Context(), jobID)
	if err != nil {
		writeJobError(w, err, jobID)
		return
	}

	logging.LogEntrySetField(r, "job_id", jobID)

	job.Errors = make([]models.ImportError, 0, len(entries))
	for _, e := range entries {
		job.Errors = append(job.Errors, *e)
	}

	if job.Status == models.JobStatusProcessing {
		w.Header().Set("X-Progress", job.StatusMessage())
	}
	responseutils.WriteJSON(w, http.StatusOK, job)
}

/*
	swagger:route GET /api/v1/imports/{jobID}/errors imports jobErrors

	Get import job errors

	Returns just the accumulated error log for a job, warnings included.

	Produces:
	- application/json

	Responses:
		200: ImportErrorsResponse
		400: badRequestResponse
		404: notFoundResponse
		500: errorResponse
*/
func (h *Handler) JobErrors(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, entries, err := h.Svc.GetJobAndErrors(r.Context(), jobID)
	if err != nil {
		writeJobError(w, err, jobID)
		return
	}

	logging.LogEntrySetField(r, "job_id", jobID)

	if entries == nil {
		entries = []*models.ImportError{}
	}
	responseutils.WriteJSON(w, http.StatusOK, ImportErrorsResponse{
		FileName:    job.FileName,
		FailedCount: job.FailedRecords,
		Errors:      entries,
	})
}

/*
	swagger:route GET /api/v1/imports imports listImports

	List import history

	Returns one page of import jobs, newest first. Filter with the
	`created_by` query parameter; page with `page` (1-based) and `limit`.

	Produces:
	- application/json

	Responses:
		200: ImportHistoryResponse
		400: badRequestResponse
		500: errorResponse
*/
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			responseutils.WriteError(w, http.StatusBadRequest, responseutils.RequestErr,
				fmt.Sprintf("invalid page %s", v))
			return
		}
		page = p
	}

	limit := constants.DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			responseutils.WriteError(w, http.StatusBadRequest, responseutils.RequestErr,
				fmt.Sprintf("invalid limit %s", v))
			return
		}
		if l > constants.MaxPageSize {
			l = constants.MaxPageSize
		}
		limit = l
	}

	jobs, total, err := h.Svc.GetJobs(r.Context(), r.URL.Query().Get("created_by"), page, limit)
	if err != nil {
		log.API.Error(err)
		responseutils.WriteError(w, http.StatusInternalServerError, responseutils.DbErr, "")
		return
	}
	if jobs == nil {
		jobs = []*models.ImportJob{}
	}

	responseutils.WriteJSON(w, http.StatusOK, ImportHistoryResponse{
		Jobs:  jobs,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

/*
	swagger:route DELETE /api/v1/imports/{jobID} imports deleteImport

	Cancel or delete an import job

	A pending or processing job is marked cancelled; the in-flight run stops
	at its next row boundary. A terminal job is deleted outright along with
	its error log.

	Produces:
	- application/json

	Responses:
		202: importCancelledResponse
		204: importDeletedResponse
		400: badRequestResponse
		404: notFoundResponse
		409: conflictResponse
		500: errorResponse
*/
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	logging.LogEntrySetField(r, "job_id", jobID)

	var notFoundErr *cerrors.EntityNotFoundError

	_, err := h.Svc.CancelJob(r.Context(), jobID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
		return
	case goerrors.As(err, &notFoundErr):
		responseutils.WriteError(w, http.StatusNotFound, responseutils.NotFoundErr,
			fmt.Sprintf("no import job found for id %d", jobID))
		return
	case goerrors.Is(err, models.ErrJobNotCancellable):
		// Terminal job; fall through to the delete path.
	default:
		log.API.Error(err)
		responseutils.WriteError(w, http.StatusInternalServerError, responseutils.DbErr, "")
		return
	}

	if err := h.Svc.DeleteJob(r.Context(), jobID); err != nil {
		switch {
		case goerrors.Is(err, models.ErrJobNotDeletable):
			responseutils.WriteError(w, http.StatusConflict, responseutils.ConflictErr,
				models.ErrJobNotDeletable.Error())
		case goerrors.As(err, &notFoundErr):
			responseutils.WriteError(w, http.StatusNotFound, responseutils.NotFoundErr,
				fmt.Sprintf("no import job found for id %d", jobID))
		default:
			log.API.Error(err)
			responseutils.WriteError(w, http.StatusInternalServerError, responseutils.DbErr, "")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

/*
	swagger:route GET /api/v1/imports/template imports rosterTemplate

	Download the roster template

	Returns the roster CSV template with the canonical header row and one
	example row.

	Produces:
	- text/csv

	Responses:
		200: rosterTemplateResponse
*/
func (h *Handler) Template(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="roster_template.csv"`)
	if _, err := w.Write(roster.Template()); err != nil {
		log.API.Error(err)
	}
}

func parseJobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "jobID")
	jobID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		responseutils.WriteError(w, http.StatusBadRequest, responseutils.RequestErr,
			fmt.Sprintf("invalid job id %s", raw))
		return 0, false
	}
	return jobID, true
}

func writeJobError(w http.ResponseWriter, err error, jobID int64) {
	var notFoundErr *cerrors.EntityNotFoundError
	if goerrors.As(err, &notFoundErr) {
		responseutils.WriteError(w, http.StatusNotFound, responseutils.NotFoundErr,
			fmt.Sprintf("no import job found for id %d", jobID))
		return
	}
	log.API.Error(err)
	responseutils.WriteError(w, http.StatusInternalServerError, responseutils.DbErr, "")
}

// Gets the priority for the job where the lower the number the higher the
// priority in the queue. Priority is based on how much work the run will do.
func getJobPriority(totalRows int) int {
	var priority int
	if totalRows <= smallRosterRows {
		priority = 10 // priority level for small rosters
	} else if totalRows <= mediumRosterRows {
		priority = 50 // priority level for mid-sized rosters
	} else {
		priority = 100 // default priority level for jobs
	}
	return priority
}

const (
	smallRosterRows  = 100
	mediumRosterRows = 1000
)
