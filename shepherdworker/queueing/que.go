package queueing

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/ShepherdCMS/shepherd-app/log"
	"github.com/ShepherdCMS/shepherd-app/shepherd/database"
	"github.com/ShepherdCMS/shepherd-app/shepherd/metrics"
	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/ShepherdCMS/shepherd-app/shepherd/utils"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/repository"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/repository/postgres"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/worker"
	"github.com/bgentry/que-go"
	"github.com/jackc/pgx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// queue is responsible for retrieving jobs using the que client and
// transforming and delegating that work to the underlying worker
type queue struct {
	worker worker.Worker

	quePool *que.WorkerPool
	queDB   *pgx.ConnPool

	healthCheckCancel context.CancelFunc

	repository    repository.Repository
	log           logrus.FieldLogger
	cloudWatchEnv string
}

// StartQue creates a que-go client and begins listening for items
// It returns immediately since all of the associated workers are started
// in separate goroutines.
func StartQue(logger logrus.FieldLogger, queueDatabaseURL string, numWorkers int) *queue {
	// Allocate the queue in advance to supply the correct
	// in the workmap
	mainDB := database.GetDbConnection()
	q := &queue{
		worker:        worker.NewWorker(mainDB),
		repository:    postgres.NewRepository(mainDB),
		log:           logger,
		cloudWatchEnv: conf.GetEnv("DEPLOYMENT_TARGET"),
	}

	cfg, err := pgx.ParseURI(queueDatabaseURL)
	if err != nil {
		logger.Fatal(err)
	}

	q.queDB, err = pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:   cfg,
		AfterConnect: que.PrepareStatements,
	})
	if err != nil {
		logger.Fatal(err)
	}

	// Ensure that the connections are valid. Needed until we move to pgx v4
	ctx, cancel := context.WithCancel(context.Background())
	q.healthCheckCancel = cancel
	database.StartHealthCheck(ctx, q.queDB,
		time.Duration(utils.GetEnvInt("DB_HEALTH_CHECK_INTERVAL", 5))*time.Second)

	qc := que.NewClient(q.queDB)
	wm := que.WorkMap{
		models.QUE_PROCESS_IMPORT_JOB: q.processImportJob,
	}

	q.quePool = que.NewWorkerPool(qc, wm, numWorkers)

	q.quePool.Start()

	return q
}

// StopQue cleans up any resources created
func (q *queue) StopQue() {
	q.healthCheckCancel()
	q.quePool.Shutdown()
	q.queDB.Close()
}

func (q *queue) processImportJob(queJob *que.Job) error {
	ctx, cancel := context.WithCancel(context.Background())

	defer q.updateJobQueueCountCloudwatchMetric()
	defer cancel()

	var jobArgs models.ImportJobArgs
	err := json.Unmarshal(queJob.Args, &jobArgs)
	if err != nil {
		// ACK the job because retrying it won't help us be able to deserialize the data
		q.log.Warnf("Failed to deserialize job.Args '%s' %s. Removing queuejob from que.", queJob.Args, err)
		return nil
	}

	ctx = log.NewStructuredLoggerEntry(log.Worker, ctx)
	ctx, _ = log.SetCtxLogger(ctx, "job_id", jobArgs.ID)
	ctx, logger := log.SetCtxLogger(ctx, "transaction_id", jobArgs.TransactionID)

	importJob, err, ackJob := validateJob(ctx, ValidateJobConfig{
		WorkerInstance: q.worker,
		Logger:         logger,
		QJobID:         queJob.ID,
		Args:           jobArgs,
		ErrorCount:     int(queJob.ErrorCount),
	})
	if ackJob {
		// End logic here, basically acknowledge and return which will remove it from the queue.
		return nil
	}
	// Return error when we want to mark a job as having errored out, which will mark it to be retried
	if err != nil {
		return err
	}

	// start a goroutine that will periodically check the status of the parent job
	go checkIfCancelled(ctx, q.repository, cancel, jobArgs.ID, 15)

	if err := q.worker.ProcessJob(ctx, *importJob, jobArgs); err != nil {
		err := errors.Wrap(err, "failed to process import job")
		logger.Error(err)
		return err
	}

	return nil
}

// ValidateJobConfig carries everything validateJob needs to decide the fate
// of a single delivery.
type ValidateJobConfig struct {
	WorkerInstance worker.Worker
	Logger         logrus.FieldLogger
	QJobID         int64
	Args           models.ImportJobArgs
	ErrorCount     int
}

// validateJob maps the worker's verdict on the parent import job onto queue
// behavior. ackJob true means the delivery is acknowledged and removed from
// the queue regardless of err.
func validateJob(ctx context.Context, cfg ValidateJobConfig) (*models.ImportJob, error, bool) {
	importJob, err := cfg.WorkerInstance.ValidateJob(ctx, cfg.Args)
	if goerrors.Is(err, worker.ErrParentJobCancelled) {
		cfg.Logger.Warnf("queJob %d associated with a cancelled parent Job %d. Removing queuejob from que.", cfg.QJobID, cfg.Args.ID)
		return nil, nil, true
	} else if goerrors.Is(err, worker.ErrParentJobFailed) {
		cfg.Logger.Warnf("queJob %d associated with a failed parent Job %d. Removing queuejob from que.", cfg.QJobID, cfg.Args.ID)
		return nil, nil, true
	} else if goerrors.Is(err, worker.ErrParentJobCompleted) {
		cfg.Logger.Warnf("queJob %d associated with an already completed parent Job %d. Removing queuejob from que.", cfg.QJobID, cfg.Args.ID)
		return nil, nil, true
	} else if goerrors.Is(err, worker.ErrParentJobProcessing) {
		// A processing parent means another delivery is, or was, already on
		// it. Rerunning next to a live worker would double-write the error
		// log, so the delivery is dropped; an interrupted run is recovered by
		// cancelling the job and re-uploading the roster.
		cfg.Logger.Warnf("queJob %d associated with an already processing parent Job %d. Removing queuejob from que.", cfg.QJobID, cfg.Args.ID)
		return nil, nil, true
	} else if goerrors.Is(err, worker.ErrParentJobNotFound) {
		// Based on the current backoff delay (j.ErrorCount^4 + 3 seconds), this should've given
		// us plenty of headroom to ensure that the parent job will never be found.
		maxNotFoundRetries := utils.GetEnvInt("SHEPHERD_WORKER_MAX_JOB_NOT_FOUND_RETRIES", 3)
		if cfg.ErrorCount >= maxNotFoundRetries {
			cfg.Logger.Errorf("No import job found for ID: %d. Retries exhausted. Removing job from queue.", cfg.Args.ID)
			// By returning a nil error response, we're signaling to que-go to remove this job from the job queue.
			return nil, nil, true
		}

		cfg.Logger.Warnf("No import job found for ID: %d. Will retry.", cfg.Args.ID)
		return nil, errors.Wrap(repository.ErrJobNotFound, "could not retrieve import job from database"), false
	} else if err != nil {
		err := errors.Wrap(err, "failed to validate job")
		cfg.Logger.Error(err)
		return nil, err, false
	}

	return importJob, nil, false
}

// checkIfCancelled periodically polls the parent import job and tears down
// the run's context when a user cancellation lands.
func checkIfCancelled(ctx context.Context, r repository.Repository, cancel context.CancelFunc, jobID int64, pollSeconds int) {
	for {
		select {
		case <-time.After(time.Duration(pollSeconds) * time.Second):
			importJob, err := r.GetImportJobByID(ctx, jobID)
			if err != nil {
				log.Worker.Warnf("Could not find import job %d status: %s", jobID, err)
				continue
			}

			if importJob.Status == models.JobStatusCancelled {
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (q *queue) updateJobQueueCountCloudwatchMetric() {

	// Update the Cloudwatch Metric for job queue count
	if q.cloudWatchEnv != "" {
		sampler, err := metrics.NewSampler("Shepherd", "Count")
		if err != nil {
			fmt.Println("Warning: failed to create new metric sampler...")
		} else {
			err := sampler.PutSample("JobQueueCount", q.getQueueJobCount(), []metrics.Dimension{
				{Name: "Environment", Value: q.cloudWatchEnv},
			})
			if err != nil {
				q.log.Error(err)
			}
		}
	}
}

func (q *queue) getQueueJobCount() float64 {
	row := q.queDB.QueryRow(`select count(*) from que_jobs;`)

	var count int
	if err := row.Scan(&count); err != nil {
		q.log.Error(err)
	}

	return float64(count)
}
