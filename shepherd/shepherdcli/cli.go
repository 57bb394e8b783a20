package shepherdcli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/ShepherdCMS/shepherd-app/log"
	"github.com/ShepherdCMS/shepherd-app/shepherd/api"
	"github.com/ShepherdCMS/shepherd-app/shepherd/constants"
	"github.com/ShepherdCMS/shepherd-app/shepherd/database"
	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/ShepherdCMS/shepherd-app/shepherd/models/postgres"
	"github.com/ShepherdCMS/shepherd-app/shepherd/monitoring"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster/gen"
	"github.com/ShepherdCMS/shepherd-app/shepherd/servicemux"
	"github.com/ShepherdCMS/shepherd-app/shepherd/utils"
	"github.com/ShepherdCMS/shepherd-app/shepherd/web"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/queueing"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/worker"
	"github.com/ShepherdCMS/shepherd-app/uploads"
	"github.com/bgentry/que-go"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// App Name and usage.  Edit them here to prevent breaking tests
const Name = "shepherd"
const Usage = "Shepherd Membership Import CLI"

func GetApp() *cli.App {
	return setUpApp()
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage
	app.Version = constants.Version
	var filePath, outputPath, createdBy, migrationDir string
	var rowCount, threshold int
	app.Commands = []cli.Command{
		{
			Name:  "start-api",
			Usage: "Start the import API",
			Action: func(c *cli.Context) error {
				// Worker queue connection
				queueDatabaseURL := conf.GetEnv("QUEUE_DATABASE_URL")
				pgxcfg, err := pgx.ParseURI(queueDatabaseURL)
				if err != nil {
					return err
				}

				pgxpool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
					ConnConfig:   pgxcfg,
					AfterConnect: que.PrepareStatements,
				})
				if err != nil {
					log.API.Fatal(err)
				}
				defer pgxpool.Close()

				db := database.GetDbConnection()
				defer db.Close()

				h := api.NewHandler(db, queueing.NewEnqueuer(pgxpool))

				fmt.Fprintf(app.Writer, "%s\n", "Starting shepherd...")

				// Accepts and redirects HTTP requests to HTTPS
				srv := &http.Server{
					Handler:      web.NewHTTPRouter(),
					Addr:         ":3001",
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 5 * time.Second,
				}
				go func() { log.API.Fatal(srv.ListenAndServe()) }()

				api := &http.Server{
					Handler:      web.NewAPIRouter(h, db),
					ReadTimeout:  time.Duration(utils.GetEnvInt("API_READ_TIMEOUT", 10)) * time.Second,
					WriteTimeout: time.Duration(utils.GetEnvInt("API_WRITE_TIMEOUT", 20)) * time.Second,
					IdleTimeout:  time.Duration(utils.GetEnvInt("API_IDLE_TIMEOUT", 120)) * time.Second,
				}

				smux := servicemux.New(":3000")
				smux.AddServer(api, "")
				smux.Serve()

				return nil
			},
		},
		{
			Name:     "migrate",
			Category: "Database tools",
			Usage:    "Apply the shepherd and queue database schemas",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "dir",
					Usage:       "Directory holding the migration sources",
					Value:       "db/migrations",
					Destination: &migrationDir,
				},
			},
			Action: func(c *cli.Context) error {
				targets := []struct {
					path  string
					dbURL string
				}{
					{filepath.Join(migrationDir, "shepherd"), conf.GetEnv("DATABASE_URL")},
					{filepath.Join(migrationDir, "shepherd_queue"), conf.GetEnv("QUEUE_DATABASE_URL")},
				}

				for _, tgt := range targets {
					version, err := applyMigrations(tgt.path, tgt.dbURL)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Migrations in %s applied; schema at version %d\n", tgt.path, version)
				}
				return nil
			},
		},
		{
			Name:     "generate-template",
			Category: "Data import",
			Usage:    "Write the roster template CSV and print the column legend",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "output",
					Usage:       "File to write the template to; prints to stdout when empty",
					Destination: &outputPath,
				},
			},
			Action: func(c *cli.Context) error {
				if outputPath == "" {
					fmt.Fprintf(app.Writer, "%s\n%s", roster.Template(), roster.FieldLegend())
					return nil
				}

				if err := os.WriteFile(outputPath, roster.Template(), 0600); err != nil {
					return errors.Wrapf(err, "could not write roster template to %s", outputPath)
				}
				fmt.Fprintf(app.Writer, "Roster template written to %s\n%s", outputPath, roster.FieldLegend())
				return nil
			},
		},
		{
			Name:     "generate-sample",
			Category: "Data import",
			Usage:    "Write a synthetic roster CSV for demos and load testing",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "output",
					Usage:       "File to write the roster to",
					Destination: &outputPath,
				},
				cli.IntFlag{
					Name:        "rows",
					Usage:       "Number of member rows to generate",
					Value:       100,
					Destination: &rowCount,
				},
			},
			Action: func(c *cli.Context) error {
				if outputPath == "" {
					return errors.New("output file (--output) is required")
				}
				if rowCount < 1 || rowCount > roster.MaxRows {
					return errors.Errorf("rows (--rows) must be between 1 and %d", roster.MaxRows)
				}

				if err := gen.WriteRosterFile(outputPath, roster.TemplateColumns(), rowCount); err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Wrote %d synthetic member rows to %s\n", rowCount, outputPath)
				return nil
			},
		},
		{
			Name:     "import-roster",
			Category: "Data import",
			Usage:    "Import a roster file synchronously, without the queue",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "file",
					Usage:       "Path of the roster CSV to import",
					Destination: &filePath,
				},
				cli.StringFlag{
					Name:        "created-by",
					Usage:       "Operator recorded on the import job",
					Value:       "shepherd-cli",
					Destination: &createdBy,
				},
			},
			Action: func(c *cli.Context) error {
				db := database.GetDbConnection()
				defer db.Close()

				svc := models.NewService(postgres.NewRepository(db), uploads.NewFileHandler(log.API), roster.MaxRows)

				m := monitoring.GetMonitor()
				txn := m.Start("import-roster", nil, nil)
				defer m.End(txn)

				ctx := newrelic.NewContext(context.Background(), txn)
				job, err := importRoster(ctx, svc, worker.NewWorker(db), filePath, createdBy)
				if err != nil {
					return err
				}

				fmt.Fprintf(app.Writer, "Completed roster import.  Job %d finished %s: %d of %d rows imported, %d failed.  See the job error log for details.\n",
					job.ID, job.Status, job.SuccessfulRecords, job.TotalRecords, job.FailedRecords)
				return nil
			},
		},
		{
			Name:     "cleanup-uploads",
			Category: "Cleanup",
			Usage:    "Delete staged roster files that have aged out of the pending deletion directory",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:        "threshold",
					Usage:       "Hours a file may sit in the pending deletion directory",
					Value:       24,
					Destination: &threshold,
				},
			},
			Action: func(c *cli.Context) error {
				dir := conf.GetEnv("PENDING_DELETION_DIR")
				if dir == "" {
					return errors.New("PENDING_DELETION_DIR must be set")
				}

				deleted, err := utils.DeleteDirectoryContents(dir, time.Duration(threshold)*time.Hour)
				if deleted > 0 {
					fmt.Fprintf(app.Writer, "Successfully deleted %v files from %v\n", deleted, dir)
				}
				return err
			},
		},
	}
	return app
}

// applyMigrations runs every pending up migration under sourceDir against the
// database at dbURL and reports the resulting schema version.
func applyMigrations(sourceDir, dbURL string) (uint, error) {
	m, err := migrate.New("file://"+sourceDir, dbURL)
	if err != nil {
		return 0, errors.Wrapf(err, "could not open migration source %s", sourceDir)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.API.Warnf("Failed to close migration source %s: %s", sourceDir, srcErr.Error())
		}
		if dbErr != nil {
			log.API.Warnf("Failed to close migration database handle: %s", dbErr.Error())
		}
	}()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return 0, errors.Wrapf(err, "could not apply migrations from %s", sourceDir)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, errors.Wrapf(err, "could not read migration version for %s", sourceDir)
	}
	if dirty {
		return version, errors.Errorf("schema version %d is dirty; repair it before rerunning", version)
	}

	return version, nil
}

// importRoster runs the queue worker's code path inline: stage the file,
// create the job, then validate and process it on the calling goroutine.
func importRoster(ctx context.Context, svc models.Service, w worker.Worker, path, createdBy string) (*models.ImportJob, error) {
	if path == "" {
		return nil, errors.New("roster file (--file) is required")
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "could not open roster file %s", path)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.API.Warnf("Failed to close roster file %s: %s", path, err.Error())
		}
	}()

	job, err := svc.StartImport(ctx, filepath.Base(path), f, createdBy)
	if err != nil {
		return nil, err
	}

	jobArgs := models.ImportJobArgs{ID: job.ID, TransactionID: uuid.NewRandom().String()}
	ctx = log.NewStructuredLoggerEntry(log.API, ctx)
	ctx, _ = log.SetCtxLogger(ctx, "job_id", jobArgs.ID)
	ctx, _ = log.SetCtxLogger(ctx, "transaction_id", jobArgs.TransactionID)

	validated, err := w.ValidateJob(ctx, jobArgs)
	if err != nil {
		return nil, errors.Wrap(err, "import job did not survive validation")
	}

	if err := w.ProcessJob(ctx, *validated, jobArgs); err != nil {
		return nil, errors.Wrap(err, "failed to process import job")
	}

	final, err := svc.GetJob(ctx, job.ID)
	if err != nil {
		return nil, errors.Wrap(err, "import ran but the job could not be re-read")
	}
	return final, nil
}
