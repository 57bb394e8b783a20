package main

import (
	"os"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/ShepherdCMS/shepherd-app/shepherd/database"
	"github.com/ShepherdCMS/shepherd-app/shepherd/health"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
)

// HealthLogger emits one structured line per probe so the log pipeline can
// alert on worker database reachability.
type HealthLogger struct {
	Logger  *logrus.Logger
	checker health.HealthChecker
}

func NewHealthLogger() *HealthLogger {
	logger := logrus.New()
	logger.Formatter = &logrus.JSONFormatter{}
	logger.SetReportCaller(true)

	/* #nosec -- 0640 permissions required for Splunk ingestion */
	file, err := os.OpenFile(conf.GetEnv("WORKER_HEALTH_LOG"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err == nil {
		logger.SetOutput(file)
	} else {
		logger.Info("Could not open the worker health log; probes go to stderr")
	}

	return &HealthLogger{
		Logger:  logger,
		checker: health.NewHealthChecker(database.GetDbConnection()),
	}
}

func (l *HealthLogger) Log() {
	fields := logrus.Fields{
		"type": "health",
		"id":   uuid.NewRandom(),
	}

	if _, ok := l.checker.IsWorkerDatabaseOK(); ok {
		fields["db"] = "ok"
	} else {
		fields["db"] = "error"
	}

	l.Logger.WithFields(fields).Info()
}
