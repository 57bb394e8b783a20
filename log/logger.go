package log

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/sirupsen/logrus"
)

var (
	API     logrus.FieldLogger
	Request logrus.FieldLogger
	Health  logrus.FieldLogger

	Worker logrus.FieldLogger
)

func init() {
	SetupLoggers()
}

// SetupLoggers builds every package-level logger from the current conf
// values. Called once at init; tests call it again after swapping the
// *_LOG variables to point at temp files.
func SetupLoggers() {
	API = Logger(logrus.New(), conf.GetEnv("SHEPHERD_ERROR_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))
	Request = Logger(logrus.New(), conf.GetEnv("SHEPHERD_REQUEST_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))
	Health = Logger(logrus.New(), conf.GetEnv("SHEPHERD_HEALTH_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))

	Worker = Logger(logrus.New(), conf.GetEnv("SHEPHERD_WORKER_ERROR_LOG"),
		"worker", conf.GetEnv("ENVIRONMENT"))
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}

// type to create context.Context key
type CtxLoggerKeyType string

// context.Context key to get the logger entry from the request or job context
const CtxLoggerKey CtxLoggerKeyType = "ctxLogger"

// StructuredLoggerEntry holds the logger carried by a context. The entry is a
// pointer so fields added via SetCtxLogger are visible to everything sharing
// the context.
type StructuredLoggerEntry struct {
	Logger logrus.FieldLogger
}

// NewStructuredLoggerEntry seeds ctx with the given base logger.
func NewStructuredLoggerEntry(logger logrus.FieldLogger, ctx context.Context) context.Context {
	return context.WithValue(ctx, CtxLoggerKey, &StructuredLoggerEntry{Logger: logger})
}

// GetCtxLogger returns the logger carried by ctx, or the API logger when the
// context was never seeded.
func GetCtxLogger(ctx context.Context) logrus.FieldLogger {
	if entry, ok := ctx.Value(CtxLoggerKey).(*StructuredLoggerEntry); ok {
		return entry.Logger
	}
	return API
}

// SetCtxLogger adds a field to the logger carried by ctx and returns both the
// (possibly re-seeded) context and the resulting logger.
func SetCtxLogger(ctx context.Context, key string, value interface{}) (context.Context, logrus.FieldLogger) {
	if entry, ok := ctx.Value(CtxLoggerKey).(*StructuredLoggerEntry); ok {
		entry.Logger = entry.Logger.WithField(key, value)
		return ctx, entry.Logger
	}

	entry := &StructuredLoggerEntry{Logger: API.WithField(key, value)}
	return context.WithValue(ctx, CtxLoggerKey, entry), entry.Logger
}
