package log

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

// TestLoggers verifies that all of our loggers are set up
// with the expected parameters and write to the expected files.
func TestLoggers(t *testing.T) {
	env := uuid.New()
	conf.SetEnv(t, "ENVIRONMENT", env)

	tests := []struct {
		logEnv string
		// Use a supplier since the logger's reference is replaced every time
		// SetupLoggers runs. This allows us to retrieve the refreshed logger.
		logSupplier func() logrus.FieldLogger
		application string
	}{
		{"SHEPHERD_ERROR_LOG", func() logrus.FieldLogger { return API }, "api"},
		{"SHEPHERD_REQUEST_LOG", func() logrus.FieldLogger { return Request }, "api"},
		{"SHEPHERD_HEALTH_LOG", func() logrus.FieldLogger { return Health }, "api"},

		{"SHEPHERD_WORKER_ERROR_LOG", func() logrus.FieldLogger { return Worker }, "worker"},
	}
	for _, tt := range tests {
		t.Run(tt.logEnv, func(t *testing.T) {
			logFile, err := os.CreateTemp("", "*")
			old := conf.GetEnv(tt.logEnv)
			t.Cleanup(func() {
				assert.NoError(t, os.Remove(logFile.Name()))
				assert.NoError(t, conf.SetEnv(t, tt.logEnv, old))
			})

			assert.NoError(t, err)
			conf.SetEnv(t, tt.logEnv, logFile.Name())

			// Refresh the logger to reference the new configs
			SetupLoggers()

			msg := uuid.New()
			tt.logSupplier().Info(msg)
			verifyLogs(t, env, msg, tt.application, logFile)
		})
	}
}

func verifyLogs(t *testing.T, env, msg, application string, logFile *os.File) {
	data, err := io.ReadAll(logFile)
	assert.NoError(t, err)

	res := strings.Split(string(data), "\n")
	// msg + new line
	assert.Len(t, res, 2)
	var fields logrus.Fields
	assert.NoError(t, json.Unmarshal([]byte(res[0]), &fields))
	assert.Equal(t, application, fields["application"])
	assert.Equal(t, env, fields["environment"])
	assert.Equal(t, msg, fields["msg"])
	_, err = time.Parse(time.RFC3339Nano, fields["time"].(string))
	assert.NoError(t, err)
}

func TestSetCtxLogger(t *testing.T) {
	base := logrus.New()
	hook := test.NewLocal(base)

	ctx := NewStructuredLoggerEntry(base.WithField("application", "worker"), context.Background())
	ctx, logger := SetCtxLogger(ctx, "job_id", int64(42))

	logger.Info("first")
	assert.Equal(t, int64(42), hook.LastEntry().Data["job_id"])
	assert.Equal(t, "worker", hook.LastEntry().Data["application"])

	// Fields stick to the context for later retrievals.
	ctx, _ = SetCtxLogger(ctx, "transaction_id", "abc123")
	GetCtxLogger(ctx).Info("second")
	assert.Equal(t, int64(42), hook.LastEntry().Data["job_id"])
	assert.Equal(t, "abc123", hook.LastEntry().Data["transaction_id"])
}

func TestGetCtxLoggerUnseeded(t *testing.T) {
	// A context that never saw NewStructuredLoggerEntry still yields a usable logger.
	logger := GetCtxLogger(context.Background())
	assert.NotNil(t, logger)
}
