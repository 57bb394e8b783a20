package uploads

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/ShepherdCMS/shepherd-app/shepherd/utils"
)

// File handlers stage roster files between the API that receives them and the
// worker that imports them. This interface allows us to stage files on
// multiple backends, including local directories and AWS S3.
type FileHandler interface {
	// Save stages the uploaded roster under a uuid-derived name and returns
	// the path the worker should read it back from.
	Save(ctx context.Context, fileName string, data io.Reader) (string, error)
	// Open a previously staged roster file. The returned func releases any
	// resources tied to the open file and must be called when done.
	Open(ctx context.Context, path string) (io.ReadCloser, func(), error)
	// Cleanup a staged roster once its job is finished with it, and handle
	// any files whose import did not succeed.
	Cleanup(ctx context.Context, path string, imported bool) error
}

// NewFileHandler selects the staging backend: S3 when a bucket is configured,
// the local filesystem otherwise.
func NewFileHandler(logger logrus.FieldLogger) FileHandler {
	if bucket := conf.GetEnv("SHEPHERD_UPLOAD_S3_BUCKET"); bucket != "" {
		return &S3FileHandler{
			Logger:        logger,
			Bucket:        bucket,
			Endpoint:      conf.GetEnv("LOCAL_STACK_ENDPOINT"),
			AssumeRoleArn: conf.GetEnv("SHEPHERD_UPLOAD_S3_ASSUME_ROLE_ARN"),
		}
	}

	return &LocalFileHandler{
		Logger:                 logger,
		UploadDir:              utils.FromEnv("SHEPHERD_UPLOAD_DIR", "/tmp/shepherd/uploads"),
		PendingDeletionDir:     conf.GetEnv("PENDING_DELETION_DIR"),
		FileArchiveThresholdHr: uint(utils.GetEnvInt("FILE_ARCHIVE_THRESHOLD_HR", 72)),
	}
}
