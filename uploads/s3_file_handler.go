package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type S3FileHandler struct {
	Logger logrus.FieldLogger
	Bucket string
	// Optional S3 endpoint to use for connection.
	Endpoint string
	// Optional role to assume when connecting to S3.
	AssumeRoleArn string
}

func (handler *S3FileHandler) Save(ctx context.Context, fileName string, data io.Reader) (string, error) {
	sess, err := handler.createSession()
	if err != nil {
		handler.Logger.Errorf("Failed to create S3 session: %s", err)
		return "", err
	}

	key := fmt.Sprintf("uploads/%s-%s", uuid.NewRandom().String(), filepath.Base(fileName))
	uploader := s3manager.NewUploader(sess)
	result, err := uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(handler.Bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		handler.Logger.Errorf("Failed to upload bucket %s, key %s: %s", handler.Bucket, key, err)
		return "", err
	}

	handler.Logger.Infof("file uploaded: %s", result.Location)
	return fmt.Sprintf("s3://%s/%s", handler.Bucket, key), nil
}

func (handler *S3FileHandler) Open(ctx context.Context, path string) (io.ReadCloser, func(), error) {
	handler.Logger.Infof("Opening file %s", path)
	bucket, file := parseS3Uri(path)

	sess, err := handler.createSession()
	if err != nil {
		return nil, nil, err
	}

	downloader := s3manager.NewDownloader(sess)
	buff := &aws.WriteAtBuffer{}
	numBytes, err := downloader.Download(buff, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(file),
	})

	if err != nil {
		handler.Logger.Errorf("Failed to download bucket %s, key %s", bucket, file)
		return nil, nil, err
	}

	handler.Logger.Infof("file downloaded: size=%d", numBytes)

	return io.NopCloser(bytes.NewReader(buff.Bytes())), func() {}, nil
}

func (handler *S3FileHandler) Cleanup(ctx context.Context, path string, imported bool) error {
	if !imported {
		// Don't do anything. The S3 bucket should have a retention policy that
		// automatically cleans up files after a specified period of time,
		handler.Logger.Warningf("File %s was not imported successfully. Skipping cleanup.", path)
		return nil
	}

	sess, err := handler.createSession()
	if err != nil {
		return err
	}

	handler.Logger.Infof("Cleaning up file %s", path)

	bucket, file := parseS3Uri(path)
	svc := s3.New(sess)
	_, err = svc.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(file)})
	if err != nil {
		errMsg := fmt.Sprintf("File %s failed to clean up properly, error occurred while deleting object: %v", path, err)
		handler.Logger.Error(errMsg)
		return errors.New(errMsg)
	}

	err = svc.WaitUntilObjectNotExists(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(file),
	})
	if err != nil {
		errMsg := fmt.Sprintf("File %s failed to clean up properly, error occurred while waiting for object to be deleted: %v", path, err)
		handler.Logger.Error(errMsg)
		return errors.New(errMsg)
	}

	handler.Logger.Infof("File %s successfully ingested and deleted from S3.", path)
	return nil
}

func (handler *S3FileHandler) createSession() (*session.Session, error) {
	sess := session.Must(session.NewSession())

	config := aws.Config{
		Region: aws.String("us-east-1"),
	}

	if handler.Endpoint != "" {
		config.S3ForcePathStyle = aws.Bool(true)
		config.Endpoint = &handler.Endpoint
	}

	if handler.AssumeRoleArn != "" {
		config.Credentials = stscreds.NewCredentials(
			sess,
			handler.AssumeRoleArn,
		)
	}

	return session.NewSessionWithOptions(session.Options{
		Config: config,
	})
}

func parseS3Uri(str string) (bucket string, key string) {
	workingString := strings.TrimPrefix(str, "s3://")
	resultArr := strings.SplitN(workingString, "/", 2)

	if len(resultArr) == 1 {
		return resultArr[0], ""
	}

	return resultArr[0], resultArr[1]
}
