package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LocalFileHandler stages files on a local directory. This handler should
// only be used for single-node and dev/test deployments.
type LocalFileHandler struct {
	Logger                 logrus.FieldLogger
	UploadDir              string
	PendingDeletionDir     string
	FileArchiveThresholdHr uint
}

func (handler *LocalFileHandler) Save(ctx context.Context, fileName string, data io.Reader) (string, error) {
	if err := os.MkdirAll(handler.UploadDir, 0744); err != nil {
		err = errors.Wrapf(err, "could not create upload directory %s", handler.UploadDir)
		handler.Logger.Error(err)
		return "", err
	}

	newpath := filepath.Join(handler.UploadDir, stagedName(fileName))
	f, err := os.OpenFile(filepath.Clean(newpath), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		err = errors.Wrapf(err, "could not create staging file %s", newpath)
		handler.Logger.Error(err)
		return "", err
	}

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		err = errors.Wrapf(err, "could not write staging file %s", newpath)
		handler.Logger.Error(err)
		return "", err
	}

	if err := f.Close(); err != nil {
		err = errors.Wrapf(err, "could not close staging file %s", newpath)
		handler.Logger.Error(err)
		return "", err
	}

	handler.Logger.Infof("Staged roster file %s", newpath)
	return newpath, nil
}

func (handler *LocalFileHandler) Open(ctx context.Context, path string) (io.ReadCloser, func(), error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		err = errors.Wrapf(err, "could not read roster file %s", path)
		handler.Logger.Error(err)
		return nil, nil, err
	}

	return f, func() {
		if err := f.Close(); err != nil {
			handler.Logger.Error(err)
		}
	}, nil
}

func (handler *LocalFileHandler) Cleanup(ctx context.Context, path string, imported bool) error {
	fi, err := os.Stat(path)
	if err != nil {
		err = errors.Wrapf(err, "could not stat roster file %s", path)
		handler.Logger.Error(err)
		return err
	}

	if !imported {
		// Files that never imported stay in place for a while so they can be
		// inspected; the threshold decides when they stop being interesting.
		elapsed := time.Since(fi.ModTime()).Hours()
		if int(elapsed) <= int(handler.FileArchiveThresholdHr) {
			handler.Logger.Infof("File %s not yet past the archive threshold, leaving in place", path)
			return nil
		}
	}

	newpath := fmt.Sprintf("%s/%s", handler.PendingDeletionDir, filepath.Base(path))
	if err := os.Rename(path, newpath); err != nil {
		errMsg := fmt.Sprintf("File %s failed to clean up properly: %v", path, err)
		handler.Logger.Error(errMsg)
		return errors.New(errMsg)
	}

	if imported {
		handler.Logger.Infof("File %s successfully ingested, moved to the pending deletion dir", path)
	} else {
		handler.Logger.Infof("File %s never ingested, moved to the pending deletion dir", path)
	}
	return nil
}

func stagedName(fileName string) string {
	return fmt.Sprintf("%s-%s", uuid.NewRandom().String(), filepath.Base(fileName))
}
