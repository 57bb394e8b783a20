package utils

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DeleteDirectoryContents removes every regular file in dir whose
// modification time is older than the threshold. Subdirectories are left
// alone. Returns the number of files deleted.
func DeleteDirectoryContents(dir string, olderThan time.Duration) (filesDeleted int, err error) {
	f, err := os.Open(filepath.Clean(dir))
	if err != nil {
		err = errors.Wrapf(err, "could not open dir: %s", dir)
		log.Error(err)
		return 0, err
	}

	files, err := f.Readdir(-1)
	if err != nil {
		err = errors.Wrapf(err, "error reading files from dir: %s", f.Name())
		log.Error(err)
		return 0, err
	}

	if err := f.Close(); err != nil {
		err = errors.Wrapf(err, "error closing dir: %s", f.Name())
		log.Error(err)
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	for _, file := range files {
		if file.IsDir() || file.ModTime().After(cutoff) {
			continue
		}

		log.Infof("deleting %s", file.Name())
		if err := os.Remove(filepath.Join(dir, file.Name())); err != nil {
			err = errors.Wrapf(err, "error deleting file: %s from dir: %s", file.Name(), dir)
			log.Error(err)
			return filesDeleted, err
		}
		filesDeleted++
	}

	return filesDeleted, nil
}
