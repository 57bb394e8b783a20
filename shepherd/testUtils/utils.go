package testUtils

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShepherdCMS/shepherd-app/conf"

	"github.com/otiai10/copy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// CtxMatcher accepts any context.Context argument in a mock expectation.
// See https://github.com/stretchr/testify/issues/519
var CtxMatcher = mock.MatchedBy(func(ctx context.Context) bool { return true })

// PrintSeparator prints a line of stars to stdout
func PrintSeparator() {
	fmt.Println(strings.Repeat("*", 80))
}

// RandomEmail returns a unique, syntactically valid address for seeding
// member rows in tests
func RandomEmail(t *testing.T) string {
	b, err := someRandomBytes(6)
	assert.NoError(t, err)
	return fmt.Sprintf("%x@example.test", b)
}

// RandomPhone returns a ten digit phone number
func RandomPhone(t *testing.T) string {
	b, err := someRandomBytes(10)
	assert.NoError(t, err)
	digits := make([]byte, 10)
	for i, v := range b {
		digits[i] = '0' + v%10
	}
	return string(digits)
}

func someRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

type EnvVar struct {
	Name  string
	Value string
}

// SetEnvVars sets the supplied env vars, returning a function that restores
// every original value when called
func SetEnvVars(t *testing.T, vars []EnvVar) func() {
	original := make([]EnvVar, 0, len(vars))
	for _, v := range vars {
		original = append(original, EnvVar{Name: v.Name, Value: conf.GetEnv(v.Name)})
		if err := conf.SetEnv(t, v.Name, v.Value); err != nil {
			t.Fatalf("Failed to set env var %s %s", v.Name, err.Error())
		}
	}

	return func() {
		for _, v := range original {
			if err := conf.SetEnv(t, v.Name, v.Value); err != nil {
				t.Fatalf("Failed to restore env var %s %s", v.Name, err.Error())
			}
		}
	}
}

// MakeDirToDelete seeds filePath with a handful of csv files for cleanup
// tests to chew on
func MakeDirToDelete(s suite.Suite, filePath string) {
	assert := assert.New(s.T())
	for i := 1; i <= 4; i++ {
		_, err := os.Create(filepath.Join(filePath, fmt.Sprintf("deleteMe%d.csv", i)))
		assert.Nil(err)
	}
}

// SetPendingDeletionDir points PENDING_DELETION_DIR at path and makes sure
// the directory exists
func SetPendingDeletionDir(s suite.Suite, path string) {
	if err := conf.SetEnv(s.T(), "PENDING_DELETION_DIR", path); err != nil {
		s.FailNow("failed to set the PENDING_DELETION_DIR env variable,", err)
	}
	if err := os.MkdirAll(conf.GetEnv("PENDING_DELETION_DIR"), 0744); err != nil {
		s.FailNow("failed to create the pending deletion directory, %s", err.Error())
	}
}

// CopyToTemporaryDirectory copies everything under src into a fresh
// temporary directory, returning its path and a cleanup function.
func CopyToTemporaryDirectory(t *testing.T, src string) (string, func()) {
	dir, err := os.MkdirTemp("", "*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory %s", err.Error())
	}

	if err := copy.Copy(src, dir); err != nil {
		t.Fatalf("Failed to copy contents from %s to %s %s", src, dir, err.Error())
	}

	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Failed to remove temporary directory %s", err.Error())
		}
	}
}
