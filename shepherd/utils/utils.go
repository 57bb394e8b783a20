package utils

import (
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ShepherdCMS/shepherd-app/conf"
)

// FromEnv returns the value of the named variable, or otherwise when the
// variable is empty or unset.
func FromEnv(key, otherwise string) string {
	s := conf.GetEnv(key)
	if s == "" {
		logrus.Infof("No value for %s; defaulting to %s.", key, otherwise)
		return otherwise
	}
	return s
}

// GetEnvInt reads the named variable as an int. Unset or unparseable
// values yield defaultVal.
func GetEnvInt(key string, defaultVal int) int {
	if parsed, err := strconv.Atoi(conf.GetEnv(key)); err == nil {
		return parsed
	}
	return defaultVal
}
