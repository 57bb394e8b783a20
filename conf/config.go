package conf

/*
   conf resolves configuration for the shepherd binaries. A checked-in env
   file seeds the values when one is present; anything the file does not
   carry is pulled from the process environment on first use and cached.
   Deployed environments ship no file, so every lookup there passes straight
   through to the environment.

   The file, once loaded, is immutable for the life of the process. Tests
   are the exception: SetEnv and UnsetEnv take a *testing.T precisely so
   runtime code cannot reach for them casually.
*/

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

// Outcome of the one-time load attempt in init.
const (
	loadedFromFile uint8 = iota
	fileUnreadable
	noFileFound
)

var (
	state   uint8
	envVars viper.Viper
)

// Directories probed for local.env, most specific first. The second entry
// covers images where the repository is not mounted under GOPATH.
var envSearchPath = []string{
	"/go/src/github.com/ShepherdCMS/shepherd-app/shared_files/env",
	"/usr/local/shepherd/env",
}

func init() {
	dir, found := findEnv(envSearchPath)
	if !found {
		state = noFileFound
		return
	}
	envVars = *setup(dir)
}

// setup points a fresh viper at dir and reads local.env, recording the
// outcome in state. Kept separate from init so tests can aim the package at
// their own fixture directory.
func setup(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		state = fileUnreadable
	} else {
		state = loadedFromFile
	}
	return v
}

// findEnv returns the first directory in dirs that holds a local.env.
func findEnv(dirs []string) (string, bool) {
	for _, dir := range dirs {
		if _, err := os.Stat(dir + "/local.env"); err == nil {
			return dir, true
		}
	}
	return "", false
}

// GetEnv returns the value of key, or "" when it is set nowhere.
func GetEnv(key string) string {
	value, _ := LookupEnv(key)
	return value
}

// LookupEnv mirrors os.LookupEnv with the loaded file consulted first.
// Values found only in the environment are adopted into the file state, so
// a later UnsetEnv has a single place to clear and repeat lookups skip the
// OS call.
func LookupEnv(key string) (string, bool) {
	if state != loadedFromFile {
		return os.LookupEnv(key)
	}

	if value := envVars.Get(key); value != nil && value != "" {
		return value.(string), true
	}

	if value, ok := os.LookupEnv(key); ok {
		var t testing.T
		_ = SetEnv(&t, key, value)
		return value, true
	}

	return "", false
}

// SetEnv writes key into the loaded file state, or into the real
// environment when no file is loaded. The *testing.T parameter is a gate:
// only tests (and this package) may mutate configuration after startup.
func SetEnv(protect *testing.T, key string, value string) error {
	if state == loadedFromFile {
		envVars.Set(key, value)
		return nil
	}
	return os.Setenv(key, value)
}

// UnsetEnv clears key from the file state and from the environment. Both
// must be cleared because LookupEnv may have adopted the environment value.
func UnsetEnv(protect *testing.T, key string) error {
	if state == loadedFromFile {
		envVars.Set(key, "")
	}
	return os.Unsetenv(key)
}
