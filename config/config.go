package config

/*
   The older of the two viper wrappers in this repository. It predates the
   conf package and is still consumed by the listener plumbing
   (shepherd/servicemux); new code should import conf instead. It stays
   until the cut-over described in conf/config.go reaches stage 3.

   Assumptions:
   1. The configuration file is a env file
   2. The configuration file, once loaded, stays immutable for the uptime
   of the application
*/

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

var envVars viper.Viper

// Outcome of the load attempt in init.
const (
	configgood    uint8 = 0
	configbad     uint8 = 1
	noconfigfound uint8 = 2
)

var state uint8 = configgood // left untouched when the file loads cleanly

// setup points a fresh viper at dir and forces the read, since viper is
// lazy and a bad file should be caught during startup.
func setup(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		state = configbad
	}
	return v
}

/*
   init:
   When the package is imported, try a couple of locations to find the
   local.env configuration file. If no file turns up, which is the case on
   PROD, every lookup falls through to os.Getenv.
*/
func init() {

	// Possible config locations. If there are more places to look, add here:
	locations := []string{
		"../shared_files/env", // TEST DEV location
		".",                   // PROD location, not populated yet
	}

	for i, dir := range locations {
		attempts := 1
		if i > 0 {
			// The api container can come up before the volume holding the
			// env file; give the deployed location a few tries.
			attempts = 3
		}
		if waitForEnvFile(dir, attempts) {
			envVars = *setup(dir)
			return
		}
	}

	state = noconfigfound
}

// waitForEnvFile polls for dir/local.env, sleeping ten seconds between
// attempts.
func waitForEnvFile(dir string, attempts int) bool {
	for {
		if _, err := os.Stat(dir + "/local.env"); err == nil {
			return true
		}
		attempts--
		if attempts < 1 {
			return false
		}
		time.Sleep(time.Second * 10)
	}
}

// GetEnv returns the value of key from the loaded file, falling back to the
// process environment. Missing keys yield "".
func GetEnv(key string) string {
	if state != configgood {
		return os.Getenv(key)
	}

	if value := envVars.GetString(key); value != "" {
		return value
	}
	return os.Getenv(key)
}

// SetEnv is for tests only. The protect parameter must be a *testing.T;
// anything else panics, which keeps runtime code from mutating
// configuration through this package.
func SetEnv(protect interface{}, key string, value string) error {
	if _, ok := protect.(*testing.T); !ok {
		panic("You cannot use SetEnv function outside testing!")
	}

	if state == configgood {
		envVars.Set(key, value)
		return nil
	}
	return os.Setenv(key, value)
}
