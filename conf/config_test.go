package conf

import (
	"fmt"
	"os"
	"testing"
)

// Every test reads the checked-in conf/test/local.env fixture so results do
// not depend on whatever machine-level configuration happens to exist.
func TestMain(m *testing.M) {
	envVars = *setup("test")
	if state != loadedFromFile {
		fmt.Println("conf: could not load conf/test/local.env")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestGetEnvFileValues(t *testing.T) {
	fixtures := map[string]string{
		"TEST_HELLO":    "world",
		"TEST_LIST":     "One,Two,Three,Four",
		"TEST_SOMEPATH": "../../FAKE/PATH",
		"TEST_NUM":      "1234",
		"TEST_BOOL":     "true",
	}
	for key, want := range fixtures {
		key, want := key, want
		t.Run(key, func(t *testing.T) {
			if got := GetEnv(key); got != want {
				t.Errorf("GetEnv(%s) = %q, want %q", key, got, want)
			}
		})
	}
}

func TestGetEnvMissing(t *testing.T) {
	if got := GetEnv("TEST_DOESNOTEXIST"); got != "" {
		t.Errorf("GetEnv returned %q for a variable set nowhere", got)
	}
}

func TestSetEnv(t *testing.T) {
	if err := SetEnv(t, "TEST_CHANGE", "../relocated"); err != nil {
		t.Errorf("SetEnv() error = %v", err)
	}
	if got := GetEnv("TEST_CHANGE"); got != "../relocated" {
		t.Errorf("GetEnv after SetEnv = %q, want %q", got, "../relocated")
	}
}

func TestUnsetEnv(t *testing.T) {
	if err := UnsetEnv(t, "TEST_REMOVE"); err != nil {
		t.Errorf("UnsetEnv() error = %v", err)
	}
	if got := GetEnv("TEST_REMOVE"); got != "" {
		t.Errorf("file state still holds %q after UnsetEnv", got)
	}
	if got := os.Getenv("TEST_REMOVE"); got != "" {
		t.Errorf("environment still holds %q after UnsetEnv", got)
	}
}

func TestSetup(t *testing.T) {
	setup("FAKE")
	if state != fileUnreadable {
		t.Errorf("state = %v after pointing setup at a directory with no local.env", state)
	}

	v := setup("test")
	if state != loadedFromFile {
		t.Errorf("state = %v after reading the fixture directory", state)
	}
	if got := v.GetString("TEST"); got != "true" {
		t.Errorf("TEST = %q, want %q", got, "true")
	}
}

func TestFindEnv(t *testing.T) {
	tests := []struct {
		name      string
		dirs      []string
		wantDir   string
		wantFound bool
	}{
		{"first directory wins", []string{"test", "FAKE"}, "test", true},
		{"later directories are searched", []string{"FAKE", "test"}, "test", true},
		{"no directory holds a file", []string{"FAKE", "ALSOFAKE"}, "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			dir, found := findEnv(tt.dirs)
			if found != tt.wantFound || dir != tt.wantDir {
				t.Errorf("findEnv(%v) = %q, %v; want %q, %v", tt.dirs, dir, found, tt.wantDir, tt.wantFound)
			}
		})
	}
}

func TestLookupEnv(t *testing.T) {
	t.Run("set nowhere", func(t *testing.T) {
		if got, ok := LookupEnv("TEST_DOESNOTEXIST"); ok || got != "" {
			t.Errorf("LookupEnv() = %q, %v for a variable set nowhere", got, ok)
		}
	})

	t.Run("cleared by UnsetEnv", func(t *testing.T) {
		var _ = UnsetEnv(t, "TEST_CHANGE")
		if got, ok := LookupEnv("TEST_CHANGE"); ok || got != "" {
			t.Errorf("LookupEnv() = %q, %v after UnsetEnv", got, ok)
		}
	})

	t.Run("adopted from the environment", func(t *testing.T) {
		os.Setenv("TEST_EVONLY", "ev-only")
		defer os.Unsetenv("TEST_EVONLY")

		got, ok := LookupEnv("TEST_EVONLY")
		if !ok || got != "ev-only" {
			t.Errorf("LookupEnv() = %q, %v, want the environment value", got, ok)
		}

		// The value now lives in the file state, surviving the OS unset.
		os.Unsetenv("TEST_EVONLY")
		if got := GetEnv("TEST_EVONLY"); got != "ev-only" {
			t.Errorf("adopted value was not cached, GetEnv() = %q", got)
		}
	})

	t.Run("present but empty in the environment", func(t *testing.T) {
		os.Setenv("TEST_EVEMPTY", "")
		defer os.Unsetenv("TEST_EVEMPTY")

		if got, ok := LookupEnv("TEST_EVEMPTY"); !ok || got != "" {
			t.Errorf("LookupEnv() = %q, %v, want \"\", true", got, ok)
		}
	})
}

type poolCfg struct {
	MaxConns    int    `conf:"TEST_NUM"`
	Keepsake    string `conf:"-"`
	TEST_HELLO  string
	notExported string
}

type serviceCfg struct {
	Teams    string `conf:"TEST_LIST"`
	Label    string `conf:"TEST_LABEL" conf_default:"fallback"`
	Capacity int    `conf:"TEST_CAPACITY" conf_default:"25"`
	poolCfg
}

type badCfg struct {
	Count int `conf:"TEST_HELLO"`
}

func TestCheckout(t *testing.T) {
	t.Run("struct passed by value is rejected", func(t *testing.T) {
		if err := Checkout(serviceCfg{}); err == nil {
			t.Error("Checkout accepted a struct copy")
		}
	})

	t.Run("pointer to struct is hydrated", func(t *testing.T) {
		cfg := serviceCfg{}
		if err := Checkout(&cfg); err != nil {
			t.Fatalf("Checkout returned error: %v", err)
		}
		if cfg.Teams != "One,Two,Three,Four" {
			t.Errorf("Teams = %q", cfg.Teams)
		}
		if cfg.MaxConns != 1234 {
			t.Errorf("MaxConns = %v, want 1234", cfg.MaxConns)
		}
		if cfg.TEST_HELLO != "world" {
			t.Errorf("TEST_HELLO = %q, want %q", cfg.TEST_HELLO, "world")
		}
		if cfg.Keepsake != "" {
			t.Errorf("Keepsake = %q, want it untouched", cfg.Keepsake)
		}
		if cfg.Label != "fallback" || cfg.Capacity != 25 {
			t.Errorf("defaults not applied: Label = %q, Capacity = %v", cfg.Label, cfg.Capacity)
		}
	})

	t.Run("unparseable value surfaces an error", func(t *testing.T) {
		cfg := badCfg{}
		if err := Checkout(&cfg); err == nil {
			t.Error("Checkout swallowed a failed int conversion")
		}
	})

	t.Run("slice of variable names", func(t *testing.T) {
		names := []string{"TEST_DOESNOTEXIST", "TEST_LIST"}
		if err := Checkout(&names); err == nil {
			t.Error("Checkout accepted a pointer to a slice")
		}
		if err := Checkout(names); err != nil {
			t.Fatalf("Checkout returned error: %v", err)
		}
		if names[0] != "" || names[1] != "One,Two,Three,Four" {
			t.Errorf("hydrated slice = %v", names)
		}
	})
}
