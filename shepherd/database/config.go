package database

import (
	"errors"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/ShepherdCMS/shepherd-app/log"
)

// Config carries the connection settings for the roster database and the
// queue database, hydrated from the environment by conf.Checkout.
type Config struct {
	DatabaseURL      string `conf:"DATABASE_URL"`
	QueueDatabaseURL string `conf:"QUEUE_DATABASE_URL"`

	MaxOpenConns       int `conf:"SHEPHERD_DB_MAX_OPEN_CONNS" conf_default:"40"`
	MaxIdleConns       int `conf:"SHEPHERD_DB_MAX_IDLE_CONNS" conf_default:"20"`
	ConnMaxLifetimeMin int `conf:"SHEPHERD_DB_CONN_MAX_LIFETIME_MIN" conf_default:"10"`
	ConnMaxIdleTime    int `conf:"SHEPHERD_DB_CONN_MAX_IDLE_TIME" conf_default:"30"`

	HealthCheckSec int `conf:"DB_HEALTH_CHECK_INTERVAL" conf_default:"5"`
}

// Both connection strings are mandatory; the service cannot run roster-only
// or queue-only.
func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("invalid config, DatabaseURL must be set")
	}
	if c.QueueDatabaseURL == "" {
		return errors.New("invalid config, QueueDatabaseURL must be set")
	}
	return nil
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.API.Info("Database configuration loaded.")

	return cfg, nil
}
