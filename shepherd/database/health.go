package database

import (
	"context"
	"time"

	"github.com/jackc/pgx"
	log "github.com/sirupsen/logrus"
)

// StartHealthCheck pings each connection in the pool on the supplied interval.
// Needed until we move to pgx v4.
func StartHealthCheck(ctx context.Context, pool *pgx.ConnPool, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Stopping queue database health check")
				return
			case <-ticker.C:
				conn, err := pool.Acquire()
				if err != nil {
					log.Warnf("Failed to acquire connection %s", err.Error())
					continue
				}

				if err := conn.Ping(ctx); err != nil {
					log.Warnf("Failed to ping database %s", err.Error())
				}

				pool.Release(conn)
			}
		}
	}()
}
