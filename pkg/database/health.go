package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// HealthStatus reports database connectivity and pool statistics.
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    time.Duration `json:"response_time_ns"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration_ns"`
	MaxOpenConns    int           `json:"max_open_connections"`
}

// Health reports connectivity and pool statistics for the Store's handle.
func (s *Store) Health(ctx context.Context) HealthStatus {
	return Health(ctx, s.db)
}

// Health pings the database and collects pool statistics.
func Health(ctx context.Context, db *sqlx.DB) HealthStatus {
	start := time.Now()
	err := db.PingContext(ctx)
	elapsed := time.Since(start)

	stats := db.Stats()
	status := "healthy"
	if err != nil {
		status = "unhealthy"
	}

	return HealthStatus{
		Status:          status,
		ResponseTime:    elapsed,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration,
		MaxOpenConns:    stats.MaxOpenConnections,
	}
}
