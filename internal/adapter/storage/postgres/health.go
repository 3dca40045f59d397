package postgres

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

// HealthCheck implements ports.HealthChecker for the connection pool.
type HealthCheck struct {
	pool Pool
}

// NewHealthCheck creates a PostgreSQL health checker.
func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping acquires a connection and pings it, giving up after pingTimeout.
func (h *HealthCheck) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.pool.Ping(ctx)
}

func (h *HealthCheck) Name() string { return "postgres" }
