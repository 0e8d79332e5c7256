package database

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type PoolStats struct {
	MaxOpenConns      int           `json:"max_open_connections"`
	OpenConns         int           `json:"open_connections"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

type HealthCheck struct {
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (db *DB) GetPoolStats() PoolStats {
	stats := db.Stats()
	return PoolStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (db *DB) HealthCheck(ctx context.Context) HealthCheck {
	start := time.Now()
	hc := HealthCheck{
		Timestamp: start,
		Stats:     db.GetPoolStats(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := db.PingContext(pingCtx)
	hc.ResponseTime = time.Since(start)

	if err != nil {
		hc.Status = "unhealthy"
		hc.Error = err.Error()
		slog.Error("Database health check failed", "error", err)
	} else {
		hc.Status = "healthy"
	}

	return hc
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

// IsSerializationFailure reports errors that a retry of the whole unit of work can fix.
func IsSerializationFailure(err error) bool {
	code := pqCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// IsRetryableError covers transient connection errors as well as serialization failures.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsSerializationFailure(err) {
		return true
	}

	errStr := err.Error()
	for _, retryable := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"driver: bad connection",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
