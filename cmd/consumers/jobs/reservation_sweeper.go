package jobs

import (
	"context"
	"time"

	"ticketpay/internal/logger"
)

type ReservationSweeper interface {
	SweepStale(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// ReservationSweepJob releases address reservations that were never bound to a
// payment, e.g. when the API died between allocation and the payment insert.
type ReservationSweepJob struct {
	*ticker
	sweeper ReservationSweeper
	ttl     time.Duration
	limit   int
	now     func() time.Time
}

func NewReservationSweepJob(sweeper ReservationSweeper, interval, ttl time.Duration, limit int) *ReservationSweepJob {
	j := &ReservationSweepJob{sweeper: sweeper, ttl: ttl, limit: limit, now: time.Now}
	j.ticker = newTicker("reservation_sweeper", interval, j.run)
	return j
}

func (j *ReservationSweepJob) run(ctx context.Context) {
	released, err := j.sweeper.SweepStale(ctx, j.now().Add(-j.ttl), j.limit)
	if err != nil {
		logger.WithContext(ctx).Error("Reservation sweep failed", "error", err)
		return
	}
	if released > 0 {
		logger.WithContext(ctx).Info("Stale reservations released", "released", released)
	} else {
		logger.WithContext(ctx).Debug("No stale reservations found")
	}
}
