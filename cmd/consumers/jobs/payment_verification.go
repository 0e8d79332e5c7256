package jobs

import (
	"context"
	"time"

	"ticketpay/internal/logger"
)

type PendingVerifier interface {
	VerifyPending(ctx context.Context, limit int) (int, error)
}

// PaymentVerificationJob polls the chain for pending BCH payments so a purchaser who
// closed the page still gets a ticket.
type PaymentVerificationJob struct {
	*ticker
	verifier  PendingVerifier
	batchSize int
}

func NewPaymentVerificationJob(verifier PendingVerifier, interval time.Duration, batchSize int) *PaymentVerificationJob {
	j := &PaymentVerificationJob{verifier: verifier, batchSize: batchSize}
	j.ticker = newTicker("payment_verification", interval, j.run)
	return j
}

func (j *PaymentVerificationJob) run(ctx context.Context) {
	start := time.Now()
	completed, err := j.verifier.VerifyPending(ctx, j.batchSize)
	if err != nil {
		logger.WithContext(ctx).Error("Pending payment verification failed", "error", err)
		return
	}
	if completed > 0 {
		logger.WithContext(ctx).Info("Pending payments completed",
			"completed", completed,
			"elapsed_ms", time.Since(start).Milliseconds())
	}
}
