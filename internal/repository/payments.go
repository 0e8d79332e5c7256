package repository

import (
	"context"
	"database/sql"
	"time"

	"ticketpay/internal/database"
	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
)

type PaymentRepository struct {
	q database.Querier
}

const paymentColumns = `
	id, checkout_session_id, event_id, organizer_id, method, status, amount_cents, currency,
	expected_sats, received_sats, derived_address, derivation_index, tx_hash, completed_at,
	last_checked_at, created_at, updated_at`

func scanPayment(row interface{ Scan(...interface{}) error }, p *models.Payment) error {
	var index sql.NullInt64
	err := row.Scan(
		&p.ID,
		&p.CheckoutSessionID,
		&p.EventID,
		&p.OrganizerID,
		&p.Method,
		&p.Status,
		&p.AmountCents,
		&p.Currency,
		&p.ExpectedSats,
		&p.ReceivedSats,
		&p.DerivedAddress,
		&index,
		&p.TxHash,
		&p.CompletedAt,
		&p.LastCheckedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if index.Valid {
		idx := uint32(index.Int64)
		p.DerivationIndex = &idx
	}
	return nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	var index sql.NullInt64
	if p.DerivationIndex != nil {
		index = sql.NullInt64{Int64: int64(*p.DerivationIndex), Valid: true}
	}

	query := `
		INSERT INTO payments (id, checkout_session_id, event_id, organizer_id, method, status,
			amount_cents, currency, expected_sats, derived_address, derivation_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.q.QueryRowContext(ctx, query,
		p.ID,
		p.CheckoutSessionID,
		p.EventID,
		p.OrganizerID,
		p.Method,
		p.Status,
		p.AmountCents,
		p.Currency,
		p.ExpectedSats,
		p.DerivedAddress,
		index,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return apperrors.New(apperrors.ErrConflict, "session %s already has a payment", p.CheckoutSessionID)
	}
	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE checkout_session_id = $1`, sessionID)
}

func (r *PaymentRepository) getOne(ctx context.Context, query, arg string) (*models.Payment, error) {
	p := &models.Payment{}
	err := scanPayment(r.q.QueryRowContext(ctx, query, arg), p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) MarkCompleted(ctx context.Context, id, txHash string, receivedSats int64, at time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'COMPLETED', tx_hash = $2, received_sats = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	var hash *string
	if txHash != "" {
		hash = &txHash
	}
	return execAffected(ctx, r.q, query, id, hash, receivedSats, at)
}

// nextForVerificationQuery rotates through the pending set so payments that are never
// paid cannot starve newer ones. SKIP LOCKED lets several pollers share the work.
const nextForVerificationQuery = `
	UPDATE payments
	SET last_checked_at = $3
	WHERE id IN (
		SELECT id FROM payments
		WHERE status = 'PENDING' AND method = $1
		ORDER BY last_checked_at ASC NULLS FIRST, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + paymentColumns

func (r *PaymentRepository) NextForVerification(ctx context.Context, method string, limit int, at time.Time) ([]models.Payment, error) {
	rows, err := r.q.QueryContext(ctx, nextForVerificationQuery, method, limit, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func execAffected(ctx context.Context, q database.Querier, query string, args ...interface{}) (bool, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
