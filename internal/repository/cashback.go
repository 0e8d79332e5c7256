package repository

import (
	"context"
	"database/sql"

	"ticketpay/internal/database"
	"ticketpay/internal/models"
)

type CashbackRepository struct {
	q database.Querier
}

const cashbackColumns = `
	id, payment_id, organizer_id, amount_sats, address, encrypted_wif, status, funding_tx_id,
	created_at, updated_at`

func (r *CashbackRepository) CreateIfAbsent(ctx context.Context, s *models.CashbackStamp) (*models.CashbackStamp, bool, error) {
	query := `
		INSERT INTO cashback_stamps (id, payment_id, organizer_id, amount_sats, address, encrypted_wif, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.q.QueryRowContext(ctx, query,
		s.ID,
		s.PaymentID,
		s.OrganizerID,
		s.AmountSats,
		s.Address,
		s.EncryptedWIF,
		s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		existing, getErr := r.GetByPaymentID(ctx, s.PaymentID)
		return existing, false, getErr
	}
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (r *CashbackRepository) GetByID(ctx context.Context, id string) (*models.CashbackStamp, error) {
	return r.getOne(ctx, `SELECT `+cashbackColumns+` FROM cashback_stamps WHERE id = $1`, id)
}

func (r *CashbackRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.CashbackStamp, error) {
	return r.getOne(ctx, `SELECT `+cashbackColumns+` FROM cashback_stamps WHERE payment_id = $1`, paymentID)
}

func (r *CashbackRepository) getOne(ctx context.Context, query, arg string) (*models.CashbackStamp, error) {
	s := &models.CashbackStamp{}
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&s.ID,
		&s.PaymentID,
		&s.OrganizerID,
		&s.AmountSats,
		&s.Address,
		&s.EncryptedWIF,
		&s.Status,
		&s.FundingTxID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *CashbackRepository) UpdateStatus(ctx context.Context, id, from, to string, fundingTxID *string) (bool, error) {
	query := `
		UPDATE cashback_stamps
		SET status = $3, funding_tx_id = COALESCE($4, funding_tx_id), updated_at = NOW()
		WHERE id = $1 AND status = $2`
	return execAffected(ctx, r.q, query, id, from, to, fundingTxID)
}
