package repository

import (
	"context"
	"database/sql"

	"ticketpay/internal/database"
	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
)

type SessionRepository struct {
	q database.Querier
}

const sessionColumns = `
	id, event_id, ticket_type_id, quantity, attendee_name, attendee_email, attendee_phone,
	currency, unit_price_cents, discount_cents, total_cents, status, payment_method,
	payment_id, bch_address, expires_at, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }, s *models.CheckoutSession) error {
	return row.Scan(
		&s.ID,
		&s.EventID,
		&s.TicketTypeID,
		&s.Quantity,
		&s.Attendee.Name,
		&s.Attendee.Email,
		&s.Attendee.Phone,
		&s.Currency,
		&s.UnitPriceCents,
		&s.DiscountCents,
		&s.TotalCents,
		&s.Status,
		&s.PaymentMethod,
		&s.PaymentID,
		&s.BCHAddress,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
}

func (r *SessionRepository) Create(ctx context.Context, s *models.CheckoutSession) error {
	query := `
		INSERT INTO checkout_sessions (id, event_id, ticket_type_id, quantity, attendee_name,
			attendee_email, attendee_phone, currency, unit_price_cents, discount_cents,
			total_cents, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	return r.q.QueryRowContext(ctx, query,
		s.ID,
		s.EventID,
		s.TicketTypeID,
		s.Quantity,
		s.Attendee.Name,
		s.Attendee.Email,
		s.Attendee.Phone,
		s.Currency,
		s.UnitPriceCents,
		s.DiscountCents,
		s.TotalCents,
		s.Status,
		s.ExpiresAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.CheckoutSession, error) {
	s := &models.CheckoutSession{}
	err := scanSession(r.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM checkout_sessions WHERE id = $1`, id), s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) Update(ctx context.Context, s *models.CheckoutSession) error {
	query := `
		UPDATE checkout_sessions
		SET status = $2, payment_method = $3, payment_id = $4, bch_address = $5,
		    unit_price_cents = $6, discount_cents = $7, total_cents = $8, expires_at = $9,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'COMPLETED'
		RETURNING updated_at`

	err := r.q.QueryRowContext(ctx, query,
		s.ID,
		s.Status,
		s.PaymentMethod,
		s.PaymentID,
		s.BCHAddress,
		s.UnitPriceCents,
		s.DiscountCents,
		s.TotalCents,
		s.ExpiresAt,
	).Scan(&s.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperrors.New(apperrors.ErrConflict, "checkout session %s is missing or already completed", s.ID)
	}
	return err
}

func (r *SessionRepository) ListByEvent(ctx context.Context, eventID string, limit int) ([]models.CheckoutSession, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM checkout_sessions WHERE event_id = $1 ORDER BY created_at DESC LIMIT $2`,
		eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.CheckoutSession
	for rows.Next() {
		var s models.CheckoutSession
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
