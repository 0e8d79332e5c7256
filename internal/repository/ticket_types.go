package repository

import (
	"context"
	"database/sql"

	"ticketpay/internal/database"
	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
)

type TicketTypeRepository struct {
	q database.Querier
}

func (r *TicketTypeRepository) GetByID(ctx context.Context, id string) (*models.TicketType, error) {
	tt := &models.TicketType{}
	query := `
		SELECT tt.id, tt.event_id, e.organizer_id, e.status, tt.name, tt.price_cents, tt.currency,
		       tt.visible, tt.quantity_total, tt.quantity_sold, tt.is_early_bird,
		       tt.early_bird_price_cents, tt.early_bird_ends_at, tt.is_bch_discounted
		FROM ticket_types tt
		JOIN events e ON e.id = tt.event_id
		WHERE tt.id = $1`

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&tt.ID,
		&tt.EventID,
		&tt.OrganizerID,
		&tt.EventStatus,
		&tt.Name,
		&tt.PriceCents,
		&tt.Currency,
		&tt.Visible,
		&tt.QuantityTotal,
		&tt.QuantitySold,
		&tt.IsEarlyBird,
		&tt.EarlyBirdPriceCents,
		&tt.EarlyBirdEndsAt,
		&tt.IsBCHDiscounted,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tt, nil
}

func (r *TicketTypeRepository) IncrementSold(ctx context.Context, id string, n int) error {
	query := `
		UPDATE ticket_types
		SET quantity_sold = quantity_sold + $2
		WHERE id = $1 AND quantity_sold + $2 <= quantity_total`

	res, err := r.q.ExecContext(ctx, query, id, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.New(apperrors.ErrSoldOut, "ticket type %s cannot take %d more", id, n)
	}
	return nil
}
