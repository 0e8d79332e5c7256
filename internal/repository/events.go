package repository

import (
	"context"
	"database/sql"

	"ticketpay/internal/database"
	"ticketpay/internal/models"
)

type EventRepository struct {
	q database.Querier
}

const eventColumns = `id, organizer_id, title, status, starts_at, created_at`

func scanEvent(row interface{ Scan(...interface{}) error }, e *models.Event) error {
	return row.Scan(
		&e.ID,
		&e.OrganizerID,
		&e.Title,
		&e.Status,
		&e.StartsAt,
		&e.CreatedAt,
	)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	event := &models.Event{}
	err := scanEvent(r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id), event)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *EventRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE organizer_id = $1 ORDER BY starts_at`, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
