package repository

import (
	"context"
	"database/sql"

	"ticketpay/internal/database"
	"ticketpay/internal/models"
)

type OrganizerRepository struct {
	q database.Querier
}

func (r *OrganizerRepository) GetByID(ctx context.Context, id string) (*models.Organizer, error) {
	return r.getOne(ctx, `
		SELECT id, email, password_hash, name, is_active, created_at
		FROM organizers
		WHERE id = $1`, id)
}

func (r *OrganizerRepository) GetByEmail(ctx context.Context, email string) (*models.Organizer, error) {
	return r.getOne(ctx, `
		SELECT id, email, password_hash, name, is_active, created_at
		FROM organizers
		WHERE email = $1`, email)
}

func (r *OrganizerRepository) getOne(ctx context.Context, query string, arg string) (*models.Organizer, error) {
	o := &models.Organizer{}
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&o.ID,
		&o.Email,
		&o.PasswordHash,
		&o.Name,
		&o.IsActive,
		&o.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrganizerRepository) Create(ctx context.Context, o *models.Organizer) error {
	query := `
		INSERT INTO organizers (id, email, password_hash, name, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	return r.q.QueryRowContext(ctx, query, o.ID, o.Email, o.PasswordHash, o.Name, o.IsActive).
		Scan(&o.CreatedAt)
}
