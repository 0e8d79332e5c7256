package repository

import (
	"context"
	"database/sql"
	"time"

	"ticketpay/internal/database"
	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
)

type WalletRepository struct {
	q database.Querier
}

func (r *WalletRepository) Get(ctx context.Context, organizerID string) (*models.OrganizerWallet, error) {
	w := &models.OrganizerWallet{}
	query := `
		SELECT organizer_id, xpub, encrypted_xprv, encrypted_seed, next_index, created_at, updated_at
		FROM organizer_wallets
		WHERE organizer_id = $1`

	err := r.q.QueryRowContext(ctx, query, organizerID).Scan(
		&w.OrganizerID,
		&w.Xpub,
		&w.EncryptedXprv,
		&w.EncryptedSeed,
		&w.NextIndex,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *WalletRepository) CreateIfAbsent(ctx context.Context, w *models.OrganizerWallet) (bool, error) {
	query := `
		INSERT INTO organizer_wallets (organizer_id, xpub, encrypted_xprv, encrypted_seed, next_index)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (organizer_id) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.q.QueryRowContext(ctx, query, w.OrganizerID, w.Xpub, w.EncryptedXprv, w.EncryptedSeed).
		Scan(&w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// reserveIndexQuery bumps the counter and records the reservation in one statement.
// A reservation row left RELEASED by a rollback is reclaimed; a RESERVED or BOUND row
// makes the insert a no-op, which the caller reports as a conflict.
const reserveIndexQuery = `
	WITH bumped AS (
		UPDATE organizer_wallets
		SET next_index = next_index + 1, updated_at = NOW()
		WHERE organizer_id = $1
		RETURNING organizer_id, next_index - 1 AS derivation_index
	)
	INSERT INTO address_reservations (organizer_id, derivation_index, status)
	SELECT organizer_id, derivation_index, 'RESERVED' FROM bumped
	ON CONFLICT (organizer_id, derivation_index) DO UPDATE
		SET status = 'RESERVED', payment_id = NULL, updated_at = NOW()
		WHERE address_reservations.status = 'RELEASED'
	RETURNING derivation_index`

func (r *WalletRepository) ReserveIndex(ctx context.Context, organizerID string) (uint32, error) {
	var index int64
	err := r.q.QueryRowContext(ctx, reserveIndexQuery, organizerID).Scan(&index)
	if err == nil {
		return uint32(index), nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	w, getErr := r.Get(ctx, organizerID)
	if getErr != nil {
		return 0, getErr
	}
	if w == nil {
		return 0, apperrors.New(apperrors.ErrNotFound, "organizer %s has no wallet", organizerID)
	}
	return 0, apperrors.New(apperrors.ErrAllocationConflict, "index %d for organizer %s is still held", w.NextIndex-1, organizerID)
}

func (r *WalletRepository) BindReservation(ctx context.Context, organizerID string, index uint32, paymentID string) error {
	query := `
		UPDATE address_reservations
		SET status = 'BOUND', payment_id = $3, updated_at = NOW()
		WHERE organizer_id = $1 AND derivation_index = $2 AND status = 'RESERVED'`

	res, err := r.q.ExecContext(ctx, query, organizerID, int64(index), paymentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.New(apperrors.ErrAllocationConflict, "reservation %s/%d is no longer held", organizerID, index)
	}
	return nil
}

const releaseReservationQuery = `
	WITH released AS (
		UPDATE address_reservations
		SET status = 'RELEASED', updated_at = NOW()
		WHERE organizer_id = $1 AND derivation_index = $2 AND status = 'RESERVED'
		RETURNING organizer_id, derivation_index
	), rolled AS (
		UPDATE organizer_wallets w
		SET next_index = w.next_index - 1, updated_at = NOW()
		FROM released r
		WHERE w.organizer_id = r.organizer_id AND w.next_index = r.derivation_index + 1
		RETURNING w.next_index
	)
	SELECT (SELECT COUNT(*) FROM released), (SELECT COUNT(*) FROM rolled)`

func (r *WalletRepository) ReleaseReservation(ctx context.Context, organizerID string, index uint32) (bool, bool, error) {
	var released, rolled int
	err := r.q.QueryRowContext(ctx, releaseReservationQuery, organizerID, int64(index)).Scan(&released, &rolled)
	if err != nil {
		return false, false, err
	}
	return released > 0, rolled > 0, nil
}

func (r *WalletRepository) StaleReservations(ctx context.Context, olderThan time.Time, limit int) ([]models.AddressReservation, error) {
	query := `
		SELECT organizer_id, derivation_index, status, payment_id, created_at, updated_at
		FROM address_reservations
		WHERE status = 'RESERVED' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AddressReservation
	for rows.Next() {
		var res models.AddressReservation
		if err := rows.Scan(
			&res.OrganizerID,
			&res.DerivationIndex,
			&res.Status,
			&res.PaymentID,
			&res.CreatedAt,
			&res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
