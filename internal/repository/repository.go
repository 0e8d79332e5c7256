package repository

import (
	"context"
	"database/sql"

	"ticketpay/internal/database"
)

// PostgresStore implements Store over lib/pq. q is either the pool or an open transaction.
type PostgresStore struct {
	db *database.DB
	q  database.Querier
	tx bool
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&PostgresStore{db: s.db, q: tx, tx: true})
	})
}

func (s *PostgresStore) Organizers() OrganizerStore   { return &OrganizerRepository{q: s.q} }
func (s *PostgresStore) Events() EventStore           { return &EventRepository{q: s.q} }
func (s *PostgresStore) Wallets() WalletStore         { return &WalletRepository{q: s.q} }
func (s *PostgresStore) TicketTypes() TicketTypeStore { return &TicketTypeRepository{q: s.q} }
func (s *PostgresStore) Sessions() SessionStore       { return &SessionRepository{q: s.q} }
func (s *PostgresStore) Payments() PaymentStore       { return &PaymentRepository{q: s.q} }
func (s *PostgresStore) Tickets() TicketStore         { return &TicketRepository{q: s.q} }
func (s *PostgresStore) Cashback() CashbackStore      { return &CashbackRepository{q: s.q} }

var _ Store = (*PostgresStore)(nil)
