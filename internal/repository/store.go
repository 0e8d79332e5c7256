package repository

import (
	"context"
	"time"

	"ticketpay/internal/models"
)

// Store is the persistence boundary used by the services. InTx runs fn against a
// transactional view; nested InTx calls join the outer transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error

	Organizers() OrganizerStore
	Events() EventStore
	Wallets() WalletStore
	TicketTypes() TicketTypeStore
	Sessions() SessionStore
	Payments() PaymentStore
	Tickets() TicketStore
	Cashback() CashbackStore
}

type OrganizerStore interface {
	GetByID(ctx context.Context, id string) (*models.Organizer, error)
	GetByEmail(ctx context.Context, email string) (*models.Organizer, error)
	Create(ctx context.Context, o *models.Organizer) error
}

type EventStore interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error)
}

type WalletStore interface {
	Get(ctx context.Context, organizerID string) (*models.OrganizerWallet, error)
	// CreateIfAbsent inserts the wallet unless one exists; it reports whether it inserted.
	CreateIfAbsent(ctx context.Context, w *models.OrganizerWallet) (bool, error)
	// ReserveIndex atomically bumps next_index and records a RESERVED reservation for
	// the prior value. ErrNotFound when the organizer has no wallet, ErrAllocationConflict
	// when the index is held by a live reservation.
	ReserveIndex(ctx context.Context, organizerID string) (uint32, error)
	BindReservation(ctx context.Context, organizerID string, index uint32, paymentID string) error
	// ReleaseReservation frees a RESERVED index and rolls next_index back when it is
	// still index+1.
	ReleaseReservation(ctx context.Context, organizerID string, index uint32) (released, rolledBack bool, err error)
	StaleReservations(ctx context.Context, olderThan time.Time, limit int) ([]models.AddressReservation, error)
}

type TicketTypeStore interface {
	GetByID(ctx context.Context, id string) (*models.TicketType, error)
	// IncrementSold adds n to quantity_sold only while it stays within quantity_total.
	IncrementSold(ctx context.Context, id string, n int) error
}

type SessionStore interface {
	Create(ctx context.Context, s *models.CheckoutSession) error
	GetByID(ctx context.Context, id string) (*models.CheckoutSession, error)
	// Update fails with ErrConflict once the stored session is COMPLETED.
	Update(ctx context.Context, s *models.CheckoutSession) error
	ListByEvent(ctx context.Context, eventID string, limit int) ([]models.CheckoutSession, error)
}

type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	// MarkCompleted moves PENDING to COMPLETED and reports whether this call did it.
	MarkCompleted(ctx context.Context, id, txHash string, receivedSats int64, at time.Time) (bool, error)
	// NextForVerification returns up to limit pending payments of method, least recently
	// checked first, and stamps them as checked at at.
	NextForVerification(ctx context.Context, method string, limit int, at time.Time) ([]models.Payment, error)
}

type TicketStore interface {
	// Create fails with ErrConflict when the payment already has a ticket.
	Create(ctx context.Context, t *models.Ticket) error
	CreateNFT(ctx context.Context, n *models.NFTTicket) error
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Ticket, error)
	List(ctx context.Context, f models.TicketFilter) ([]models.Ticket, int, error)
}

type CashbackStore interface {
	// CreateIfAbsent returns the stored stamp for the payment and whether it was inserted now.
	CreateIfAbsent(ctx context.Context, s *models.CashbackStamp) (*models.CashbackStamp, bool, error)
	GetByID(ctx context.Context, id string) (*models.CashbackStamp, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.CashbackStamp, error)
	// UpdateStatus performs a from -> to transition and reports whether it applied.
	UpdateStatus(ctx context.Context, id, from, to string, fundingTxID *string) (bool, error)
}
