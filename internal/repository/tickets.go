package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ticketpay/internal/database"
	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
)

type TicketRepository struct {
	q database.Querier
}

const ticketSelect = `
	SELECT t.id, t.ticket_type_id, t.event_id, t.organizer_id, t.attendee_name, t.attendee_email,
	       t.attendee_phone, t.status, t.reference_code, t.payment_id, t.created_at,
	       n.wallet_address, n.token_id, n.created_at
	FROM tickets t
	LEFT JOIN nft_tickets n ON n.ticket_id = t.id`

func scanTicket(row interface{ Scan(...interface{}) error }, t *models.Ticket) error {
	var (
		nftWallet, nftToken *string
		nftCreated          sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.TicketTypeID,
		&t.EventID,
		&t.OrganizerID,
		&t.Attendee.Name,
		&t.Attendee.Email,
		&t.Attendee.Phone,
		&t.Status,
		&t.ReferenceCode,
		&t.PaymentID,
		&t.CreatedAt,
		&nftWallet,
		&nftToken,
		&nftCreated,
	)
	if err != nil {
		return err
	}
	if nftWallet != nil && nftToken != nil {
		t.NFT = &models.NFTTicket{
			TicketID:      t.ID,
			WalletAddress: *nftWallet,
			TokenID:       *nftToken,
			CreatedAt:     nftCreated.Time,
		}
	}
	return nil
}

func (r *TicketRepository) Create(ctx context.Context, t *models.Ticket) error {
	query := `
		INSERT INTO tickets (id, ticket_type_id, event_id, organizer_id, attendee_name,
			attendee_email, attendee_phone, status, reference_code, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err := r.q.QueryRowContext(ctx, query,
		t.ID,
		t.TicketTypeID,
		t.EventID,
		t.OrganizerID,
		t.Attendee.Name,
		t.Attendee.Email,
		t.Attendee.Phone,
		t.Status,
		t.ReferenceCode,
		t.PaymentID,
	).Scan(&t.CreatedAt)
	if database.IsUniqueViolation(err) {
		return apperrors.New(apperrors.ErrConflict, "ticket already exists for payment or reference code")
	}
	return err
}

func (r *TicketRepository) CreateNFT(ctx context.Context, n *models.NFTTicket) error {
	query := `
		INSERT INTO nft_tickets (ticket_id, wallet_address, token_id)
		VALUES ($1, $2, $3)
		RETURNING created_at`
	return r.q.QueryRowContext(ctx, query, n.TicketID, n.WalletAddress, n.TokenID).Scan(&n.CreatedAt)
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	return r.getOne(ctx, ticketSelect+` WHERE t.id = $1`, id)
}

func (r *TicketRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.Ticket, error) {
	return r.getOne(ctx, ticketSelect+` WHERE t.payment_id = $1`, paymentID)
}

func (r *TicketRepository) getOne(ctx context.Context, query, arg string) (*models.Ticket, error) {
	t := &models.Ticket{}
	err := scanTicket(r.q.QueryRowContext(ctx, query, arg), t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TicketRepository) List(ctx context.Context, f models.TicketFilter) ([]models.Ticket, int, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.OrganizerID != "" {
		add("t.organizer_id = $%d", f.OrganizerID)
	}
	if f.EventID != "" {
		add("t.event_id = $%d", f.EventID)
	}
	if f.Email != "" {
		add("LOWER(t.attendee_email) = LOWER($%d)", f.Email)
	}
	if f.Query != "" {
		add("(t.reference_code ILIKE '%%' || $%[1]d || '%%' OR t.attendee_name ILIKE '%%' || $%[1]d || '%%')", f.Query)
	}

	query := strings.Replace(ticketSelect, "SELECT t.id,", "SELECT COUNT(*) OVER() AS total, t.id,", 1)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		tickets []models.Ticket
		total   int
	)
	for rows.Next() {
		var t models.Ticket
		if err := scanTicketWithTotal(rows, &t, &total); err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, t)
	}
	return tickets, total, rows.Err()
}

// scanTicketWithTotal reads the leading window count followed by the ticket columns.
func scanTicketWithTotal(row interface{ Scan(...interface{}) error }, t *models.Ticket, total *int) error {
	return scanTicket(shiftScanner{row: row, first: total}, t)
}

type shiftScanner struct {
	row   interface{ Scan(...interface{}) error }
	first interface{}
}

func (s shiftScanner) Scan(dest ...interface{}) error {
	return s.row.Scan(append([]interface{}{s.first}, dest...)...)
}
