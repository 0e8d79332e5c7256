package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/logger"
	"ticketpay/internal/metrics"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
)

const refAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// IssueTicketInput describes one ticket to issue. OrganizerID is the caller and must own
// the event.
type IssueTicketInput struct {
	TicketTypeID       string
	EventID            string
	OrganizerID        string
	Attendee           models.Attendee
	PaymentID          *string
	ReferenceCode      *string
	NFT                *models.NFTTicket
	CashbackAmountSats int64
}

type IssueResult struct {
	Ticket   *models.Ticket
	Cashback *models.CashbackStamp
	Created  bool
}

type IssuanceService struct {
	store     repository.Store
	cashback  *CashbackMinter
	indexer   TicketIndexer
	events    *events
	monitor   *metrics.Monitor
	refPrefix string
}

func NewIssuanceService(store repository.Store, cashback *CashbackMinter, indexer TicketIndexer, pub Publisher, monitor *metrics.Monitor, opts Options) *IssuanceService {
	return &IssuanceService{
		store:     store,
		cashback:  cashback,
		indexer:   indexer,
		events:    &events{publisher: pub},
		monitor:   monitor,
		refPrefix: opts.TicketRefPrefix,
	}
}

// IssueTicket issues at most one ticket per payment. A repeated call for the same
// payment returns the existing ticket.
func (s *IssuanceService) IssueTicket(ctx context.Context, in IssueTicketInput) (*IssueResult, error) {
	var (
		res *IssueResult
		box outbox
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		res, err = s.issue(ctx, tx, in, &box)
		return err
	})
	if err != nil {
		// a concurrent issuance for the same payment won the unique index
		if errors.Is(err, apperrors.ErrConflict) && in.PaymentID != nil {
			existing, getErr := s.existingFor(ctx, s.store, *in.PaymentID)
			if getErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.afterCommit(ctx, res, "manual", box)
	return res, nil
}

// IssueForSession issues the ticket for a session whose payment has completed.
func (s *IssuanceService) IssueForSession(ctx context.Context, sessionID string) (*IssueResult, error) {
	session, err := s.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	if session == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "checkout session not found")
	}

	payment, err := s.store.Payments().GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, apperrors.New(apperrors.ErrPaymentIncomplete, "no payment found for this session")
	}
	if payment.Status != models.PaymentCompleted {
		return nil, apperrors.New(apperrors.ErrPaymentIncomplete, "payment must be completed before issuing a ticket")
	}

	pid := payment.ID
	return s.IssueTicket(ctx, IssueTicketInput{
		TicketTypeID: session.TicketTypeID,
		EventID:      session.EventID,
		OrganizerID:  payment.OrganizerID,
		Attendee:     session.Attendee,
		PaymentID:    &pid,
	})
}

func (s *IssuanceService) List(ctx context.Context, f models.TicketFilter) (*models.ListTicketsResponse, error) {
	tickets, total, err := s.store.Tickets().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return &models.ListTicketsResponse{Tickets: tickets, Total: total}, nil
}

func (s *IssuanceService) existingFor(ctx context.Context, st repository.Store, paymentID string) (*IssueResult, error) {
	t, err := st.Tickets().GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if t == nil {
		return nil, nil
	}
	stamp, err := st.Cashback().GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cashback: %w", err)
	}
	return &IssueResult{Ticket: t, Cashback: stamp}, nil
}

// issue runs inside tx. Domain events go to box and are published by the caller after commit.
func (s *IssuanceService) issue(ctx context.Context, tx repository.Store, in IssueTicketInput, box *outbox) (*IssueResult, error) {
	if in.PaymentID != nil {
		existing, err := s.existingFor(ctx, tx, *in.PaymentID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	tt, err := tx.TicketTypes().GetByID(ctx, in.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}
	if tt == nil || tt.EventID != in.EventID {
		return nil, apperrors.New(apperrors.ErrNotFound, "ticket type not found for this event")
	}
	if tt.OrganizerID != in.OrganizerID {
		return nil, apperrors.New(apperrors.ErrForbidden, "you cannot issue tickets for another organizer")
	}
	if tt.Remaining() <= 0 {
		return nil, apperrors.New(apperrors.ErrSoldOut, "this ticket type is sold out")
	}
	if in.CashbackAmountSats > 0 && in.PaymentID == nil {
		return nil, apperrors.New(apperrors.ErrBadRequest, "cashback issuance requires a linked payment record")
	}

	ref := ""
	if in.ReferenceCode != nil && *in.ReferenceCode != "" {
		ref = *in.ReferenceCode
	} else if ref, err = s.generateReference(); err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		ID:            uuid.New().String(),
		TicketTypeID:  tt.ID,
		EventID:       tt.EventID,
		OrganizerID:   tt.OrganizerID,
		Attendee:      in.Attendee,
		Status:        models.TicketConfirmed,
		ReferenceCode: ref,
		PaymentID:     in.PaymentID,
	}
	if err := tx.Tickets().Create(ctx, ticket); err != nil {
		return nil, err
	}

	if err := tx.TicketTypes().IncrementSold(ctx, tt.ID, 1); err != nil {
		return nil, err
	}

	if in.NFT != nil {
		nft := &models.NFTTicket{
			TicketID:      ticket.ID,
			WalletAddress: in.NFT.WalletAddress,
			TokenID:       in.NFT.TokenID,
		}
		if nft.TokenID == "" {
			if nft.TokenID, err = NewTokenID(); err != nil {
				return nil, err
			}
		}
		if err := tx.Tickets().CreateNFT(ctx, nft); err != nil {
			return nil, fmt.Errorf("failed to create NFT ticket: %w", err)
		}
		ticket.NFT = nft
	}

	res := &IssueResult{Ticket: ticket, Created: true}

	if in.CashbackAmountSats > 0 {
		stamp, inserted, err := s.cashback.RecordStamp(ctx, tx, *in.PaymentID, tt.OrganizerID, in.CashbackAmountSats)
		if err != nil {
			return nil, err
		}
		res.Cashback = stamp
		if inserted {
			box.add(models.EventCashbackRecorded, models.CashbackEvent{
				StampID:     stamp.ID,
				PaymentID:   stamp.PaymentID,
				OrganizerID: stamp.OrganizerID,
				AmountSats:  stamp.AmountSats,
				Timestamp:   time.Now(),
			})
		}
	}

	box.add(models.EventTicketIssued, models.TicketIssuedEvent{
		TicketID:      ticket.ID,
		EventID:       ticket.EventID,
		PaymentID:     ticket.PaymentID,
		ReferenceCode: ticket.ReferenceCode,
		Timestamp:     time.Now(),
	})

	return res, nil
}

// afterCommit publishes the transaction's events and indexes a newly issued ticket.
func (s *IssuanceService) afterCommit(ctx context.Context, res *IssueResult, source string, box outbox) {
	s.events.flush(ctx, box)
	if res == nil || !res.Created {
		return
	}

	s.monitor.TrackTicketIssued(source)
	logger.WithContext(ctx).Info("Ticket issued",
		"ticket_id", res.Ticket.ID,
		"reference_code", res.Ticket.ReferenceCode,
		"source", source)

	if s.indexer != nil {
		if err := s.indexer.IndexTicket(ctx, res.Ticket); err != nil {
			logger.WithContext(ctx).Error("Failed to index ticket", "ticket_id", res.Ticket.ID, "error", err)
		}
	}
}

func (s *IssuanceService) generateReference() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate reference: %w", err)
	}
	for i, b := range buf {
		buf[i] = refAlphabet[int(b)%len(refAlphabet)]
	}
	return s.refPrefix + "-" + string(buf), nil
}

// NewTokenID returns a random 256-bit NFT token id as 0x-prefixed hex.
func NewTokenID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}
