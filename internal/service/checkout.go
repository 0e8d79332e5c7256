package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/logger"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
)

// CheckoutService drives a session through STARTED, AWAITING_PAYMENT and COMPLETED.
// EXPIRED is never stored; it is derived from expiresAt on read.
type CheckoutService struct {
	store           repository.Store
	payments        *PaymentGateway
	issuance        *IssuanceService
	cashback        *CashbackMinter
	holdWindow      time.Duration
	discountPercent float64
	now             func() time.Time
}

func NewCheckoutService(store repository.Store, payments *PaymentGateway, issuance *IssuanceService, cashback *CashbackMinter, opts Options, now func() time.Time) *CheckoutService {
	return &CheckoutService{
		store:           store,
		payments:        payments,
		issuance:        issuance,
		cashback:        cashback,
		holdWindow:      opts.HoldWindow,
		discountPercent: opts.BCHDiscountPercent,
		now:             now,
	}
}

// Start opens a session for a visible ticket type of a published event.
func (s *CheckoutService) Start(ctx context.Context, req *models.StartCheckoutRequest) (*models.CheckoutSession, error) {
	tt, err := s.store.TicketTypes().GetByID(ctx, req.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}
	if tt == nil || tt.EventID != req.EventID || !tt.Visible || tt.EventStatus != models.EventStatusPublished {
		return nil, apperrors.New(apperrors.ErrNotFound, "ticket type not available for this event")
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	if tt.Remaining() < quantity {
		return nil, apperrors.New(apperrors.ErrSoldOut, "this ticket type is sold out")
	}

	now := s.now()
	unit := UnitPrice(tt, now)
	session := &models.CheckoutSession{
		ID:           uuid.New().String(),
		EventID:      tt.EventID,
		TicketTypeID: tt.ID,
		Quantity:     quantity,
		Attendee: models.Attendee{
			Name:  req.AttendeeName,
			Email: req.AttendeeEmail,
			Phone: req.AttendeePhone,
		},
		Currency:       tt.Currency,
		UnitPriceCents: unit,
		TotalCents:     unit * int64(quantity),
		Status:         models.SessionStarted,
		ExpiresAt:      now.Add(s.holdWindow),
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	logger.WithContext(ctx).Info("Checkout session started",
		"session_id", session.ID,
		"event_id", session.EventID,
		"ticket_type_id", session.TicketTypeID,
		"unit_price_cents", unit)

	return session, nil
}

// AttachPaymentMethod creates the session's payment. Re-attaching the same method returns
// the existing payment unchanged; switching methods is a conflict. A session past its
// hold window can no longer get a first payment (ErrSessionExpired), so no new address
// is handed out for it; a payment attached in time still completes whenever it arrives.
func (s *CheckoutService) AttachPaymentMethod(ctx context.Context, sessionID, method string) (*models.AttachPaymentResponse, error) {
	if method != models.MethodBCH && method != models.MethodCard {
		return nil, apperrors.New(apperrors.ErrBadRequest, "unsupported payment method %q", method)
	}

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
	if payment != nil {
		if payment.Method != method {
			return nil, apperrors.New(apperrors.ErrConflict, "session already has a %s payment", payment.Method)
		}
		return &models.AttachPaymentResponse{
			Session: session,
			Payment: payment,
			Quote:   QuoteFor(payment, session),
		}, nil
	}

	if session.IsExpired(s.now()) {
		return nil, apperrors.New(apperrors.ErrSessionExpired, "checkout session has expired")
	}

	tt, err := s.store.TicketTypes().GetByID(ctx, session.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}
	if tt == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "ticket type not found")
	}

	var discount int64
	if method == models.MethodBCH && tt.IsBCHDiscounted {
		discount = BCHDiscount(session.UnitPriceCents*int64(session.Quantity), s.discountPercent)
	}

	return s.payments.CreatePayment(ctx, session, method, discount)
}

// Get is the payment session read model. reveal includes the cashback bearer WIF.
func (s *CheckoutService) Get(ctx context.Context, sessionID string, reveal bool) (*models.CheckoutSessionView, error) {
	session, err := s.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	if session == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "checkout session not found")
	}

	view := &models.CheckoutSessionView{
		Session:         session,
		EffectiveStatus: session.EffectiveStatus(s.now()),
	}

	if view.TicketType, err = s.store.TicketTypes().GetByID(ctx, session.TicketTypeID); err != nil {
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}

	payment, err := s.store.Payments().GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return view, nil
	}
	view.Payment = payment

	if view.Ticket, err = s.store.Tickets().GetByPaymentID(ctx, payment.ID); err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	cb, err := s.cashback.GetByPayment(ctx, payment.ID, reveal)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if cb != nil {
		view.Cashback = cb.Stamp
		view.CashbackWIF = cb.WIF
	}
	return view, nil
}

// ListByEvent lists an event's sessions for its owning organizer.
func (s *CheckoutService) ListByEvent(ctx context.Context, organizerID, eventID string, limit int) ([]models.CheckoutSession, error) {
	ev, err := s.store.Events().GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if ev == nil || ev.OrganizerID != organizerID {
		return nil, apperrors.New(apperrors.ErrNotFound, "event not found")
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sessions, err := s.store.Sessions().ListByEvent(ctx, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}
	if sessions == nil {
		sessions = []models.CheckoutSession{}
	}
	return sessions, nil
}
