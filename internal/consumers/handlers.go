package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/stan.go"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/logger"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
)

// CashbackFunder broadcasts the funding transaction for a recorded cashback stamp.
type CashbackFunder interface {
	Fund(ctx context.Context, paymentID, organizerID string) (*models.FundCashbackResponse, error)
}

type TicketIndexer interface {
	IndexTicket(ctx context.Context, t *models.Ticket) error
}

type Handlers struct {
	cashback CashbackFunder
	tickets  repository.TicketStore
	index    TicketIndexer
	autoFund bool
	timeout  time.Duration
}

// NewHandlers wires the event handlers. index may be nil when search is disabled.
func NewHandlers(cashback CashbackFunder, tickets repository.TicketStore, index TicketIndexer, autoFund bool) *Handlers {
	return &Handlers{
		cashback: cashback,
		tickets:  tickets,
		index:    index,
		autoFund: autoFund,
		timeout:  20 * time.Second,
	}
}

// ack reports whether a message should be acknowledged. Unacked messages are
// redelivered by the streaming server after AckWait.
type ack bool

func ackMsg(m *stan.Msg, ok ack) {
	if !ok {
		return
	}
	if err := m.Ack(); err != nil {
		logger.Get().Error("Failed to ack message", "subject", m.Subject, "sequence", m.Sequence, "error", err)
	}
}

func (h *Handlers) HandleCashbackRecorded(m *stan.Msg) {
	ackMsg(m, h.cashbackRecorded(m.Data))
}

func (h *Handlers) HandleTicketIssued(m *stan.Msg) {
	ackMsg(m, h.ticketIssued(m.Data))
}

func (h *Handlers) HandlePaymentCompleted(m *stan.Msg) {
	ackMsg(m, h.paymentCompleted(m.Data))
}

func (h *Handlers) cashbackRecorded(data []byte) ack {
	var event models.CashbackEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal cashback recorded event", "error", err)
		return true
	}
	if !h.autoFund {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	log := logger.WithContext(ctx).With("payment_id", event.PaymentID, "stamp_id", event.StampID)

	resp, err := h.cashback.Fund(ctx, event.PaymentID, event.OrganizerID)
	switch {
	case err == nil:
		log.Info("Cashback funded", "funding_tx_id", resp.FundingTxID)
		return true
	case terminal(err):
		// Nothing a redelivery can fix; an unfunded stamp stays UNCLAIMED for a manual fund.
		log.Warn("Cashback auto-fund skipped", "error", err)
		return true
	default:
		log.Error("Cashback auto-fund failed, will retry", "error", err)
		return false
	}
}

// terminal errors leave nothing for a redelivery to fix.
func terminal(err error) bool {
	return errors.Is(err, apperrors.ErrConflict) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrForbidden) ||
		errors.Is(err, apperrors.ErrBroadcastFailed) ||
		errors.Is(err, apperrors.ErrInsufficientFunds) ||
		errors.Is(err, apperrors.ErrEncryptionKeyMissing)
}

// ticketIssued re-indexes the ticket so the search index catches up after a failed
// inline index write.
func (h *Handlers) ticketIssued(data []byte) ack {
	var event models.TicketIssuedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal ticket issued event", "error", err)
		return true
	}
	if h.index == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	ticket, err := h.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to load ticket", "ticket_id", event.TicketID, "error", err)
		return false
	}
	if ticket == nil {
		logger.WithContext(ctx).Warn("Ticket not found for issued event", "ticket_id", event.TicketID)
		return true
	}

	if err := h.index.IndexTicket(ctx, ticket); err != nil {
		logger.WithContext(ctx).Error("Failed to index ticket", "ticket_id", ticket.ID, "error", err)
		return false
	}
	return true
}

func (h *Handlers) paymentCompleted(data []byte) ack {
	var event models.PaymentCompletedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal payment completed event", "error", err)
		return true
	}

	logger.Get().Info("Payment completed",
		"payment_id", event.PaymentID,
		"checkout_session_id", event.CheckoutSessionID,
		"organizer_id", event.OrganizerID,
		"received_sats", event.ReceivedSats,
		"source", event.Source,
		"tx_hash", event.TxHash)
	return true
}
