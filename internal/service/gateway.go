package service

import (
	"context"
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

const (
	SourcePoller  = "poller"
	SourceWebhook = "webhook"
)

// PaymentGateway creates payments for checkout sessions and settles them against
// chain state or webhook claims.
type PaymentGateway struct {
	store      repository.Store
	allocator  *AddressAllocator
	issuance   *IssuanceService
	cashback   *CashbackMinter
	chain      ChainOracle
	rates      RateOracle
	events     *events
	monitor    *metrics.Monitor
	holdWindow time.Duration
	now        func() time.Time
}

func NewPaymentGateway(
	store repository.Store,
	allocator *AddressAllocator,
	issuance *IssuanceService,
	cashback *CashbackMinter,
	chain ChainOracle,
	rates RateOracle,
	pub Publisher,
	monitor *metrics.Monitor,
	opts Options,
	now func() time.Time,
) *PaymentGateway {
	return &PaymentGateway{
		store:      store,
		allocator:  allocator,
		issuance:   issuance,
		cashback:   cashback,
		chain:      chain,
		rates:      rates,
		events:     &events{publisher: pub},
		monitor:    monitor,
		holdWindow: opts.HoldWindow,
		now:        now,
	}
}

type completion struct {
	txHash       string
	receivedSats int64
	source       string
	nft          *models.NFTTicket
}

// CreatePayment persists a payment for the session. BCH payments get a freshly
// allocated address and a sats quote; the payment row, the reservation binding and the
// session update commit together or the reservation is released.
func (g *PaymentGateway) CreatePayment(ctx context.Context, session *models.CheckoutSession, method string, discountCents int64) (*models.AttachPaymentResponse, error) {
	log := logger.WithContext(ctx)

	if !session.CanTransition(models.SessionAwaitingPayment) {
		return nil, apperrors.New(apperrors.ErrConflict, "checkout session is %s", session.Status)
	}

	tt, err := g.store.TicketTypes().GetByID(ctx, session.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}
	if tt == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "ticket type not found")
	}

	baseCents := session.UnitPriceCents * int64(session.Quantity)
	totalCents := baseCents - discountCents

	payment := &models.Payment{
		ID:                uuid.New().String(),
		CheckoutSessionID: session.ID,
		EventID:           session.EventID,
		OrganizerID:       tt.OrganizerID,
		Method:            method,
		Status:            models.PaymentPending,
		AmountCents:       totalCents,
		Currency:          session.Currency,
	}
	quote := &models.PaymentQuote{
		AmountCents:   totalCents,
		DiscountCents: discountCents,
		Currency:      session.Currency,
	}

	var alloc *Allocation
	if method == models.MethodBCH {
		sats, rate, err := g.rates.Quote(ctx, totalCents, session.Currency)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrChainQueryFailed, "failed to quote BCH amount: %v", err)
		}

		alloc, err = g.allocator.Allocate(ctx, tt.OrganizerID)
		if err != nil {
			return nil, err
		}

		index := alloc.Index
		address := alloc.Address
		payment.ExpectedSats = sats
		payment.DerivedAddress = &address
		payment.DerivationIndex = &index

		quote.Address = &address
		quote.AmountSats = sats
		quote.Rate = rate.String()
	}

	updated := *session
	updated.Status = models.SessionAwaitingPayment
	updated.PaymentMethod = &method
	updated.PaymentID = &payment.ID
	updated.BCHAddress = payment.DerivedAddress
	updated.DiscountCents = discountCents
	updated.TotalCents = totalCents
	updated.ExpiresAt = g.now().Add(g.holdWindow)

	err = g.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		if alloc != nil {
			if err := tx.Wallets().BindReservation(ctx, alloc.OrganizerID, alloc.Index, payment.ID); err != nil {
				return err
			}
		}
		return tx.Sessions().Update(ctx, &updated)
	})
	if err != nil {
		if alloc != nil {
			g.allocator.release(ctx, alloc.OrganizerID, alloc.Index, "payment transaction failed")
		}
		if errors.Is(err, apperrors.ErrConflict) {
			// a concurrent attach for the same session committed first
			if resp, getErr := g.existing(ctx, session.ID, method); getErr == nil && resp != nil {
				return resp, nil
			}
			return nil, err
		}
		g.monitor.TrackPayment(method, "create_failed")
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	g.monitor.TrackPayment(method, "created")
	log.Info("Payment created",
		"payment_id", payment.ID,
		"session_id", session.ID,
		"organizer_id", payment.OrganizerID,
		"method", method,
		"amount_cents", totalCents,
		"expected_sats", payment.ExpectedSats)

	g.events.publish(ctx, models.EventPaymentCreated, models.PaymentCreatedEvent{
		PaymentID:         payment.ID,
		CheckoutSessionID: session.ID,
		OrganizerID:       payment.OrganizerID,
		Method:            method,
		AmountCents:       totalCents,
		ExpectedSats:      payment.ExpectedSats,
		Address:           payment.DerivedAddress,
		Timestamp:         g.now(),
	})

	return &models.AttachPaymentResponse{Session: &updated, Payment: payment, Quote: quote}, nil
}

// Reconcile checks the payment address on chain and completes the payment once the
// received amount covers the expected amount. Terminal payments are returned as they are.
func (g *PaymentGateway) Reconcile(ctx context.Context, sessionID string) (*models.ReconcileResponse, error) {
	session, payment, err := g.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if payment.IsTerminal() || payment.Method != models.MethodBCH || payment.DerivedAddress == nil {
		return g.state(ctx, session, payment)
	}

	address := *payment.DerivedAddress

	start := time.Now()
	balance, err := g.chain.Balance(ctx, address)
	g.monitor.TrackChainQuery("balance", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	start = time.Now()
	utxos, err := g.chain.UTXOs(ctx, address)
	g.monitor.TrackChainQuery("utxos", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	expected, err := g.expectedSats(ctx, payment)
	if err != nil {
		return nil, err
	}
	received := balance.Total()

	if received < expected {
		resp, err := g.state(ctx, session, payment)
		if err != nil {
			return nil, err
		}
		resp.ExpectedSats = expected
		resp.ReceivedSats = received
		return resp, nil
	}

	txHash := ""
	if len(utxos) > 0 {
		txHash = utxos[0].TxID
	}
	return g.complete(ctx, session, payment, completion{
		txHash:       txHash,
		receivedSats: received,
		source:       SourcePoller,
	})
}

// HandleWebhook settles a BCH payment from an external watcher's claim. The NFT ticket
// is minted to the sender's address.
func (g *PaymentGateway) HandleWebhook(ctx context.Context, p *models.WebhookPayload) (*models.ReconcileResponse, error) {
	session, payment, err := g.load(ctx, p.CheckoutSessionID)
	if err != nil {
		return nil, err
	}
	if payment.Method != models.MethodBCH {
		return nil, apperrors.New(apperrors.ErrBadRequest, "only BCH payments can trigger this webhook")
	}
	if payment.Status == models.PaymentCompleted {
		return g.state(ctx, session, payment)
	}
	if payment.IsTerminal() {
		return nil, apperrors.New(apperrors.ErrConflict, "payment is %s", payment.Status)
	}

	expected, err := g.expectedSats(ctx, payment)
	if err != nil {
		return nil, err
	}
	if p.AmountSats < expected {
		return nil, apperrors.New(apperrors.ErrPaymentIncomplete, "claimed amount is below the expected amount").
			WithDetail("expectedSats", expected).
			WithDetail("amountSats", p.AmountSats)
	}

	return g.complete(ctx, session, payment, completion{
		txHash:       p.TxHash,
		receivedSats: p.AmountSats,
		source:       SourceWebhook,
		nft:          &models.NFTTicket{WalletAddress: p.FromAddress},
	})
}

// VerifyPending reconciles up to limit pending BCH payments, least recently checked
// first, and returns how many completed. Successive calls cycle through the whole
// pending set.
func (g *PaymentGateway) VerifyPending(ctx context.Context, limit int) (int, error) {
	pending, err := g.store.Payments().NextForVerification(ctx, models.MethodBCH, limit, g.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list pending payments: %w", err)
	}

	completed := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		resp, err := g.Reconcile(ctx, p.CheckoutSessionID)
		if err != nil {
			logger.WithContext(ctx).Warn("Payment verification failed",
				"payment_id", p.ID, "session_id", p.CheckoutSessionID, "error", err)
			continue
		}
		if resp.Completed {
			completed++
		}
	}
	return completed, nil
}

// complete moves the payment to COMPLETED at most once. Only the caller whose guarded
// update wins completes the session and issues the ticket; everyone else gets the
// current state.
func (g *PaymentGateway) complete(ctx context.Context, session *models.CheckoutSession, payment *models.Payment, c completion) (*models.ReconcileResponse, error) {
	var (
		won    bool
		issued *IssueResult
		box    outbox
	)

	err := g.store.InTx(ctx, func(tx repository.Store) error {
		now := g.now()
		ok, err := tx.Payments().MarkCompleted(ctx, payment.ID, c.txHash, c.receivedSats, now)
		if err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}
		if !ok {
			return nil
		}
		won = true

		current, err := tx.Sessions().GetByID(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("failed to get checkout session: %w", err)
		}
		if current == nil {
			return apperrors.New(apperrors.ErrNotFound, "checkout session not found")
		}
		current.Status = models.SessionCompleted
		if err := tx.Sessions().Update(ctx, current); err != nil {
			return err
		}

		box.add(models.EventPaymentCompleted, models.PaymentCompletedEvent{
			PaymentID:         payment.ID,
			CheckoutSessionID: session.ID,
			OrganizerID:       payment.OrganizerID,
			TxHash:            c.txHash,
			ReceivedSats:      c.receivedSats,
			Source:            c.source,
			Timestamp:         now,
		})

		pid := payment.ID
		issued, err = g.issuance.issue(ctx, tx, IssueTicketInput{
			TicketTypeID:       current.TicketTypeID,
			EventID:            current.EventID,
			OrganizerID:        payment.OrganizerID,
			Attendee:           current.Attendee,
			PaymentID:          &pid,
			NFT:                c.nft,
			CashbackAmountSats: g.cashback.RewardFor(c.receivedSats),
		}, &box)
		return err
	})
	if err != nil {
		g.monitor.TrackPayment(payment.Method, "complete_failed")
		if errors.Is(err, apperrors.ErrSoldOut) {
			logger.WithContext(ctx).Error("Paid checkout cannot be fulfilled, ticket type sold out",
				"payment_id", payment.ID, "session_id", session.ID)
		}
		return nil, err
	}

	if won {
		g.monitor.TrackPayment(payment.Method, "completed")
		logger.WithContext(ctx).Info("Payment completed",
			"payment_id", payment.ID,
			"session_id", session.ID,
			"received_sats", c.receivedSats,
			"source", c.source)
		g.issuance.afterCommit(ctx, issued, c.source, box)
	}

	session, payment, err = g.load(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return g.state(ctx, session, payment)
}

// existing returns the session's committed payment when it used the same method.
func (g *PaymentGateway) existing(ctx context.Context, sessionID, method string) (*models.AttachPaymentResponse, error) {
	session, payment, err := g.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if payment.Method != method {
		return nil, nil
	}
	return &models.AttachPaymentResponse{
		Session: session,
		Payment: payment,
		Quote:   QuoteFor(payment, session),
	}, nil
}

// QuoteFor rebuilds the purchaser-facing quote from a stored payment.
func QuoteFor(p *models.Payment, s *models.CheckoutSession) *models.PaymentQuote {
	return &models.PaymentQuote{
		Address:       p.DerivedAddress,
		AmountSats:    p.ExpectedSats,
		AmountCents:   p.AmountCents,
		DiscountCents: s.DiscountCents,
		Currency:      p.Currency,
	}
}

func (g *PaymentGateway) expectedSats(ctx context.Context, p *models.Payment) (int64, error) {
	if p.ExpectedSats > 0 {
		return p.ExpectedSats, nil
	}
	sats, _, err := g.rates.Quote(ctx, p.AmountCents, p.Currency)
	if err != nil {
		return 0, apperrors.New(apperrors.ErrChainQueryFailed, "failed to quote BCH amount: %v", err)
	}
	return sats, nil
}

func (g *PaymentGateway) load(ctx context.Context, sessionID string) (*models.CheckoutSession, *models.Payment, error) {
	session, err := g.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	if session == nil {
		return nil, nil, apperrors.New(apperrors.ErrNotFound, "checkout session not found")
	}

	payment, err := g.store.Payments().GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, nil, apperrors.New(apperrors.ErrNotFound, "checkout session payment not found")
	}
	return session, payment, nil
}

func (g *PaymentGateway) state(ctx context.Context, session *models.CheckoutSession, payment *models.Payment) (*models.ReconcileResponse, error) {
	resp := &models.ReconcileResponse{
		Status:       payment.Status,
		Completed:    payment.Status == models.PaymentCompleted,
		ExpectedSats: payment.ExpectedSats,
		ReceivedSats: payment.ReceivedSats,
		Session:      session,
		Payment:      payment,
	}

	ticket, err := g.store.Tickets().GetByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	resp.Ticket = ticket

	stamp, err := g.store.Cashback().GetByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cashback: %w", err)
	}
	resp.Cashback = stamp
	return resp, nil
}
