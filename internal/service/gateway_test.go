package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/hdwallet"
	"ticketpay/internal/models"
	"ticketpay/internal/repository/memory"
)

func TestStartCheckoutPricesAndHolds(t *testing.T) {
	f := newFixture(t)

	s := f.start(t, testTicketType)
	assert.Equal(t, models.SessionStarted, s.Status)
	assert.Equal(t, int64(10000), s.UnitPriceCents)
	assert.Equal(t, int64(10000), s.TotalCents)
	assert.Equal(t, int64(0), s.DiscountCents)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), s.ExpiresAt)
}

func TestStartCheckoutUsesEarlyBirdPrice(t *testing.T) {
	f := newFixture(t)
	early := int64(6000)
	ends := f.clock.Now().Add(time.Hour)
	f.addTicketType(t, models.TicketType{
		ID: "tt-early", QuantityTotal: 5, IsEarlyBird: true,
		EarlyBirdPriceCents: &early, EarlyBirdEndsAt: &ends,
	})

	s := f.start(t, "tt-early")
	assert.Equal(t, int64(6000), s.UnitPriceCents)
}

func TestStartCheckoutRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.AddEvent(models.Event{ID: "evt-draft", OrganizerID: testOrganizer, Status: models.EventStatusDraft})
	f.addTicketType(t, models.TicketType{ID: "tt-draft", EventID: "evt-draft", QuantityTotal: 5})
	f.addTicketType(t, models.TicketType{ID: "tt-gone", QuantityTotal: 2, QuantitySold: 2})
	hidden := models.TicketType{ID: "tt-hidden", EventID: testEvent, Name: "Hidden", PriceCents: 100, Currency: "USD", QuantityTotal: 5}
	f.store.AddTicketType(hidden)

	tests := []struct {
		name    string
		eventID string
		typeID  string
		want    error
	}{
		{"unpublished event", "evt-draft", "tt-draft", apperrors.ErrNotFound},
		{"hidden ticket type", testEvent, "tt-hidden", apperrors.ErrNotFound},
		{"type from another event", "evt-draft", testTicketType, apperrors.ErrNotFound},
		{"unknown type", testEvent, "missing", apperrors.ErrNotFound},
		{"sold out", testEvent, "tt-gone", apperrors.ErrSoldOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Checkout.Start(ctx, &models.StartCheckoutRequest{
				EventID: tt.eventID, TicketTypeID: tt.typeID, Quantity: 1,
				AttendeeName: "Ada", AttendeeEmail: "ada@example.com",
			})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestAttachBCHQuotesDiscountedAmount(t *testing.T) {
	f := newFixture(t)
	s := f.start(t, testTicketType)

	resp := f.attach(t, s.ID, models.MethodBCH)
	require.NotNil(t, resp.Quote.Address)
	assert.Equal(t, int64(1000), resp.Quote.DiscountCents)
	assert.Equal(t, int64(9000), resp.Quote.AmountCents)
	// 90.00 USD at 400 USD/BCH
	assert.Equal(t, int64(22500000), resp.Quote.AmountSats)
	assert.Equal(t, "400", resp.Quote.Rate)

	assert.Equal(t, models.SessionAwaitingPayment, resp.Session.Status)
	assert.Equal(t, int64(9000), resp.Session.TotalCents)
	assert.Equal(t, resp.Quote.Address, resp.Session.BCHAddress)
	assert.Equal(t, models.PaymentPending, resp.Payment.Status)
	assert.Equal(t, testOrganizer, resp.Payment.OrganizerID)

	reservations := f.store.Reservations(testOrganizer)
	require.Len(t, reservations, 1)
	assert.Equal(t, models.ReservationBound, reservations[0].Status)
	assert.Equal(t, resp.Payment.ID, *reservations[0].PaymentID)
	assert.Equal(t, 1, f.pub.count(models.EventPaymentCreated))

	again := f.attach(t, s.ID, models.MethodBCH)
	assert.Equal(t, resp.Payment.ID, again.Payment.ID)
	assert.Equal(t, *resp.Quote.Address, *again.Quote.Address)
	assert.Len(t, f.store.Reservations(testOrganizer), 1)

	_, err := f.svc.Checkout.AttachPaymentMethod(context.Background(), s.ID, models.MethodCard)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestAttachCardHasNoAddressOrDiscount(t *testing.T) {
	f := newFixture(t)
	s := f.start(t, testTicketType)

	resp := f.attach(t, s.ID, models.MethodCard)
	assert.Nil(t, resp.Quote.Address)
	assert.Equal(t, int64(0), resp.Quote.DiscountCents)
	assert.Equal(t, int64(10000), resp.Payment.AmountCents)
	assert.Empty(t, f.store.Reservations(testOrganizer))
}

func TestAttachRejectsUnknownMethodAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout.AttachPaymentMethod(ctx, "missing", models.MethodBCH)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	s := f.start(t, testTicketType)
	_, err = f.svc.Checkout.AttachPaymentMethod(ctx, s.ID, "PAYPAL")
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
}

func TestAttachAfterHoldWindowExpires(t *testing.T) {
	f := newFixture(t)
	s := f.start(t, testTicketType)

	f.clock.Advance(11 * time.Minute)

	_, err := f.svc.Checkout.AttachPaymentMethod(context.Background(), s.ID, models.MethodBCH)
	assert.True(t, errors.Is(err, apperrors.ErrSessionExpired))

	view, err := f.svc.Checkout.Get(context.Background(), s.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, view.EffectiveStatus)
	assert.Equal(t, models.SessionStarted, view.Session.Status)
}

func TestPaymentTransactionFailureReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, testTicketType)

	f.store.SetFaults(memory.Faults{PaymentCreate: errors.New("insert failed")})
	_, err := f.svc.Checkout.AttachPaymentMethod(ctx, s.ID, models.MethodBCH)
	require.Error(t, err)

	reservations := f.store.Reservations(testOrganizer)
	require.Len(t, reservations, 1)
	assert.Equal(t, models.ReservationReleased, reservations[0].Status)

	wallet, err := f.store.Wallets().Get(ctx, testOrganizer)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), wallet.NextIndex)

	stored, err := f.store.Sessions().GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStarted, stored.Status)
	assert.Nil(t, stored.PaymentID)

	f.store.SetFaults(memory.Faults{})
	resp := f.attach(t, s.ID, models.MethodBCH)
	assert.Equal(t, uint32(0), *resp.Payment.DerivationIndex)
}

func TestReconcileCompletesOncePaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.attach(t, f.start(t, testTicketType).ID, models.MethodBCH)

	state, err := f.svc.Payments.Reconcile(ctx, resp.Session.ID)
	require.NoError(t, err)
	assert.False(t, state.Completed)
	assert.Equal(t, int64(22500000), state.ExpectedSats)
	assert.Equal(t, int64(0), state.ReceivedSats)

	f.chain.Pay(*resp.Quote.Address, resp.Quote.AmountSats-1)
	state, err = f.svc.Payments.Reconcile(ctx, resp.Session.ID)
	require.NoError(t, err)
	assert.False(t, state.Completed)

	f.chain.Pay(*resp.Quote.Address, 1)
	state, err = f.svc.Payments.Reconcile(ctx, resp.Session.ID)
	require.NoError(t, err)
	require.True(t, state.Completed)
	assert.Equal(t, models.PaymentCompleted, state.Payment.Status)
	assert.Equal(t, models.SessionCompleted, state.Session.Status)
	require.NotNil(t, state.Payment.TxHash)
	require.NotNil(t, state.Ticket)
	assert.True(t, strings.HasPrefix(state.Ticket.ReferenceCode, "TKT-"))
	require.NotNil(t, state.Cashback)
	assert.Equal(t, int64(225000), state.Cashback.AmountSats)
	assert.Equal(t, models.CashbackUnclaimed, state.Cashback.Status)

	assert.Equal(t, 1, f.pub.count(models.EventPaymentCompleted))
	assert.Equal(t, 1, f.pub.count(models.EventTicketIssued))
	assert.Equal(t, 1, f.pub.count(models.EventCashbackRecorded))
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.paid(t)

	first, err := f.svc.Payments.Reconcile(ctx, resp.Session.ID)
	require.NoError(t, err)
	require.True(t, first.Completed)

	second, err := f.svc.Payments.Reconcile(ctx, resp.Session.ID)
	require.NoError(t, err)
	assert.True(t, second.Completed)
	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)
	assert.Equal(t, first.Cashback.ID, second.Cashback.ID)

	assert.Equal(t, 1, f.store.TicketCount())
	assert.Equal(t, 1, f.ticketType(t, testTicketType).QuantitySold)
	assert.Equal(t, 1, f.pub.count(models.EventPaymentCompleted))
}

func TestConcurrentReconcileIssuesOneTicket(t *testing.T) {
	f := newFixture(t)
	resp := f.paid(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := f.svc.Payments.Reconcile(context.Background(), resp.Session.ID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if state.Ticket != nil {
				seen[state.Ticket.ID] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1)
	assert.Equal(t, 1, f.store.TicketCount())
	assert.Equal(t, 1, f.ticketType(t, testTicketType).QuantitySold)
}

func TestReconcileCountsUnconfirmedBalance(t *testing.T) {
	f := newFixture(t)
	resp := f.attach(t, f.start(t, testTicketType).ID, models.MethodBCH)
	f.chain.PayUnconfirmed(*resp.Quote.Address, resp.Quote.AmountSats)

	state, err := f.svc.Payments.Reconcile(context.Background(), resp.Session.ID)
	require.NoError(t, err)
	assert.True(t, state.Completed)
	assert.Nil(t, state.Payment.TxHash)
}

func TestReconcileSurfacesChainErrors(t *testing.T) {
	f := newFixture(t)
	resp := f.paid(t)
	f.chain.FailQueries(errors.New("indexer down"))

	_, err := f.svc.Payments.Reconcile(context.Background(), resp.Session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrChainQueryFailed))

	payment, err := f.store.Payments().GetBySessionID(context.Background(), resp.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
}

func TestLatePaymentStillCompletes(t *testing.T) {
	f := newFixture(t)
	resp := f.paid(t)
	f.clock.Advance(time.Hour)

	state, err := f.svc.Payments.Reconcile(context.Background(), resp.Session.ID)
	require.NoError(t, err)
	assert.True(t, state.Completed)

	view, err := f.svc.Checkout.Get(context.Background(), resp.Session.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, view.EffectiveStatus)
}

func TestCompletionWhenSoldOutLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTicketType(t, models.TicketType{ID: "tt-last", QuantityTotal: 1})

	a := f.attach(t, f.start(t, "tt-last").ID, models.MethodBCH)
	b := f.attach(t, f.start(t, "tt-last").ID, models.MethodBCH)
	f.chain.Pay(*a.Quote.Address, a.Quote.AmountSats)
	f.chain.Pay(*b.Quote.Address, b.Quote.AmountSats)

	state, err := f.svc.Payments.Reconcile(ctx, a.Session.ID)
	require.NoError(t, err)
	require.True(t, state.Completed)

	_, err = f.svc.Payments.Reconcile(ctx, b.Session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrSoldOut))

	payment, err := f.store.Payments().GetBySessionID(ctx, b.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
	session, err := f.store.Sessions().GetByID(ctx, b.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionAwaitingPayment, session.Status)

	assert.Equal(t, 1, f.ticketType(t, "tt-last").QuantitySold)
	assert.Equal(t, 1, f.store.TicketCount())
}

func TestWebhookCompletesAndMintsNFT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.attach(t, f.start(t, testTicketType).ID, models.MethodBCH)
	from := "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a"

	payload := &models.WebhookPayload{
		CheckoutSessionID: resp.Session.ID,
		TxHash:            strings.Repeat("ab", 32),
		AmountSats:        resp.Quote.AmountSats,
		FromAddress:       from,
	}
	state, err := f.svc.Payments.HandleWebhook(ctx, payload)
	require.NoError(t, err)
	require.True(t, state.Completed)
	require.NotNil(t, state.Ticket.NFT)
	assert.Equal(t, from, state.Ticket.NFT.WalletAddress)
	assert.True(t, strings.HasPrefix(state.Ticket.NFT.TokenID, "0x"))
	assert.Len(t, state.Ticket.NFT.TokenID, 66)
	assert.Equal(t, payload.TxHash, *state.Payment.TxHash)

	again, err := f.svc.Payments.HandleWebhook(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, state.Ticket.ID, again.Ticket.ID)
	assert.Equal(t, 1, f.store.TicketCount())
}

func TestWebhookRejectsUnderpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.attach(t, f.start(t, testTicketType).ID, models.MethodBCH)

	_, err := f.svc.Payments.HandleWebhook(ctx, &models.WebhookPayload{
		CheckoutSessionID: resp.Session.ID,
		TxHash:            strings.Repeat("cd", 32),
		AmountSats:        resp.Quote.AmountSats - 1,
		FromAddress:       "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a",
	})
	assert.True(t, errors.Is(err, apperrors.ErrPaymentIncomplete))

	payment, err := f.store.Payments().GetBySessionID(ctx, resp.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, 0, f.store.TicketCount())
}

func TestWebhookRejectsCardPayment(t *testing.T) {
	f := newFixture(t)
	resp := f.attach(t, f.start(t, testTicketType).ID, models.MethodCard)

	_, err := f.svc.Payments.HandleWebhook(context.Background(), &models.WebhookPayload{
		CheckoutSessionID: resp.Session.ID,
		TxHash:            strings.Repeat("ef", 32),
		AmountSats:        1000,
		FromAddress:       "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a",
	})
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
}

func TestVerifyPendingCompletesPaidSessions(t *testing.T) {
	f := newFixture(t)
	f.paid(t)
	f.attach(t, f.start(t, testTicketType).ID, models.MethodBCH)

	n, err := f.svc.Payments.VerifyPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.store.TicketCount())
}

func TestVerifyPendingReachesPaymentsBeyondTheBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.attach(t, f.start(t, testTicketType).ID, models.MethodBCH)
		f.clock.Advance(time.Second)
	}
	f.paid(t)

	completed := 0
	for round := 0; round < 2; round++ {
		f.clock.Advance(time.Minute)
		n, err := f.svc.Payments.VerifyPending(ctx, 3)
		require.NoError(t, err)
		completed += n
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, f.store.TicketCount())
}

func TestGetRevealsCashbackSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.paid(t)
	_, err := f.svc.Payments.Reconcile(ctx, resp.Session.ID)
	require.NoError(t, err)

	hidden, err := f.svc.Checkout.Get(ctx, resp.Session.ID, false)
	require.NoError(t, err)
	require.NotNil(t, hidden.Cashback)
	assert.Empty(t, hidden.CashbackWIF)
	require.NotNil(t, hidden.Ticket)

	view, err := f.svc.Checkout.Get(ctx, resp.Session.ID, true)
	require.NoError(t, err)
	require.NotEmpty(t, view.CashbackWIF)

	kp, err := hdwallet.KeypairFromWIF(view.CashbackWIF)
	require.NoError(t, err)
	assert.Equal(t, view.Cashback.Address, kp.Address)
}

func TestListByEventRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t, testTicketType)
	f.start(t, testTicketType)

	sessions, err := f.svc.Checkout.ListByEvent(ctx, testOrganizer, testEvent, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	_, err = f.svc.Checkout.ListByEvent(ctx, otherOrganizer, testEvent, 0)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
