package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ticketpay/internal/external"
	"ticketpay/internal/external/externaltest"
	"ticketpay/internal/models"
	"ticketpay/internal/repository/memory"
	"ticketpay/internal/vault"
)

const (
	testOrganizer  = "org-1"
	otherOrganizer = "org-2"
	testEvent      = "evt-1"
	testTicketType = "tt-1"
)

type recorder struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recorder) Publish(subject string, _ interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func (r *recorder) count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *memory.Store
	chain *externaltest.Chain
	pub   *recorder
	clock *clock
	vault *vault.Vault
	svc   *Services
}

func testOptions() Options {
	return Options{
		HoldWindow:            10 * time.Minute,
		BCHDiscountPercent:    10,
		CashbackPercent:       1,
		TicketRefPrefix:       "TKT",
		AllocationMaxAttempts: 5,
		AllocationBackoff:     time.Millisecond,
		FundingIndex:          0,
		FundingFeePerKB:       1000,
		FundingDustLimit:      546,
	}
}

// newFixture seeds one organizer with a published event and a BCH-discounted ticket
// type priced at 100.00 USD, with BCH quoted at 400 USD.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := vault.GenerateMasterKey()
	require.NoError(t, err)
	v, err := vault.NewFromKey(key)
	require.NoError(t, err)

	f := &fixture{
		store: memory.New(),
		chain: externaltest.NewChain(),
		pub:   &recorder{},
		clock: &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		vault: v,
	}
	f.store.SetClock(f.clock.Now)

	f.store.AddOrganizer(models.Organizer{ID: testOrganizer, Email: "org@example.com", Name: "Org", IsActive: true})
	f.store.AddOrganizer(models.Organizer{ID: otherOrganizer, Email: "other@example.com", Name: "Other", IsActive: true})
	f.store.AddEvent(models.Event{ID: testEvent, OrganizerID: testOrganizer, Title: "Launch", Status: models.EventStatusPublished})
	f.addTicketType(t, models.TicketType{ID: testTicketType, QuantityTotal: 10, IsBCHDiscounted: true})

	rates := external.NewRateClientWithSource(externaltest.FixedRates{PerBCH: decimal.NewFromInt(400)}, nil, nil, time.Minute)

	f.svc = NewServices(Deps{
		Store:     f.store,
		Vault:     v,
		Chain:     f.chain,
		Rates:     rates,
		Publisher: f.pub,
		Options:   testOptions(),
		Now:       f.clock.Now,
	})
	return f
}

// addTicketType fills in the defaults shared by every test ticket type.
func (f *fixture) addTicketType(t *testing.T, tt models.TicketType) {
	t.Helper()
	if tt.EventID == "" {
		tt.EventID = testEvent
	}
	if tt.Name == "" {
		tt.Name = "General"
	}
	if tt.PriceCents == 0 {
		tt.PriceCents = 10000
	}
	if tt.Currency == "" {
		tt.Currency = "USD"
	}
	tt.Visible = true
	f.store.AddTicketType(tt)
}

func (f *fixture) start(t *testing.T, ticketTypeID string) *models.CheckoutSession {
	t.Helper()
	s, err := f.svc.Checkout.Start(context.Background(), &models.StartCheckoutRequest{
		EventID:       testEvent,
		TicketTypeID:  ticketTypeID,
		Quantity:      1,
		AttendeeName:  "Ada",
		AttendeeEmail: "ada@example.com",
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) attach(t *testing.T, sessionID, method string) *models.AttachPaymentResponse {
	t.Helper()
	resp, err := f.svc.Checkout.AttachPaymentMethod(context.Background(), sessionID, method)
	require.NoError(t, err)
	return resp
}

// paid starts a BCH checkout and pays its quote in full.
func (f *fixture) paid(t *testing.T) *models.AttachPaymentResponse {
	t.Helper()
	resp := f.attach(t, f.start(t, testTicketType).ID, models.MethodBCH)
	f.chain.Pay(*resp.Quote.Address, resp.Quote.AmountSats)
	return resp
}

func (f *fixture) ticketType(t *testing.T, id string) *models.TicketType {
	t.Helper()
	tt, err := f.store.TicketTypes().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tt)
	return tt
}
