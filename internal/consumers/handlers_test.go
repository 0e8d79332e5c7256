package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
	"ticketpay/internal/repository/memory"
)

type fakeFunder struct {
	calls int
	err   error
}

func (f *fakeFunder) Fund(_ context.Context, paymentID, _ string) (*models.FundCashbackResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.FundCashbackResponse{StampID: "stamp-" + paymentID, Status: models.CashbackClaimed, FundingTxID: "tx"}, nil
}

type fakeIndexer struct {
	indexed []string
	err     error
}

func (f *fakeIndexer) IndexTicket(_ context.Context, t *models.Ticket) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, t.ID)
	return nil
}

func payload(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestCashbackRecorded(t *testing.T) {
	event := payload(t, models.CashbackEvent{StampID: "s-1", PaymentID: "p-1", OrganizerID: "org-1", AmountSats: 1000})

	tests := []struct {
		name      string
		autoFund  bool
		err       error
		wantAck   ack
		wantCalls int
	}{
		{"disabled", false, nil, true, 0},
		{"funded", true, nil, true, 1},
		{"already claimed", true, apperrors.New(apperrors.ErrConflict, "claimed"), true, 1},
		{"broadcast rejected", true, apperrors.New(apperrors.ErrBroadcastFailed, "rejected"), true, 1},
		{"operational address underfunded", true, apperrors.New(apperrors.ErrInsufficientFunds, "have 0 sats"), true, 1},
		{"transient", true, errors.New("connection reset"), false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			funder := &fakeFunder{err: tt.err}
			h := NewHandlers(funder, memory.New().Tickets(), nil, tt.autoFund)

			assert.Equal(t, tt.wantAck, h.cashbackRecorded(event))
			assert.Equal(t, tt.wantCalls, funder.calls)
		})
	}
}

func TestMalformedMessagesAreAcked(t *testing.T) {
	h := NewHandlers(&fakeFunder{}, memory.New().Tickets(), &fakeIndexer{}, true)

	assert.Equal(t, ack(true), h.cashbackRecorded([]byte("{")))
	assert.Equal(t, ack(true), h.ticketIssued([]byte("{")))
	assert.Equal(t, ack(true), h.paymentCompleted([]byte("{")))
}

func TestTicketIssuedReindexes(t *testing.T) {
	store := memory.New()
	ticket := &models.Ticket{ID: "t-1", EventID: "evt-1", ReferenceCode: "TKT-AAAA1111", Status: models.TicketConfirmed}
	require.NoError(t, store.Tickets().Create(context.Background(), ticket))

	index := &fakeIndexer{}
	h := NewHandlers(&fakeFunder{}, store.Tickets(), index, false)

	assert.Equal(t, ack(true), h.ticketIssued(payload(t, models.TicketIssuedEvent{TicketID: "t-1"})))
	assert.Equal(t, []string{"t-1"}, index.indexed)

	// unknown tickets are dropped, index failures are retried
	assert.Equal(t, ack(true), h.ticketIssued(payload(t, models.TicketIssuedEvent{TicketID: "missing"})))
	index.err = errors.New("es down")
	assert.Equal(t, ack(false), h.ticketIssued(payload(t, models.TicketIssuedEvent{TicketID: "t-1"})))
}

func TestTicketIssuedWithoutSearch(t *testing.T) {
	h := NewHandlers(&fakeFunder{}, memory.New().Tickets(), nil, false)
	assert.Equal(t, ack(true), h.ticketIssued(payload(t, models.TicketIssuedEvent{TicketID: "t-1"})))
}
