package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketpay/internal/models"
	"ticketpay/internal/repository/memory"
)

type recordingIndex struct {
	ids    map[string]int
	failOn string
}

func (r *recordingIndex) IndexTicket(_ context.Context, t *models.Ticket) error {
	if t.ID == r.failOn {
		return errors.New("rejected")
	}
	r.ids[t.ID]++
	return nil
}

func seedTickets(t *testing.T, n int) *memory.Store {
	t.Helper()
	store := memory.New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	for i := 0; i < n; i++ {
		event := "evt-1"
		if i%5 == 0 {
			event = "evt-2"
		}
		require.NoError(t, store.Tickets().Create(context.Background(), &models.Ticket{
			ID:            fmt.Sprintf("t-%03d", i),
			EventID:       event,
			OrganizerID:   "org-1",
			Status:        models.TicketConfirmed,
			ReferenceCode: fmt.Sprintf("TKT-%08d", i),
		}))
	}
	return store
}

func TestReindexPagesThroughAllTickets(t *testing.T) {
	store := seedTickets(t, 250)
	index := &recordingIndex{ids: map[string]int{}}

	require.NoError(t, reindex(context.Background(), store.Tickets(), index, models.TicketFilter{}))

	assert.Len(t, index.ids, 250)
	for id, n := range index.ids {
		assert.Equal(t, 1, n, id)
	}
}

func TestReindexHonoursFilter(t *testing.T) {
	store := seedTickets(t, 50)
	index := &recordingIndex{ids: map[string]int{}}

	require.NoError(t, reindex(context.Background(), store.Tickets(), index, models.TicketFilter{EventID: "evt-2"}))
	assert.Len(t, index.ids, 10)
}

func TestReindexStopsOnIndexError(t *testing.T) {
	store := seedTickets(t, 5)
	index := &recordingIndex{ids: map[string]int{}, failOn: "t-002"}

	err := reindex(context.Background(), store.Tickets(), index, models.TicketFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t-002")
}
