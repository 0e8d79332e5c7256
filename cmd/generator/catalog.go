package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"ticketpay/internal/models"
)

// tier is a ticket type template; price grows toward the front of the house.
type tier struct {
	name      string
	basePrice int64
	spread    int64
	capacity  int
}

var tiers = []tier{
	{"VIP", 20000, 10000, 20},
	{"Standard", 5000, 3000, 200},
	{"Balcony", 2000, 1000, 100},
}

// generateEvent builds a published event with one ticket type per tier. Every
// other event gets an early-bird window and the cheapest tier is BCH-discounted.
func generateEvent(rng *rand.Rand, organizerID string, n int, now time.Time) (models.Event, []models.TicketType) {
	ev := models.Event{
		ID:          uuid.New().String(),
		OrganizerID: organizerID,
		Title:       fmt.Sprintf("Demo event #%d", n),
		Status:      models.EventStatusPublished,
		StartsAt:    now.Add(time.Duration(7+rng.Intn(60)) * 24 * time.Hour).Truncate(time.Hour),
	}

	types := make([]models.TicketType, 0, len(tiers))
	for i, t := range tiers {
		price := t.basePrice + rng.Int63n(t.spread)
		price -= price % 100

		tt := models.TicketType{
			ID:              uuid.New().String(),
			EventID:         ev.ID,
			Name:            t.name,
			PriceCents:      price,
			Currency:        "USD",
			Visible:         true,
			QuantityTotal:   t.capacity/2 + rng.Intn(t.capacity),
			IsBCHDiscounted: i == len(tiers)-1 || rng.Intn(2) == 0,
		}
		if n%2 == 0 {
			early := price * 8 / 10
			ends := now.Add(72 * time.Hour)
			tt.IsEarlyBird = true
			tt.EarlyBirdPriceCents = &early
			tt.EarlyBirdEndsAt = &ends
		}
		types = append(types, tt)
	}
	return ev, types
}
