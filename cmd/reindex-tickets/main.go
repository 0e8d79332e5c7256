package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"ticketpay/internal/config"
	"ticketpay/internal/database"
	"ticketpay/internal/logger"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/internal/search"
)

const pageSize = 100

type ticketIndexer interface {
	IndexTicket(ctx context.Context, t *models.Ticket) error
}

func main() {
	var organizerID, eventID string
	flag.StringVar(&organizerID, "organizer-id", "", "Only reindex tickets of this organizer")
	flag.StringVar(&eventID, "event-id", "", "Only reindex tickets of this event")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	if !cfg.Elasticsearch.Enabled {
		logger.Fatal("Elasticsearch is disabled, set ELASTICSEARCH_ENABLED=true")
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to connect to Elasticsearch", "error", err)
	}

	log.Info("Starting ticket reindex", "organizer_id", organizerID, "event_id", eventID)

	store := repository.NewPostgresStore(db)
	filter := models.TicketFilter{OrganizerID: organizerID, EventID: eventID}
	if err := reindex(context.Background(), store.Tickets(), es, filter); err != nil {
		logger.Fatal("Ticket reindex failed", "error", err)
	}

	log.Info("Ticket reindex completed successfully")
}

// reindex pages through the tickets matching f and writes each one to the index.
// A failed document aborts the run so it can be restarted.
func reindex(ctx context.Context, tickets repository.TicketStore, index ticketIndexer, f models.TicketFilter) error {
	start := time.Now()
	f.Limit = pageSize

	indexed := 0
	for f.Offset = 0; ; f.Offset += pageSize {
		page, total, err := tickets.List(ctx, f)
		if err != nil {
			return fmt.Errorf("failed to list tickets at offset %d: %w", f.Offset, err)
		}
		for i := range page {
			if err := index.IndexTicket(ctx, &page[i]); err != nil {
				return fmt.Errorf("failed to index ticket %s: %w", page[i].ID, err)
			}
			indexed++
		}

		logger.WithContext(ctx).Info("Reindex progress", "indexed", indexed, "total", total)
		if len(page) < pageSize || f.Offset+len(page) >= total {
			break
		}
	}

	logger.WithContext(ctx).Info("Tickets reindexed",
		"indexed", indexed,
		"duration", time.Since(start).String())
	return nil
}
