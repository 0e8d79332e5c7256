package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"ticketpay/internal/config"
	"ticketpay/internal/database"
	"ticketpay/internal/hdwallet"
	"ticketpay/internal/logger"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/internal/service"
	"ticketpay/internal/vault"
)

var (
	keygen   = flag.Bool("keygen", false, "Print a new base64 wallet encryption key and exit")
	email    = flag.String("email", "demo@ticketpay.local", "Organizer email (created when missing)")
	password = flag.String("password", "demo", "Organizer password for new organizers")
	events   = flag.Int("events", 0, "Number of demo events to generate for the organizer")
	wallet   = flag.Bool("wallet", false, "Create the organizer's HD wallet when missing")
	preview  = flag.Int("preview", 0, "Print the first N receive addresses of the organizer's wallet")
	dryRun   = flag.Bool("dry-run", false, "Show what would be generated without making changes")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")
	log := logger.Get()

	if *keygen {
		key, err := vault.GenerateMasterKey()
		if err != nil {
			logger.Fatal("Failed to generate key", "error", err)
		}
		fmt.Println(key)
		return
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	ctx := context.Background()
	store := repository.NewPostgresStore(db)

	org, err := ensureOrganizer(ctx, store, *email, *password)
	if err != nil {
		logger.Fatal("Failed to prepare organizer", "error", err)
	}
	log.Info("Using organizer", "organizer_id", org.ID, "email", org.Email)

	if *events > 0 {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for n := 1; n <= *events; n++ {
			ev, types := generateEvent(rng, org.ID, n, time.Now())
			if *dryRun {
				log.Info("[DRY RUN] Would generate event", "title", ev.Title, "ticket_types", len(types))
				continue
			}
			if err := insertEvent(ctx, db, ev, types); err != nil {
				logger.Fatal("Failed to insert event", "title", ev.Title, "error", err)
			}
			log.Info("Generated event", "event_id", ev.ID, "title", ev.Title, "ticket_types", len(types))
		}
	}

	if *wallet || *preview > 0 {
		v, err := vault.NewFromKey(cfg.Wallet.EncryptionKey)
		if err != nil {
			logger.Fatal("Wallet vault unavailable", "error", err)
		}
		wallets := service.NewWalletService(store, v)

		var w *models.OrganizerWallet
		if *wallet && !*dryRun {
			var created bool
			w, created, err = wallets.EnsureWallet(ctx, org.ID)
			if err == nil {
				log.Info("Organizer wallet ready", "created", created, "xpub", w.Xpub)
			}
		} else {
			w, err = wallets.Get(ctx, org.ID)
		}
		if err != nil {
			logger.Fatal("Failed to load wallet", "error", err)
		}

		for i := 0; i < *preview; i++ {
			addr, err := hdwallet.DeriveAddress(w.Xpub, uint32(i))
			if err != nil {
				logger.Fatal("Failed to derive address", "index", i, "error", err)
			}
			fmt.Printf("m/0/%d\t%s\n", i, addr)
		}
	}

	log.Info("Generation completed successfully")
}

func ensureOrganizer(ctx context.Context, store repository.Store, email, password string) (*models.Organizer, error) {
	org, err := store.Organizers().GetByEmail(ctx, email)
	if err != nil || org != nil {
		return org, err
	}
	if *dryRun {
		return &models.Organizer{ID: "(new)", Email: email}, nil
	}

	org = &models.Organizer{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: fmt.Sprintf("%x", sha256.Sum256([]byte(password))),
		Name:         email,
		IsActive:     true,
	}
	if err := store.Organizers().Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func insertEvent(ctx context.Context, db *database.DB, ev models.Event, types []models.TicketType) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, organizer_id, title, status, starts_at) VALUES ($1, $2, $3, $4, $5)`,
			ev.ID, ev.OrganizerID, ev.Title, ev.Status, ev.StartsAt)
		if err != nil {
			return err
		}

		stmt := `
			INSERT INTO ticket_types (id, event_id, name, price_cents, currency, visible, quantity_total,
				is_early_bird, early_bird_price_cents, early_bird_ends_at, is_bch_discounted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		for _, tt := range types {
			_, err := tx.ExecContext(ctx, stmt, tt.ID, tt.EventID, tt.Name, tt.PriceCents, tt.Currency,
				tt.Visible, tt.QuantityTotal, tt.IsEarlyBird, tt.EarlyBirdPriceCents, tt.EarlyBirdEndsAt, tt.IsBCHDiscounted)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
