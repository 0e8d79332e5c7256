package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createOrganizersTable,
		createOrganizerWalletsTable,
		createEventsTable,
		createTicketTypesTable,
		createCheckoutSessionsTable,
		createPaymentsTable,
		createAddressReservationsTable,
		createTicketsTable,
		createNFTTicketsTable,
		createCashbackStampsTable,
		upgradePaymentVerification,
		upgradeCashbackStatus,
		createIndexes,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createOrganizersTable = `
CREATE TABLE IF NOT EXISTS organizers (
    id TEXT PRIMARY KEY,
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(64) NOT NULL,
    name VARCHAR(200) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createOrganizerWalletsTable = `
CREATE TABLE IF NOT EXISTS organizer_wallets (
    organizer_id TEXT PRIMARY KEY REFERENCES organizers(id) ON DELETE CASCADE,
    xpub TEXT NOT NULL,
    encrypted_xprv TEXT NOT NULL,
    encrypted_seed TEXT NOT NULL,
    next_index BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (next_index >= 0 AND next_index < 2147483648)
);`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    organizer_id TEXT NOT NULL REFERENCES organizers(id),
    title VARCHAR(500) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'DRAFT',
    starts_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('DRAFT', 'PUBLISHED', 'CANCELLED'))
);`

const createTicketTypesTable = `
CREATE TABLE IF NOT EXISTS ticket_types (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,
    price_cents BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL DEFAULT 'USD',
    visible BOOLEAN NOT NULL DEFAULT TRUE,
    quantity_total INTEGER NOT NULL,
    quantity_sold INTEGER NOT NULL DEFAULT 0,
    is_early_bird BOOLEAN NOT NULL DEFAULT FALSE,
    early_bird_price_cents BIGINT,
    early_bird_ends_at TIMESTAMPTZ,
    is_bch_discounted BOOLEAN NOT NULL DEFAULT FALSE,

    CHECK (quantity_sold >= 0 AND quantity_sold <= quantity_total)
);`

const createCheckoutSessionsTable = `
CREATE TABLE IF NOT EXISTS checkout_sessions (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES events(id),
    ticket_type_id TEXT NOT NULL REFERENCES ticket_types(id),
    quantity INTEGER NOT NULL,
    attendee_name VARCHAR(200) NOT NULL,
    attendee_email VARCHAR(255) NOT NULL,
    attendee_phone VARCHAR(40),
    currency VARCHAR(3) NOT NULL,
    unit_price_cents BIGINT NOT NULL,
    discount_cents BIGINT NOT NULL DEFAULT 0,
    total_cents BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'STARTED',
    payment_method VARCHAR(10),
    payment_id TEXT,
    bch_address TEXT,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('STARTED', 'AWAITING_PAYMENT', 'COMPLETED'))
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    checkout_session_id TEXT NOT NULL UNIQUE REFERENCES checkout_sessions(id),
    event_id TEXT NOT NULL REFERENCES events(id),
    organizer_id TEXT NOT NULL REFERENCES organizers(id),
    method VARCHAR(10) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    amount_cents BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL,
    expected_sats BIGINT NOT NULL DEFAULT 0,
    received_sats BIGINT NOT NULL DEFAULT 0,
    derived_address TEXT,
    derivation_index BIGINT,
    tx_hash TEXT,
    completed_at TIMESTAMPTZ,
    last_checked_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (organizer_id, derivation_index),
    CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED', 'REFUNDED'))
);`

const createAddressReservationsTable = `
CREATE TABLE IF NOT EXISTS address_reservations (
    organizer_id TEXT NOT NULL REFERENCES organizers(id) ON DELETE CASCADE,
    derivation_index BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'RESERVED',
    payment_id TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (organizer_id, derivation_index),
    CHECK (status IN ('RESERVED', 'BOUND', 'RELEASED'))
);`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id TEXT PRIMARY KEY,
    ticket_type_id TEXT NOT NULL REFERENCES ticket_types(id),
    event_id TEXT NOT NULL REFERENCES events(id),
    organizer_id TEXT NOT NULL REFERENCES organizers(id),
    attendee_name VARCHAR(200) NOT NULL,
    attendee_email VARCHAR(255) NOT NULL,
    attendee_phone VARCHAR(40),
    status VARCHAR(20) NOT NULL DEFAULT 'CONFIRMED',
    reference_code VARCHAR(32) NOT NULL UNIQUE,
    payment_id TEXT UNIQUE REFERENCES payments(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createNFTTicketsTable = `
CREATE TABLE IF NOT EXISTS nft_tickets (
    ticket_id TEXT PRIMARY KEY REFERENCES tickets(id) ON DELETE CASCADE,
    wallet_address TEXT NOT NULL,
    token_id TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createCashbackStampsTable = `
CREATE TABLE IF NOT EXISTS cashback_stamps (
    id TEXT PRIMARY KEY,
    payment_id TEXT NOT NULL UNIQUE REFERENCES payments(id),
    organizer_id TEXT NOT NULL REFERENCES organizers(id),
    amount_sats BIGINT NOT NULL,
    address TEXT NOT NULL,
    encrypted_wif TEXT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'UNCLAIMED',
    funding_tx_id TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (amount_sats > 0),
    CONSTRAINT cashback_stamps_status_check CHECK (status IN ('UNCLAIMED', 'FUNDING', 'CLAIMED', 'FAILED'))
);`

// Schemas created before verification rotation and the FUNDING claim.
const upgradePaymentVerification = `
ALTER TABLE payments ADD COLUMN IF NOT EXISTS last_checked_at TIMESTAMPTZ;
DROP INDEX IF EXISTS idx_payments_pending;`

const upgradeCashbackStatus = `
ALTER TABLE cashback_stamps DROP CONSTRAINT IF EXISTS cashback_stamps_status_check;
ALTER TABLE cashback_stamps ADD CONSTRAINT cashback_stamps_status_check
    CHECK (status IN ('UNCLAIMED', 'FUNDING', 'CLAIMED', 'FAILED'));`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_checkout_sessions_event ON checkout_sessions(event_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_payments_verify ON payments(method, last_checked_at NULLS FIRST, created_at) WHERE status = 'PENDING';
CREATE INDEX IF NOT EXISTS idx_reservations_reserved ON address_reservations(updated_at) WHERE status = 'RESERVED';
CREATE INDEX IF NOT EXISTS idx_tickets_event ON tickets(event_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tickets_email ON tickets(attendee_email);`
