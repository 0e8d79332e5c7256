package models

import (
	"time"
)

const (
	EventStatusDraft     = "DRAFT"
	EventStatusPublished = "PUBLISHED"
)

const (
	SessionStarted         = "STARTED"
	SessionAwaitingPayment = "AWAITING_PAYMENT"
	SessionCompleted       = "COMPLETED"
	SessionExpired         = "EXPIRED"
)

const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
	PaymentRefunded  = "REFUNDED"
)

const (
	MethodBCH  = "BCH"
	MethodCard = "CARD"
)

const (
	TicketConfirmed = "CONFIRMED"
	TicketCancelled = "CANCELLED"
)

const (
	CashbackUnclaimed = "UNCLAIMED"
	CashbackFunding   = "FUNDING"
	CashbackClaimed   = "CLAIMED"
	CashbackFailed    = "FAILED"
)

const (
	ReservationReserved = "RESERVED"
	ReservationBound    = "BOUND"
	ReservationReleased = "RELEASED"
)

// Organizer is the account that owns events and receives payments.
type Organizer struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         string    `json:"name" db:"name"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// OrganizerWallet holds the organizer's HD account. Only the xpub is stored in the clear.
type OrganizerWallet struct {
	OrganizerID   string    `json:"organizer_id" db:"organizer_id"`
	Xpub          string    `json:"xpub" db:"xpub"`
	EncryptedXprv string    `json:"-" db:"encrypted_xprv"`
	EncryptedSeed string    `json:"-" db:"encrypted_seed"`
	NextIndex     uint32    `json:"next_index" db:"next_index"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// OrganizerWalletSecrets is the output of wallet creation before persistence.
type OrganizerWalletSecrets struct {
	Xpub          string
	EncryptedXprv string
	EncryptedSeed string
}

// AddressReservation tracks a derivation index between allocation and binding to a payment.
type AddressReservation struct {
	OrganizerID     string    `json:"organizer_id" db:"organizer_id"`
	DerivationIndex uint32    `json:"derivation_index" db:"derivation_index"`
	Status          string    `json:"status" db:"status"`
	PaymentID       *string   `json:"payment_id" db:"payment_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type Event struct {
	ID          string    `json:"id" db:"id"`
	OrganizerID string    `json:"organizer_id" db:"organizer_id"`
	Title       string    `json:"title" db:"title"`
	Status      string    `json:"status" db:"status"`
	StartsAt    time.Time `json:"starts_at" db:"starts_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TicketType is loaded joined with its event so ownership and publish state travel with it.
type TicketType struct {
	ID                  string     `json:"id" db:"id"`
	EventID             string     `json:"event_id" db:"event_id"`
	OrganizerID         string     `json:"organizer_id" db:"organizer_id"`
	EventStatus         string     `json:"event_status" db:"event_status"`
	Name                string     `json:"name" db:"name"`
	PriceCents          int64      `json:"price_cents" db:"price_cents"`
	Currency            string     `json:"currency" db:"currency"`
	Visible             bool       `json:"visible" db:"visible"`
	QuantityTotal       int        `json:"quantity_total" db:"quantity_total"`
	QuantitySold        int        `json:"quantity_sold" db:"quantity_sold"`
	IsEarlyBird         bool       `json:"is_early_bird" db:"is_early_bird"`
	EarlyBirdPriceCents *int64     `json:"early_bird_price_cents" db:"early_bird_price_cents"`
	EarlyBirdEndsAt     *time.Time `json:"early_bird_ends_at" db:"early_bird_ends_at"`
	IsBCHDiscounted     bool       `json:"is_bch_discounted" db:"is_bch_discounted"`
}

func (t *TicketType) Remaining() int {
	return t.QuantityTotal - t.QuantitySold
}

type Attendee struct {
	Name  string  `json:"name" db:"attendee_name"`
	Email string  `json:"email" db:"attendee_email"`
	Phone *string `json:"phone,omitempty" db:"attendee_phone"`
}

type CheckoutSession struct {
	ID             string    `json:"id" db:"id"`
	EventID        string    `json:"event_id" db:"event_id"`
	TicketTypeID   string    `json:"ticket_type_id" db:"ticket_type_id"`
	Quantity       int       `json:"quantity" db:"quantity"`
	Attendee       Attendee  `json:"attendee"`
	Currency       string    `json:"currency" db:"currency"`
	UnitPriceCents int64     `json:"unit_price_cents" db:"unit_price_cents"`
	DiscountCents  int64     `json:"discount_cents" db:"discount_cents"`
	TotalCents     int64     `json:"total_cents" db:"total_cents"`
	Status         string    `json:"status" db:"status"`
	PaymentMethod  *string   `json:"payment_method" db:"payment_method"`
	PaymentID      *string   `json:"payment_id" db:"payment_id"`
	BCHAddress     *string   `json:"bch_address" db:"bch_address"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the hold window has lapsed. Expiry is advisory and never
// applies to a completed session.
func (s *CheckoutSession) IsExpired(now time.Time) bool {
	return s.Status != SessionCompleted && now.After(s.ExpiresAt)
}

// EffectiveStatus is the status clients see: the stored one, or EXPIRED when the
// hold window has lapsed.
func (s *CheckoutSession) EffectiveStatus(now time.Time) string {
	if s.IsExpired(now) {
		return SessionExpired
	}
	return s.Status
}

var sessionOrder = map[string]int{
	SessionStarted:         0,
	SessionAwaitingPayment: 1,
	SessionCompleted:       2,
}

// CanTransition enforces STARTED -> AWAITING_PAYMENT -> COMPLETED. Staying in place is allowed.
func (s *CheckoutSession) CanTransition(to string) bool {
	from, ok := sessionOrder[s.Status]
	if !ok {
		return false
	}
	target, ok := sessionOrder[to]
	if !ok {
		return false
	}
	if s.Status == SessionCompleted {
		return to == SessionCompleted
	}
	return target >= from
}

type Payment struct {
	ID                string     `json:"id" db:"id"`
	CheckoutSessionID string     `json:"checkout_session_id" db:"checkout_session_id"`
	EventID           string     `json:"event_id" db:"event_id"`
	OrganizerID       string     `json:"organizer_id" db:"organizer_id"`
	Method            string     `json:"method" db:"method"`
	Status            string     `json:"status" db:"status"`
	AmountCents       int64      `json:"amount_cents" db:"amount_cents"`
	Currency          string     `json:"currency" db:"currency"`
	ExpectedSats      int64      `json:"expected_sats" db:"expected_sats"`
	ReceivedSats      int64      `json:"received_sats" db:"received_sats"`
	DerivedAddress    *string    `json:"derived_address" db:"derived_address"`
	DerivationIndex   *uint32    `json:"derivation_index" db:"derivation_index"`
	TxHash            *string    `json:"tx_hash" db:"tx_hash"`
	CompletedAt       *time.Time `json:"completed_at" db:"completed_at"`
	LastCheckedAt     *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

func (p *Payment) IsTerminal() bool {
	return p.Status != PaymentPending
}

type Ticket struct {
	ID            string     `json:"id" db:"id"`
	TicketTypeID  string     `json:"ticket_type_id" db:"ticket_type_id"`
	EventID       string     `json:"event_id" db:"event_id"`
	OrganizerID   string     `json:"organizer_id" db:"organizer_id"`
	Attendee      Attendee   `json:"attendee"`
	Status        string     `json:"status" db:"status"`
	ReferenceCode string     `json:"reference_code" db:"reference_code"`
	PaymentID     *string    `json:"payment_id" db:"payment_id"`
	NFT           *NFTTicket `json:"nft,omitempty"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

type NFTTicket struct {
	TicketID      string    `json:"ticket_id" db:"ticket_id"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	TokenID       string    `json:"token_id" db:"token_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// CashbackStamp is a one-time bearer wallet funded with the purchaser's reward.
type CashbackStamp struct {
	ID           string    `json:"id" db:"id"`
	PaymentID    string    `json:"payment_id" db:"payment_id"`
	OrganizerID  string    `json:"organizer_id" db:"organizer_id"`
	AmountSats   int64     `json:"amount_sats" db:"amount_sats"`
	Address      string    `json:"address" db:"address"`
	EncryptedWIF string    `json:"-" db:"encrypted_wif"`
	Status       string    `json:"status" db:"status"`
	FundingTxID  *string   `json:"funding_tx_id" db:"funding_tx_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
