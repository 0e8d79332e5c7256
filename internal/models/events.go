package models

import "time"

// NATS subjects
const (
	EventPaymentCreated   = "payment.created"
	EventPaymentCompleted = "payment.completed"
	EventTicketIssued     = "ticket.issued"
	EventCashbackRecorded = "cashback.recorded"
	EventCashbackFunded   = "cashback.funded"
	EventCashbackFailed   = "cashback.failed"
	EventAddressReleased  = "address.released"
)

type PaymentCreatedEvent struct {
	PaymentID         string    `json:"payment_id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	OrganizerID       string    `json:"organizer_id"`
	Method            string    `json:"method"`
	AmountCents       int64     `json:"amount_cents"`
	ExpectedSats      int64     `json:"expected_sats"`
	Address           *string   `json:"address,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

type PaymentCompletedEvent struct {
	PaymentID         string    `json:"payment_id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	OrganizerID       string    `json:"organizer_id"`
	TxHash            string    `json:"tx_hash"`
	ReceivedSats      int64     `json:"received_sats"`
	Source            string    `json:"source"`
	Timestamp         time.Time `json:"timestamp"`
}

type TicketIssuedEvent struct {
	TicketID      string    `json:"ticket_id"`
	EventID       string    `json:"event_id"`
	PaymentID     *string   `json:"payment_id,omitempty"`
	ReferenceCode string    `json:"reference_code"`
	Timestamp     time.Time `json:"timestamp"`
}

type CashbackEvent struct {
	StampID     string    `json:"stamp_id"`
	PaymentID   string    `json:"payment_id"`
	OrganizerID string    `json:"organizer_id"`
	AmountSats  int64     `json:"amount_sats"`
	FundingTxID *string   `json:"funding_tx_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type AddressReleasedEvent struct {
	OrganizerID     string    `json:"organizer_id"`
	DerivationIndex uint32    `json:"derivation_index"`
	RolledBack      bool      `json:"rolled_back"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}
