package models

// Request and response DTOs for the HTTP surface. Validation lives in binding tags.

type StartCheckoutRequest struct {
	EventID       string  `json:"eventId" binding:"required"`
	TicketTypeID  string  `json:"ticketTypeId" binding:"required"`
	Quantity      int     `json:"quantity" binding:"required,min=1,max=1"`
	AttendeeName  string  `json:"attendeeName" binding:"required,min=1,max=200"`
	AttendeeEmail string  `json:"attendeeEmail" binding:"required,email"`
	AttendeePhone *string `json:"attendeePhone" binding:"omitempty,max=40"`
}

type AttachPaymentRequest struct {
	CheckoutSessionID string `json:"checkoutSessionId" binding:"required"`
	PaymentMethod     string `json:"paymentMethod" binding:"required,oneof=BCH CARD"`
}

// WebhookPayload is the claim an external watcher posts once funds are seen on chain.
type WebhookPayload struct {
	CheckoutSessionID string `json:"checkoutSessionId" binding:"required"`
	TxHash            string `json:"txHash" binding:"required,min=10"`
	AmountSats        int64  `json:"amountSats" binding:"required,gt=0"`
	FromAddress       string `json:"fromAddress" binding:"required,min=10"`
}

// IssueTicketRequest is the organizer's manual issuance request.
type IssueTicketRequest struct {
	EventID            string  `json:"eventId" binding:"required"`
	TicketTypeID       string  `json:"ticketTypeId" binding:"required"`
	AttendeeName       string  `json:"attendeeName" binding:"required,min=1,max=200"`
	AttendeeEmail      string  `json:"attendeeEmail" binding:"required,email"`
	AttendeePhone      *string `json:"attendeePhone" binding:"omitempty,max=40"`
	PaymentID          *string `json:"paymentId"`
	ReferenceCode      *string `json:"referenceCode" binding:"omitempty,min=4,max=32"`
	MintNFT            bool    `json:"mintNft"`
	NFTWalletAddress   *string `json:"nftWalletAddress" binding:"omitempty,min=10"`
	NFTTokenID         *string `json:"nftTokenId"`
	CashbackAmountSats *int64  `json:"cashbackAmountSats" binding:"omitempty,gt=0"`
}

// PaymentQuote is what the purchaser needs to pay an address-based payment.
type PaymentQuote struct {
	Address       *string `json:"address,omitempty"`
	AmountSats    int64   `json:"amountSats"`
	AmountCents   int64   `json:"amountCents"`
	DiscountCents int64   `json:"discountCents"`
	Currency      string  `json:"currency"`
	Rate          string  `json:"rate,omitempty"`
}

type AttachPaymentResponse struct {
	Session *CheckoutSession `json:"session"`
	Payment *Payment         `json:"payment"`
	Quote   *PaymentQuote    `json:"quote"`
}

// CheckoutSessionView is the read model behind the payment session page.
type CheckoutSessionView struct {
	Session         *CheckoutSession `json:"session"`
	EffectiveStatus string           `json:"effectiveStatus"`
	TicketType      *TicketType      `json:"ticketType,omitempty"`
	Payment         *Payment         `json:"payment,omitempty"`
	Ticket          *Ticket          `json:"ticket,omitempty"`
	Cashback        *CashbackStamp   `json:"cashback,omitempty"`
	CashbackWIF     string           `json:"cashbackWif,omitempty"`
}

type ReconcileResponse struct {
	Status       string           `json:"status"`
	Completed    bool             `json:"completed"`
	ExpectedSats int64            `json:"expectedSats"`
	ReceivedSats int64            `json:"receivedSats"`
	Session      *CheckoutSession `json:"session"`
	Payment      *Payment         `json:"payment"`
	Ticket       *Ticket          `json:"ticket,omitempty"`
	Cashback     *CashbackStamp   `json:"cashback,omitempty"`
}

// CashbackView exposes the bearer secret to whoever holds the payment id.
type CashbackView struct {
	Stamp *CashbackStamp `json:"cashback"`
	WIF   string         `json:"wif,omitempty"`
}

type IssueTicketResponse struct {
	Ticket   *Ticket        `json:"ticket"`
	Cashback *CashbackStamp `json:"cashback,omitempty"`
	Created  bool           `json:"created"`
}

type ListCheckoutSessionsResponse struct {
	Sessions []CheckoutSession `json:"sessions"`
}

type FundCashbackResponse struct {
	StampID     string `json:"stampId"`
	Status      string `json:"status"`
	FundingTxID string `json:"fundingTxId"`
}

type WalletResponse struct {
	OrganizerID string `json:"organizerId"`
	Xpub        string `json:"xpub"`
	NextIndex   uint32 `json:"nextIndex"`
	Created     bool   `json:"created"`
}

type ListTicketsResponse struct {
	Tickets []Ticket `json:"tickets"`
	Total   int      `json:"total"`
}

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	OrganizerID string
	EventID     string
	Email       string
	Query       string
	Limit       int
	Offset      int
}
