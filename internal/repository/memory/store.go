// Package memory is an in-process Store used by tests and local runs. Transactions are
// serialized and roll back by restoring a snapshot taken when they began.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
)

type state struct {
	organizers   map[string]models.Organizer
	wallets      map[string]models.OrganizerWallet
	reservations map[string]map[uint32]models.AddressReservation
	events       map[string]models.Event
	ticketTypes  map[string]models.TicketType
	sessions     map[string]models.CheckoutSession
	payments     map[string]models.Payment
	tickets      map[string]models.Ticket
	nfts         map[string]models.NFTTicket
	cashback     map[string]models.CashbackStamp
}

func newState() *state {
	return &state{
		organizers:   make(map[string]models.Organizer),
		wallets:      make(map[string]models.OrganizerWallet),
		reservations: make(map[string]map[uint32]models.AddressReservation),
		events:       make(map[string]models.Event),
		ticketTypes:  make(map[string]models.TicketType),
		sessions:     make(map[string]models.CheckoutSession),
		payments:     make(map[string]models.Payment),
		tickets:      make(map[string]models.Ticket),
		nfts:         make(map[string]models.NFTTicket),
		cashback:     make(map[string]models.CashbackStamp),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	c := &state{
		organizers:   copyMap(s.organizers),
		wallets:      copyMap(s.wallets),
		reservations: make(map[string]map[uint32]models.AddressReservation, len(s.reservations)),
		events:       copyMap(s.events),
		ticketTypes:  copyMap(s.ticketTypes),
		sessions:     copyMap(s.sessions),
		payments:     copyMap(s.payments),
		tickets:      copyMap(s.tickets),
		nfts:         copyMap(s.nfts),
		cashback:     copyMap(s.cashback),
	}
	for org, res := range s.reservations {
		c.reservations[org] = copyMap(res)
	}
	return c
}

// Faults lets tests inject failures into specific operations.
type Faults struct {
	PaymentCreate   error
	TicketCreate    error
	ReserveConflict int
}

type shared struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	data   *state
	faults Faults
	now    func() time.Time
}

type Store struct {
	sh   *shared
	inTx bool
}

func New() *Store {
	return &Store{sh: &shared{data: newState(), now: time.Now}}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) SetFaults(f Faults) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.faults = f
}

func (s *Store) SetClock(now func() time.Time) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.now = now
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.sh.txMu.Lock()
	defer s.sh.txMu.Unlock()

	s.sh.mu.Lock()
	snapshot := s.sh.data.clone()
	s.sh.mu.Unlock()

	if err := fn(&Store{sh: s.sh, inTx: true}); err != nil {
		s.sh.mu.Lock()
		s.sh.data = snapshot
		s.sh.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) conn() conn { return conn{sh: s.sh, inTx: s.inTx} }

// conn scopes one store operation. Outside a transaction it waits for any running
// transaction so a rollback cannot discard writes made concurrently.
type conn struct {
	sh   *shared
	inTx bool
}

func (c conn) lock() func() {
	if !c.inTx {
		c.sh.txMu.Lock()
	}
	c.sh.mu.Lock()
	return func() {
		c.sh.mu.Unlock()
		if !c.inTx {
			c.sh.txMu.Unlock()
		}
	}
}

func (s *Store) Organizers() repository.OrganizerStore   { return organizerStore{s.conn()} }
func (s *Store) Events() repository.EventStore           { return eventStore{s.conn()} }
func (s *Store) Wallets() repository.WalletStore         { return walletStore{s.conn()} }
func (s *Store) TicketTypes() repository.TicketTypeStore { return ticketTypeStore{s.conn()} }
func (s *Store) Sessions() repository.SessionStore       { return sessionStore{s.conn()} }
func (s *Store) Payments() repository.PaymentStore       { return paymentStore{s.conn()} }
func (s *Store) Tickets() repository.TicketStore         { return ticketStore{s.conn()} }
func (s *Store) Cashback() repository.CashbackStore      { return cashbackStore{s.conn()} }

// Seeding helpers for the catalogue, which has no write path in the service.

func (s *Store) AddOrganizer(o models.Organizer) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.data.organizers[o.ID] = o
}

func (s *Store) AddEvent(e models.Event) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.data.events[e.ID] = e
}

func (s *Store) AddTicketType(tt models.TicketType) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.data.ticketTypes[tt.ID] = tt
}

// Reservations returns a copy of the organizer's reservation rows ordered by index.
func (s *Store) Reservations(organizerID string) []models.AddressReservation {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	var out []models.AddressReservation
	for _, r := range s.sh.data.reservations[organizerID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DerivationIndex < out[j].DerivationIndex })
	return out
}

// SetReservationAge backdates a reservation so sweeper tests can find it.
func (s *Store) SetReservationAge(organizerID string, index uint32, updatedAt time.Time) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	if r, ok := s.sh.data.reservations[organizerID][index]; ok {
		r.UpdatedAt = updatedAt
		s.sh.data.reservations[organizerID][index] = r
	}
}

func (s *Store) TicketCount() int {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	return len(s.sh.data.tickets)
}

type organizerStore struct{ conn }

func (o organizerStore) GetByID(_ context.Context, id string) (*models.Organizer, error) {
	defer o.lock()()
	org, ok := o.sh.data.organizers[id]
	if !ok {
		return nil, nil
	}
	return &org, nil
}

func (o organizerStore) GetByEmail(_ context.Context, email string) (*models.Organizer, error) {
	defer o.lock()()
	for _, org := range o.sh.data.organizers {
		if strings.EqualFold(org.Email, email) {
			found := org
			return &found, nil
		}
	}
	return nil, nil
}

func (o organizerStore) Create(_ context.Context, org *models.Organizer) error {
	defer o.lock()()
	if _, ok := o.sh.data.organizers[org.ID]; ok {
		return apperrors.New(apperrors.ErrConflict, "organizer %s exists", org.ID)
	}
	org.CreatedAt = o.sh.now()
	o.sh.data.organizers[org.ID] = *org
	return nil
}

type eventStore struct{ conn }

func (e eventStore) GetByID(_ context.Context, id string) (*models.Event, error) {
	defer e.lock()()
	ev, ok := e.sh.data.events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (e eventStore) ListByOrganizer(_ context.Context, organizerID string) ([]models.Event, error) {
	defer e.lock()()
	var out []models.Event
	for _, ev := range e.sh.data.events {
		if ev.OrganizerID == organizerID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

type walletStore struct{ conn }

func (w walletStore) Get(_ context.Context, organizerID string) (*models.OrganizerWallet, error) {
	defer w.lock()()
	wallet, ok := w.sh.data.wallets[organizerID]
	if !ok {
		return nil, nil
	}
	return &wallet, nil
}

func (w walletStore) CreateIfAbsent(_ context.Context, wallet *models.OrganizerWallet) (bool, error) {
	defer w.lock()()
	if _, ok := w.sh.data.wallets[wallet.OrganizerID]; ok {
		return false, nil
	}
	now := w.sh.now()
	wallet.NextIndex = 0
	wallet.CreatedAt, wallet.UpdatedAt = now, now
	w.sh.data.wallets[wallet.OrganizerID] = *wallet
	return true, nil
}

func (w walletStore) ReserveIndex(_ context.Context, organizerID string) (uint32, error) {
	defer w.lock()()

	wallet, ok := w.sh.data.wallets[organizerID]
	if !ok {
		return 0, apperrors.New(apperrors.ErrNotFound, "organizer %s has no wallet", organizerID)
	}

	index := wallet.NextIndex
	wallet.NextIndex++
	wallet.UpdatedAt = w.sh.now()
	w.sh.data.wallets[organizerID] = wallet

	if w.sh.faults.ReserveConflict > 0 {
		w.sh.faults.ReserveConflict--
		return 0, apperrors.New(apperrors.ErrAllocationConflict, "injected conflict at index %d", index)
	}

	res := w.sh.data.reservations[organizerID]
	if res == nil {
		res = make(map[uint32]models.AddressReservation)
		w.sh.data.reservations[organizerID] = res
	}
	if existing, ok := res[index]; ok && existing.Status != models.ReservationReleased {
		return 0, apperrors.New(apperrors.ErrAllocationConflict, "index %d is %s", index, existing.Status)
	}

	now := w.sh.now()
	res[index] = models.AddressReservation{
		OrganizerID:     organizerID,
		DerivationIndex: index,
		Status:          models.ReservationReserved,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return index, nil
}

func (w walletStore) BindReservation(_ context.Context, organizerID string, index uint32, paymentID string) error {
	defer w.lock()()
	r, ok := w.sh.data.reservations[organizerID][index]
	if !ok || r.Status != models.ReservationReserved {
		return apperrors.New(apperrors.ErrAllocationConflict, "reservation %s/%d is no longer held", organizerID, index)
	}
	pid := paymentID
	r.Status = models.ReservationBound
	r.PaymentID = &pid
	r.UpdatedAt = w.sh.now()
	w.sh.data.reservations[organizerID][index] = r
	return nil
}

func (w walletStore) ReleaseReservation(_ context.Context, organizerID string, index uint32) (bool, bool, error) {
	defer w.lock()()
	r, ok := w.sh.data.reservations[organizerID][index]
	if !ok || r.Status != models.ReservationReserved {
		return false, false, nil
	}
	r.Status = models.ReservationReleased
	r.UpdatedAt = w.sh.now()
	w.sh.data.reservations[organizerID][index] = r

	wallet := w.sh.data.wallets[organizerID]
	if wallet.NextIndex != index+1 {
		return true, false, nil
	}
	wallet.NextIndex--
	w.sh.data.wallets[organizerID] = wallet
	return true, true, nil
}

func (w walletStore) StaleReservations(_ context.Context, olderThan time.Time, limit int) ([]models.AddressReservation, error) {
	defer w.lock()()
	var out []models.AddressReservation
	for _, res := range w.sh.data.reservations {
		for _, r := range res {
			if r.Status == models.ReservationReserved && r.UpdatedAt.Before(olderThan) {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type ticketTypeStore struct{ conn }

func (t ticketTypeStore) GetByID(_ context.Context, id string) (*models.TicketType, error) {
	defer t.lock()()
	tt, ok := t.sh.data.ticketTypes[id]
	if !ok {
		return nil, nil
	}
	if ev, ok := t.sh.data.events[tt.EventID]; ok {
		tt.OrganizerID = ev.OrganizerID
		tt.EventStatus = ev.Status
	}
	return &tt, nil
}

func (t ticketTypeStore) IncrementSold(_ context.Context, id string, n int) error {
	defer t.lock()()
	tt, ok := t.sh.data.ticketTypes[id]
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, "ticket type %s", id)
	}
	if tt.QuantitySold+n > tt.QuantityTotal {
		return apperrors.New(apperrors.ErrSoldOut, "ticket type %s cannot take %d more", id, n)
	}
	tt.QuantitySold += n
	t.sh.data.ticketTypes[id] = tt
	return nil
}

type sessionStore struct{ conn }

func (s sessionStore) Create(_ context.Context, cs *models.CheckoutSession) error {
	defer s.lock()()
	now := s.sh.now()
	cs.CreatedAt, cs.UpdatedAt = now, now
	s.sh.data.sessions[cs.ID] = *cs
	return nil
}

func (s sessionStore) GetByID(_ context.Context, id string) (*models.CheckoutSession, error) {
	defer s.lock()()
	cs, ok := s.sh.data.sessions[id]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (s sessionStore) Update(_ context.Context, cs *models.CheckoutSession) error {
	defer s.lock()()
	stored, ok := s.sh.data.sessions[cs.ID]
	if !ok || stored.Status == models.SessionCompleted {
		return apperrors.New(apperrors.ErrConflict, "checkout session %s is missing or already completed", cs.ID)
	}
	cs.UpdatedAt = s.sh.now()
	s.sh.data.sessions[cs.ID] = *cs
	return nil
}

func (s sessionStore) ListByEvent(_ context.Context, eventID string, limit int) ([]models.CheckoutSession, error) {
	defer s.lock()()
	var out []models.CheckoutSession
	for _, cs := range s.sh.data.sessions {
		if cs.EventID == eventID {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type paymentStore struct{ conn }

func (p paymentStore) Create(_ context.Context, pay *models.Payment) error {
	defer p.lock()()
	if p.sh.faults.PaymentCreate != nil {
		return p.sh.faults.PaymentCreate
	}
	for _, existing := range p.sh.data.payments {
		if existing.CheckoutSessionID == pay.CheckoutSessionID {
			return apperrors.New(apperrors.ErrConflict, "session %s already has a payment", pay.CheckoutSessionID)
		}
		if pay.DerivationIndex != nil && existing.DerivationIndex != nil &&
			existing.OrganizerID == pay.OrganizerID && *existing.DerivationIndex == *pay.DerivationIndex {
			return apperrors.New(apperrors.ErrConflict, "derivation index %d already used", *pay.DerivationIndex)
		}
	}
	now := p.sh.now()
	pay.CreatedAt, pay.UpdatedAt = now, now
	p.sh.data.payments[pay.ID] = *pay
	return nil
}

func (p paymentStore) GetByID(_ context.Context, id string) (*models.Payment, error) {
	defer p.lock()()
	pay, ok := p.sh.data.payments[id]
	if !ok {
		return nil, nil
	}
	return &pay, nil
}

func (p paymentStore) GetBySessionID(_ context.Context, sessionID string) (*models.Payment, error) {
	defer p.lock()()
	for _, pay := range p.sh.data.payments {
		if pay.CheckoutSessionID == sessionID {
			found := pay
			return &found, nil
		}
	}
	return nil, nil
}

func (p paymentStore) MarkCompleted(_ context.Context, id, txHash string, receivedSats int64, at time.Time) (bool, error) {
	defer p.lock()()
	pay, ok := p.sh.data.payments[id]
	if !ok || pay.Status != models.PaymentPending {
		return false, nil
	}
	pay.Status = models.PaymentCompleted
	if txHash != "" {
		h := txHash
		pay.TxHash = &h
	}
	pay.ReceivedSats = receivedSats
	completedAt := at
	pay.CompletedAt = &completedAt
	pay.UpdatedAt = p.sh.now()
	p.sh.data.payments[id] = pay
	return true, nil
}

func (p paymentStore) NextForVerification(_ context.Context, method string, limit int, at time.Time) ([]models.Payment, error) {
	defer p.lock()()
	var out []models.Payment
	for _, pay := range p.sh.data.payments {
		if pay.Status == models.PaymentPending && pay.Method == method {
			out = append(out, pay)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastCheckedAt, out[j].LastCheckedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.Before(*b)
		case !out[i].CreatedAt.Equal(out[j].CreatedAt):
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		checked := at
		out[i].LastCheckedAt = &checked
		p.sh.data.payments[out[i].ID] = out[i]
	}
	return out, nil
}

type ticketStore struct{ conn }

func (t ticketStore) Create(_ context.Context, tk *models.Ticket) error {
	defer t.lock()()
	if t.sh.faults.TicketCreate != nil {
		return t.sh.faults.TicketCreate
	}
	for _, existing := range t.sh.data.tickets {
		if existing.ReferenceCode == tk.ReferenceCode ||
			(tk.PaymentID != nil && existing.PaymentID != nil && *existing.PaymentID == *tk.PaymentID) {
			return apperrors.New(apperrors.ErrConflict, "ticket already exists for payment or reference code")
		}
	}
	tk.CreatedAt = t.sh.now()
	stored := *tk
	stored.NFT = nil
	t.sh.data.tickets[tk.ID] = stored
	return nil
}

func (t ticketStore) CreateNFT(_ context.Context, n *models.NFTTicket) error {
	defer t.lock()()
	if _, ok := t.sh.data.tickets[n.TicketID]; !ok {
		return apperrors.New(apperrors.ErrNotFound, "ticket %s", n.TicketID)
	}
	n.CreatedAt = t.sh.now()
	t.sh.data.nfts[n.TicketID] = *n
	return nil
}

func (t ticketStore) withNFT(tk models.Ticket) *models.Ticket {
	if n, ok := t.sh.data.nfts[tk.ID]; ok {
		tk.NFT = &n
	}
	return &tk
}

func (t ticketStore) GetByID(_ context.Context, id string) (*models.Ticket, error) {
	defer t.lock()()
	tk, ok := t.sh.data.tickets[id]
	if !ok {
		return nil, nil
	}
	return t.withNFT(tk), nil
}

func (t ticketStore) GetByPaymentID(_ context.Context, paymentID string) (*models.Ticket, error) {
	defer t.lock()()
	for _, tk := range t.sh.data.tickets {
		if tk.PaymentID != nil && *tk.PaymentID == paymentID {
			return t.withNFT(tk), nil
		}
	}
	return nil, nil
}

func (t ticketStore) List(_ context.Context, f models.TicketFilter) ([]models.Ticket, int, error) {
	defer t.lock()()
	var out []models.Ticket
	q := strings.ToLower(f.Query)
	for _, tk := range t.sh.data.tickets {
		if f.OrganizerID != "" && tk.OrganizerID != f.OrganizerID {
			continue
		}
		if f.EventID != "" && tk.EventID != f.EventID {
			continue
		}
		if f.Email != "" && !strings.EqualFold(tk.Attendee.Email, f.Email) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(tk.ReferenceCode), q) &&
			!strings.Contains(strings.ToLower(tk.Attendee.Name), q) {
			continue
		}
		out = append(out, *t.withNFT(tk))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, total, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

type cashbackStore struct{ conn }

func (c cashbackStore) CreateIfAbsent(_ context.Context, s *models.CashbackStamp) (*models.CashbackStamp, bool, error) {
	defer c.lock()()
	for _, existing := range c.sh.data.cashback {
		if existing.PaymentID == s.PaymentID {
			found := existing
			return &found, false, nil
		}
	}
	now := c.sh.now()
	s.CreatedAt, s.UpdatedAt = now, now
	c.sh.data.cashback[s.ID] = *s
	stored := *s
	return &stored, true, nil
}

func (c cashbackStore) GetByID(_ context.Context, id string) (*models.CashbackStamp, error) {
	defer c.lock()()
	s, ok := c.sh.data.cashback[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c cashbackStore) GetByPaymentID(_ context.Context, paymentID string) (*models.CashbackStamp, error) {
	defer c.lock()()
	for _, s := range c.sh.data.cashback {
		if s.PaymentID == paymentID {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

func (c cashbackStore) UpdateStatus(_ context.Context, id, from, to string, fundingTxID *string) (bool, error) {
	defer c.lock()()
	s, ok := c.sh.data.cashback[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	if fundingTxID != nil {
		txID := *fundingTxID
		s.FundingTxID = &txID
	}
	s.UpdatedAt = c.sh.now()
	c.sh.data.cashback[id] = s
	return true, nil
}
