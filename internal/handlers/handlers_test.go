package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/external"
	"ticketpay/internal/external/externaltest"
	"ticketpay/internal/middleware"
	"ticketpay/internal/models"
	"ticketpay/internal/repository/memory"
	"ticketpay/internal/search"
	"ticketpay/internal/service"
	"ticketpay/internal/vault"
)

const (
	orgEmail      = "org@example.com"
	orgPassword   = "s3cret"
	otherEmail    = "other@example.com"
	webhookSecret = "hook-secret"
)

type fakeSearcher struct {
	docs []search.TicketDocument
}

func (f *fakeSearcher) SearchTickets(_ context.Context, _ models.TicketFilter) ([]search.TicketDocument, int64, error) {
	return f.docs, int64(len(f.docs)), nil
}

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
	chain  *externaltest.Chain
}

func setupRouter(t *testing.T, searcher TicketSearcher) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := vault.GenerateMasterKey()
	require.NoError(t, err)
	v, err := vault.NewFromKey(key)
	require.NoError(t, err)

	store := memory.New()
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(orgPassword)))
	store.AddOrganizer(models.Organizer{ID: "org-1", Email: orgEmail, PasswordHash: hash, IsActive: true})
	store.AddOrganizer(models.Organizer{ID: "org-2", Email: otherEmail, PasswordHash: hash, IsActive: true})
	store.AddEvent(models.Event{ID: "evt-1", OrganizerID: "org-1", Title: "Launch", Status: models.EventStatusPublished})
	store.AddTicketType(models.TicketType{
		ID: "tt-1", EventID: "evt-1", Name: "General", PriceCents: 10000, Currency: "USD",
		Visible: true, QuantityTotal: 10, IsBCHDiscounted: true,
	})

	chain := externaltest.NewChain()
	services := service.NewServices(service.Deps{
		Store: store,
		Vault: v,
		Chain: chain,
		Rates: external.NewRateClientWithSource(externaltest.FixedRates{PerBCH: decimal.NewFromInt(400)}, nil, nil, time.Minute),
		Options: service.Options{
			BCHDiscountPercent: 10,
			CashbackPercent:    1,
			AllocationBackoff:  time.Millisecond,
		},
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	RegisterRoutes(r.Group("/api"), NewHandlers(services, searcher),
		middleware.OrganizerAuth(store.Organizers()), middleware.WebhookSecret(webhookSecret))

	return &testEnv{router: r, store: store, chain: chain}
}

type request struct {
	method string
	path   string
	body   interface{}
	user   string
	header map[string]string
}

func (e *testEnv) do(t *testing.T, r request, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.user != "" {
		req.SetBasicAuth(r.user, orgPassword)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func startBody() gin.H {
	return gin.H{
		"eventId":       "evt-1",
		"ticketTypeId":  "tt-1",
		"quantity":      1,
		"attendeeName":  "Ada",
		"attendeeEmail": "ada@example.com",
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.ErrNotFound, http.StatusNotFound},
		{apperrors.ErrForbidden, http.StatusForbidden},
		{apperrors.ErrSoldOut, http.StatusConflict},
		{apperrors.ErrConflict, http.StatusConflict},
		{apperrors.ErrInvalidSignature, http.StatusUnauthorized},
		{apperrors.ErrUnauthorized, http.StatusUnauthorized},
		{apperrors.ErrBadRequest, http.StatusBadRequest},
		{apperrors.ErrPaymentIncomplete, http.StatusBadRequest},
		{apperrors.ErrSessionExpired, http.StatusGone},
		{apperrors.ErrChainQueryFailed, http.StatusBadGateway},
		{apperrors.ErrBroadcastFailed, http.StatusBadGateway},
		{apperrors.ErrInsufficientFunds, http.StatusConflict},
		{apperrors.New(apperrors.ErrSoldOut, "gone"), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", apperrors.New(apperrors.ErrNotFound, "x")), http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestStartCheckoutValidation(t *testing.T) {
	env := setupRouter(t, nil)

	body := startBody()
	delete(body, "attendeeEmail")
	w := env.do(t, request{method: http.MethodPost, path: "/api/checkout/sessions", body: body}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = startBody()
	body["quantity"] = 2
	w = env.do(t, request{method: http.MethodPost, path: "/api/checkout/sessions", body: body}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = startBody()
	body["ticketTypeId"] = "missing"
	w = env.do(t, request{method: http.MethodPost, path: "/api/checkout/sessions", body: body}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutFlow(t *testing.T) {
	env := setupRouter(t, nil)

	var session models.CheckoutSession
	w := env.do(t, request{method: http.MethodPost, path: "/api/checkout/sessions", body: startBody()}, &session)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.SessionStarted, session.Status)

	var attached models.AttachPaymentResponse
	w = env.do(t, request{
		method: http.MethodPost,
		path:   "/api/payments/sessions",
		body:   gin.H{"checkoutSessionId": session.ID, "paymentMethod": "BCH"},
	}, &attached)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, attached.Quote.Address)
	assert.Equal(t, int64(9000), attached.Quote.AmountCents)
	assert.Equal(t, int64(1000), attached.Quote.DiscountCents)

	var state models.ReconcileResponse
	w = env.do(t, request{method: http.MethodGet, path: "/api/payments/verify/" + session.ID}, &state)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, state.Completed)

	w = env.do(t, request{method: http.MethodPost, path: "/api/payments/sessions/" + session.ID + "/issue-ticket"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	webhook := gin.H{
		"checkoutSessionId": session.ID,
		"txHash":            "f00dfeedf00dfeedf00dfeed",
		"amountSats":        attached.Quote.AmountSats,
		"fromAddress":       "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a",
	}
	w = env.do(t, request{method: http.MethodPost, path: "/api/payments/webhooks/bch", body: webhook}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, request{
		method: http.MethodPost,
		path:   "/api/payments/webhooks/bch",
		body:   webhook,
		header: map[string]string{middleware.WebhookHeader: webhookSecret},
	}, &state)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, state.Completed)
	require.NotNil(t, state.Ticket)
	require.NotNil(t, state.Ticket.NFT)

	var paymentView models.CheckoutSessionView
	w = env.do(t, request{method: http.MethodGet, path: "/api/payments/sessions/" + session.ID}, &paymentView)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SessionCompleted, paymentView.EffectiveStatus)
	assert.NotEmpty(t, paymentView.CashbackWIF)

	var checkoutView models.CheckoutSessionView
	w = env.do(t, request{method: http.MethodGet, path: "/api/checkout/sessions/" + session.ID}, &checkoutView)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, checkoutView.CashbackWIF)

	var issued models.IssueTicketResponse
	w = env.do(t, request{method: http.MethodPost, path: "/api/payments/sessions/" + session.ID + "/issue-ticket"}, &issued)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, issued.Created)
	assert.Equal(t, state.Ticket.ID, issued.Ticket.ID)

	var cashback models.CashbackView
	w = env.do(t, request{method: http.MethodGet, path: "/api/payments/cashback/" + attached.Payment.ID}, &cashback)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(225000), cashback.Stamp.AmountSats)
	assert.NotEmpty(t, cashback.WIF)
}

func TestWebhookUnderpaymentReturnsDetails(t *testing.T) {
	env := setupRouter(t, nil)

	var session models.CheckoutSession
	env.do(t, request{method: http.MethodPost, path: "/api/checkout/sessions", body: startBody()}, &session)
	var attached models.AttachPaymentResponse
	env.do(t, request{
		method: http.MethodPost,
		path:   "/api/payments/sessions",
		body:   gin.H{"checkoutSessionId": session.ID, "paymentMethod": "BCH"},
	}, &attached)

	w := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/payments/webhooks/bch",
		body: gin.H{
			"checkoutSessionId": session.ID,
			"txHash":            "f00dfeedf00dfeedf00dfeed",
			"amountSats":        attached.Quote.AmountSats - 1,
			"fromAddress":       "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a",
		},
		header: map[string]string{middleware.WebhookHeader: webhookSecret},
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error   string                 `json:"error"`
		Details map[string]interface{} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(attached.Quote.AmountSats), body.Details["expectedSats"])
}

func TestAttachPaymentValidation(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/payments/sessions",
		body:   gin.H{"checkoutSessionId": "x", "paymentMethod": "PAYPAL"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, request{
		method: http.MethodPost,
		path:   "/api/payments/sessions",
		body:   gin.H{"checkoutSessionId": "missing", "paymentMethod": "BCH"},
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrganizerRoutesRequireAuth(t *testing.T) {
	env := setupRouter(t, nil)

	for _, r := range []request{
		{method: http.MethodGet, path: "/api/tickets"},
		{method: http.MethodPost, path: "/api/tickets"},
		{method: http.MethodGet, path: "/api/organizers/wallet"},
		{method: http.MethodGet, path: "/api/checkout/sessions?eventId=evt-1"},
		{method: http.MethodPost, path: "/api/payments/cashback/p/fund"},
	} {
		w := env.do(t, r, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", r.method, r.path)
	}
}

func TestOrganizerWallet(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(t, request{method: http.MethodGet, path: "/api/organizers/wallet", user: orgEmail}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var created models.WalletResponse
	w = env.do(t, request{method: http.MethodPost, path: "/api/organizers/wallet", user: orgEmail}, &created)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, created.Created)
	assert.Contains(t, created.Xpub, "xpub")

	var again models.WalletResponse
	w = env.do(t, request{method: http.MethodPost, path: "/api/organizers/wallet", user: orgEmail}, &again)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, again.Created)
	assert.Equal(t, created.Xpub, again.Xpub)

	var fetched models.WalletResponse
	w = env.do(t, request{method: http.MethodGet, path: "/api/organizers/wallet", user: orgEmail}, &fetched)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.Xpub, fetched.Xpub)
}

func TestIssueTicketManually(t *testing.T) {
	env := setupRouter(t, nil)
	body := gin.H{
		"eventId":          "evt-1",
		"ticketTypeId":     "tt-1",
		"attendeeName":     "Grace",
		"attendeeEmail":    "grace@example.com",
		"mintNft":          true,
		"nftWalletAddress": "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a",
	}

	var issued models.IssueTicketResponse
	w := env.do(t, request{method: http.MethodPost, path: "/api/tickets", body: body, user: orgEmail}, &issued)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, issued.Created)
	require.NotNil(t, issued.Ticket.NFT)
	assert.NotEmpty(t, issued.Ticket.NFT.TokenID)

	w = env.do(t, request{method: http.MethodPost, path: "/api/tickets", body: body, user: otherEmail}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	delete(body, "nftWalletAddress")
	w = env.do(t, request{method: http.MethodPost, path: "/api/tickets", body: body, user: orgEmail}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var list models.ListTicketsResponse
	w = env.do(t, request{method: http.MethodGet, path: "/api/tickets?eventId=evt-1", user: orgEmail}, &list)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, list.Total)
}

func TestListTicketsUsesSearchIndexForQueries(t *testing.T) {
	searcher := &fakeSearcher{docs: []search.TicketDocument{{ID: "t-1", ReferenceCode: "TKT-ABCDEFGH"}}}
	env := setupRouter(t, searcher)

	var resp struct {
		Tickets []search.TicketDocument `json:"tickets"`
		Total   int64                   `json:"total"`
	}
	w := env.do(t, request{method: http.MethodGet, path: "/api/tickets?q=ABCD", user: orgEmail}, &resp)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), resp.Total)
	assert.Equal(t, "TKT-ABCDEFGH", resp.Tickets[0].ReferenceCode)

	w = env.do(t, request{method: http.MethodGet, path: "/api/tickets?limit=500", user: orgEmail}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCheckoutSessionsForOwner(t *testing.T) {
	env := setupRouter(t, nil)
	env.do(t, request{method: http.MethodPost, path: "/api/checkout/sessions", body: startBody()}, nil)

	var resp models.ListCheckoutSessionsResponse
	w := env.do(t, request{method: http.MethodGet, path: "/api/checkout/sessions?eventId=evt-1", user: orgEmail}, &resp)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Sessions, 1)

	w = env.do(t, request{method: http.MethodGet, path: "/api/checkout/sessions?eventId=evt-1", user: otherEmail}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, request{method: http.MethodGet, path: "/api/checkout/sessions", user: orgEmail}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFundCashbackUnknownPayment(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(t, request{method: http.MethodPost, path: "/api/payments/cashback/missing/fund", user: orgEmail}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
