package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketpay/internal/models"
)

// Payments handlers

// AttachPaymentMethod - POST /api/payments/sessions
func (h *Handlers) AttachPaymentMethod(c *gin.Context) {
	var req models.AttachPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.services.Checkout.AttachPaymentMethod(c.Request.Context(), req.CheckoutSessionID, req.PaymentMethod)
	if err != nil {
		respondError(c, "attach payment method", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetPaymentSession - GET /api/payments/sessions/:sessionId
// The purchaser's payment page; it carries the cashback secret once issued.
func (h *Handlers) GetPaymentSession(c *gin.Context) {
	view, err := h.services.Checkout.Get(c.Request.Context(), c.Param("sessionId"), true)
	if err != nil {
		respondError(c, "get payment session", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// VerifyPayment - GET /api/payments/verify/:sessionId
func (h *Handlers) VerifyPayment(c *gin.Context) {
	state, err := h.services.Payments.Reconcile(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, "verify payment", err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// IssueSessionTicket - POST /api/payments/sessions/:sessionId/issue-ticket
func (h *Handlers) IssueSessionTicket(c *gin.Context) {
	res, err := h.services.Issuance.IssueForSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, "issue ticket", err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, models.IssueTicketResponse{Ticket: res.Ticket, Cashback: res.Cashback, Created: res.Created})
}

// BCHWebhook - POST /api/payments/webhooks/bch
// Принимать уведомления от наблюдателя за блокчейном
func (h *Handlers) BCHWebhook(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		bindError(c, err)
		return
	}

	state, err := h.services.Payments.HandleWebhook(c.Request.Context(), &payload)
	if err != nil {
		respondError(c, "handle payment webhook", err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetCashback - GET /api/payments/cashback/:paymentId
func (h *Handlers) GetCashback(c *gin.Context) {
	view, err := h.services.Cashback.GetByPayment(c.Request.Context(), c.Param("paymentId"), true)
	if err != nil {
		respondError(c, "get cashback", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// FundCashback - POST /api/payments/cashback/:paymentId/fund
func (h *Handlers) FundCashback(c *gin.Context) {
	orgID, ok := organizer(c)
	if !ok {
		return
	}

	resp, err := h.services.Cashback.Fund(c.Request.Context(), c.Param("paymentId"), orgID)
	if err != nil {
		respondError(c, "fund cashback", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
