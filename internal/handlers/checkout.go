package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ticketpay/internal/models"
)

// StartCheckout - POST /api/checkout/sessions
func (h *Handlers) StartCheckout(c *gin.Context) {
	var req models.StartCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.services.Checkout.Start(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "start checkout", err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetCheckoutSession - GET /api/checkout/sessions/:sessionId
func (h *Handlers) GetCheckoutSession(c *gin.Context) {
	view, err := h.services.Checkout.Get(c.Request.Context(), c.Param("sessionId"), false)
	if err != nil {
		respondError(c, "get checkout session", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ListCheckoutSessions - GET /api/checkout/sessions?eventId=
func (h *Handlers) ListCheckoutSessions(c *gin.Context) {
	orgID, ok := organizer(c)
	if !ok {
		return
	}

	eventID := c.Query("eventId")
	if eventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventId is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	sessions, err := h.services.Checkout.ListByEvent(c.Request.Context(), orgID, eventID, limit)
	if err != nil {
		respondError(c, "list checkout sessions", err)
		return
	}

	c.JSON(http.StatusOK, models.ListCheckoutSessionsResponse{Sessions: sessions})
}
