package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ticketpay/internal/logger"
	"ticketpay/internal/models"
	"ticketpay/internal/service"
)

// ListTickets - GET /api/tickets
// Free-text queries go to the search index when one is configured.
func (h *Handlers) ListTickets(c *gin.Context) {
	orgID, ok := organizer(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	if offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be >= 0"})
		return
	}

	filter := models.TicketFilter{
		OrganizerID: orgID,
		EventID:     c.Query("eventId"),
		Email:       c.Query("email"),
		Query:       c.Query("q"),
		Limit:       limit,
		Offset:      offset,
	}

	if filter.Query != "" && h.search != nil {
		docs, total, err := h.search.SearchTickets(c.Request.Context(), filter)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"tickets": docs, "total": total})
			return
		}
		logger.WithContext(c.Request.Context()).Warn("Ticket search failed, falling back to database", "error", err)
	}

	resp, err := h.services.Issuance.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "list tickets", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// IssueTicket - POST /api/tickets
func (h *Handlers) IssueTicket(c *gin.Context) {
	orgID, ok := organizer(c)
	if !ok {
		return
	}

	var req models.IssueTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	in := service.IssueTicketInput{
		TicketTypeID: req.TicketTypeID,
		EventID:      req.EventID,
		OrganizerID:  orgID,
		Attendee: models.Attendee{
			Name:  req.AttendeeName,
			Email: req.AttendeeEmail,
			Phone: req.AttendeePhone,
		},
		PaymentID:     req.PaymentID,
		ReferenceCode: req.ReferenceCode,
	}
	if req.MintNFT {
		if req.NFTWalletAddress == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nftWalletAddress is required to mint an NFT ticket"})
			return
		}
		in.NFT = &models.NFTTicket{WalletAddress: *req.NFTWalletAddress}
		if req.NFTTokenID != nil {
			in.NFT.TokenID = *req.NFTTokenID
		}
	}
	if req.CashbackAmountSats != nil {
		in.CashbackAmountSats = *req.CashbackAmountSats
	}

	res, err := h.services.Issuance.IssueTicket(c.Request.Context(), in)
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
