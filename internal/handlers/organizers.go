package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketpay/internal/models"
)

// CreateWallet - POST /api/organizers/wallet
// Idempotent: an existing wallet is returned with 200.
func (h *Handlers) CreateWallet(c *gin.Context) {
	orgID, ok := organizer(c)
	if !ok {
		return
	}

	w, created, err := h.services.Wallets.EnsureWallet(c.Request.Context(), orgID)
	if err != nil {
		respondError(c, "create wallet", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, models.WalletResponse{
		OrganizerID: w.OrganizerID,
		Xpub:        w.Xpub,
		NextIndex:   w.NextIndex,
		Created:     created,
	})
}

// GetWallet - GET /api/organizers/wallet
func (h *Handlers) GetWallet(c *gin.Context) {
	orgID, ok := organizer(c)
	if !ok {
		return
	}

	w, err := h.services.Wallets.Get(c.Request.Context(), orgID)
	if err != nil {
		respondError(c, "get wallet", err)
		return
	}

	c.JSON(http.StatusOK, models.WalletResponse{
		OrganizerID: w.OrganizerID,
		Xpub:        w.Xpub,
		NextIndex:   w.NextIndex,
	})
}
