package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/logger"
	"ticketpay/internal/middleware"
	"ticketpay/internal/models"
	"ticketpay/internal/search"
	"ticketpay/internal/service"
)

// TicketSearcher is the full-text ticket index. It is optional.
type TicketSearcher interface {
	SearchTickets(ctx context.Context, f models.TicketFilter) ([]search.TicketDocument, int64, error)
}

type Handlers struct {
	services *service.Services
	search   TicketSearcher
}

func NewHandlers(services *service.Services, searcher TicketSearcher) *Handlers {
	return &Handlers{
		services: services,
		search:   searcher,
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrSoldOut), errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidSignature), errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrBadRequest), errors.Is(err, apperrors.ErrPaymentIncomplete):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, apperrors.ErrChainQueryFailed), errors.Is(err, apperrors.ErrBroadcastFailed):
		return http.StatusBadGateway
	case errors.Is(err, apperrors.ErrEncryptionKeyMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": message}. Unexpected errors are logged and
// their text is not sent to the client.
func respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	if status == http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("Failed to "+op, "error", err)
		c.JSON(status, gin.H{"error": "Failed to " + op})
		return
	}

	body := gin.H{"error": apperrors.Message(err)}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	c.JSON(status, body)
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// organizer returns the authenticated organizer or aborts with 401.
func organizer(c *gin.Context) (string, bool) {
	id, ok := middleware.OrganizerID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return id, ok
}
