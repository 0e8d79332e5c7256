package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ticketpay/internal/logger"
	"ticketpay/internal/metrics"
	"ticketpay/internal/repository"
)

const (
	organizerIDKey  = "organizer_id"
	requestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
	WebhookHeader   = "x-webhook-secret"
)

// OrganizerID returns the organizer authenticated by OrganizerAuth.
func OrganizerID(c *gin.Context) (string, bool) {
	v, exists := c.Get(organizerIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// CORS middleware для обработки CORS запросов
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, x-webhook-secret")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// RequestID reuses the caller's X-Request-ID or assigns one, and threads it into the
// request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = logger.NewRequestID()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Logger middleware для структурированного логирования запросов
func Logger(monitor *metrics.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		monitor.TrackRequest(c.Request.Method, route, c.Writer.Status(), latency)

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if id, ok := c.Get(requestIDKey); ok {
			logFields = append(logFields, "request_id", id)
		}
		if orgID, ok := OrganizerID(c); ok {
			logFields = append(logFields, "organizer_id", orgID)
		}

		if c.Writer.Status() >= 400 {
			if len(c.Errors) > 0 {
				logFields = append(logFields, "error", c.Errors.String())
			}
			logger.Get().Error("Request completed with error", logFields...)
		}
	}
}

// Recovery middleware для восстановления после паники с детальным логированием
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithContext(c.Request.Context()).Error("PANIC recovered",
			slog.Any("panic", recovered),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"client_ip", c.ClientIP(),
		)

		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
			})
		}
	})
}

// OrganizerAuth authenticates an organizer with HTTP Basic Auth: the username is the
// organizer email, the password is checked against its stored SHA-256 hex digest.
func OrganizerAuth(organizers repository.OrganizerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", "Basic realm=\"Restricted\"")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		org, err := organizers.GetByEmail(c.Request.Context(), email)
		if err != nil {
			logger.WithContext(c.Request.Context()).Error("Failed to load organizer", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if org == nil || !org.IsActive || org.PasswordHash == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		hash := fmt.Sprintf("%x", sha256.Sum256([]byte(password)))
		if subtle.ConstantTimeCompare([]byte(hash), []byte(org.PasswordHash)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		c.Set(organizerIDKey, org.ID)
		c.Request = c.Request.WithContext(logger.ContextWithOrganizerID(c.Request.Context(), org.ID))

		c.Next()
	}
}

// WebhookSecret rejects webhook calls whose x-webhook-secret header does not match.
// An empty secret disables the check.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(WebhookHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}
