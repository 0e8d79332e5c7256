package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API under api. auth guards organizer routes and
// webhookAuth guards the chain watcher webhook.
func RegisterRoutes(api *gin.RouterGroup, h *Handlers, auth, webhookAuth gin.HandlerFunc) {
	checkout := api.Group("/checkout")
	{
		checkout.POST("/sessions", h.StartCheckout)
		checkout.GET("/sessions", auth, h.ListCheckoutSessions)
		checkout.GET("/sessions/:sessionId", h.GetCheckoutSession)
	}

	payments := api.Group("/payments")
	{
		payments.POST("/sessions", h.AttachPaymentMethod)
		payments.GET("/sessions/:sessionId", h.GetPaymentSession)
		payments.POST("/sessions/:sessionId/issue-ticket", h.IssueSessionTicket)
		payments.GET("/verify/:sessionId", h.VerifyPayment)
		payments.POST("/webhooks/bch", webhookAuth, h.BCHWebhook)
		payments.GET("/cashback/:paymentId", h.GetCashback)
		payments.POST("/cashback/:paymentId/fund", auth, h.FundCashback)
	}

	tickets := api.Group("/tickets", auth)
	{
		tickets.GET("", h.ListTickets)
		tickets.POST("", h.IssueTicket)
	}

	organizers := api.Group("/organizers", auth)
	{
		organizers.POST("/wallet", h.CreateWallet)
		organizers.GET("/wallet", h.GetWallet)
	}
}
