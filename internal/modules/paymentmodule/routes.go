package paymentmodule

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/logger"
)

// RegisterRoutes wires the payment HTTP surface.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	payments := router.Group("/api/v1/payments")
	{
		payments.POST("/momo", m.momoMovie)
		payments.POST("/series-momo", m.momoSeries)
		payments.POST("/subscription-momo", m.momoSubscription)
		payments.POST("/stripe", m.cardMovie)
		payments.POST("/subscription-stripe", m.cardSubscription)
		payments.GET("/momo/:transactionId", m.checkPayment)
	}
	router.POST("/api/v1/webhook/collecting-gateway", m.collectingWebhook)
}

func (m *Module) momoMovie(c *gin.Context) {
	var req MoviePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := m.orchestrator.MomoMovie(c.Request.Context(), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (m *Module) momoSeries(c *gin.Context) {
	var req SeriesPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := m.orchestrator.MomoSeries(c.Request.Context(), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (m *Module) momoSubscription(c *gin.Context) {
	var req SubscriptionPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := m.orchestrator.MomoSubscription(c.Request.Context(), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (m *Module) cardMovie(c *gin.Context) {
	var req CardPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := m.orchestrator.CardMovie(c.Request.Context(), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (m *Module) cardSubscription(c *gin.Context) {
	var req CardPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := m.orchestrator.CardSubscription(c.Request.Context(), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (m *Module) checkPayment(c *gin.Context) {
	res, err := m.orchestrator.ReconcileByPaymentID(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// webhookNotification is what the collecting gateway posts on settlement.
// The claimed status is logged but never trusted; the payment is always
// re-checked against the gateway.
type webhookNotification struct {
	ReferenceID string `json:"referenceId"`
	Status      string `json:"status"`
}

func (m *Module) collectingWebhook(c *gin.Context) {
	var note webhookNotification
	if err := c.ShouldBindJSON(&note); err != nil || note.ReferenceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook body"})
		return
	}
	logger.Info("Webhook received for reference %s (claimed status %s)", note.ReferenceID, note.Status)

	res, err := m.orchestrator.ReconcileByReference(c.Request.Context(), note.ReferenceID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func renderError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Payment request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
