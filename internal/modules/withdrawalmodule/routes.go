package withdrawalmodule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/logger"
)

// RegisterRoutes wires the withdrawal HTTP surface.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/v1/withdrawals/:filmmakerId", m.requestWithdrawal)
	router.PATCH("/api/v1/withdrawals/:withdrawalId", m.transitionWithdrawal)
	router.GET("/api/v1/withdrawals", m.listWithdrawals)
	router.GET("/api/v1/withdrawals/:withdrawalId", m.getWithdrawal)
	router.GET("/api/v1/filmmaker/:filmmakerId/finance", m.finance)
}

func (m *Module) requestWithdrawal(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	withdrawal, err := m.service.Request(c.Param("filmmakerId"), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, withdrawal)
}

// transitionRequest is the admin action body for PATCH.
type transitionRequest struct {
	Action string `json:"action"` // approve | complete | reject
	Reason string `json:"reason,omitempty"`
}

func (m *Module) transitionWithdrawal(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id := c.Param("withdrawalId")
	var (
		withdrawal *database.Withdrawal
		err        error
	)
	switch req.Action {
	case "approve":
		withdrawal, err = m.service.Approve(c.Request.Context(), id)
	case "complete":
		withdrawal, err = m.service.Complete(id)
	case "reject":
		withdrawal, err = m.service.Reject(id, req.Reason)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be approve, complete, or reject"})
		return
	}
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, withdrawal)
}

func (m *Module) listWithdrawals(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	withdrawals, err := m.service.List(c.Query("userId"), database.WithdrawalState(c.Query("state")), limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": withdrawals})
}

func (m *Module) getWithdrawal(c *gin.Context) {
	withdrawal, err := m.service.Get(c.Param("withdrawalId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, withdrawal)
}

func (m *Module) finance(c *gin.Context) {
	report, err := m.service.Finance(c.Param("filmmakerId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func renderError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Withdrawal request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
