package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for wallet operations
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new wallet handler
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up wallet routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:userId", h.GetBalance)
	r.GET("/wallets/:userId/transactions", h.GetHistory)
}

// GetBalance handles GET /wallets/:userId
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Param("userId")

	wallet, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load wallet", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "wallet_error",
			"message": "Failed to retrieve wallet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet": wallet,
	})
}

// GetHistory handles GET /wallets/:userId/transactions
func (h *Handler) GetHistory(c *gin.Context) {
	userID := c.Param("userId")

	limit := 50
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and 500",
			})
			return
		}
		limit = parsed
	}

	txns, err := h.ledger.History(c.Request.Context(), userID, limit)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "wallet_not_found",
				"message": "No wallet for that user",
			})
			return
		}
		h.logger.Error("failed to load history", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history_error",
			"message": "Failed to retrieve transaction history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
	})
}
