package notify

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for notifications
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new notification handler
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes sets up notification routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/notifications/:userId", h.List)
	r.POST("/notifications/:userId/:id/read", h.MarkRead)
}

// List handles GET /notifications/:userId
func (h *Handler) List(c *gin.Context) {
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

	notifications, err := h.store.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "notifications_error",
			"message": "Failed to retrieve notifications",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
	})
}

// MarkRead handles POST /notifications/:userId/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	id := c.Param("id")

	if err := h.store.MarkRead(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "notification_not_found",
				"message": "No such notification",
			})
			return
		}
		h.logger.Error("failed to mark notification read", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "notifications_error",
			"message": "Failed to update notification",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
