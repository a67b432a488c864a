package quote

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sharemart/sharemart/internal/catalog"
	"github.com/sharemart/sharemart/internal/payment"
)

// Handler provides HTTP endpoints for the quote lifecycle
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a new quote handler
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes sets up quote routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/quotes", h.Place)
	r.GET("/quotes", h.List)
	r.GET("/quotes/:quoteId", h.Get)
	r.PUT("/quotes/:quoteId", h.Update)
	r.POST("/quotes/:quoteId/approve", h.Approve)
	r.POST("/quotes/:quoteId/reject", h.Reject)
	r.POST("/quotes/:quoteId/exchange", h.Exchange)
	r.POST("/quotes/:quoteId/return", h.Return)
}

// actionRequest is the body shared by approve/reject/exchange/return.
type actionRequest struct {
	ActorID string `json:"actorId" binding:"required"`
	Remarks string `json:"remarks"`
}

// Place handles POST /quotes
func (h *Handler) Place(c *gin.Context) {
	var req PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	q, err := h.svc.Place(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"quote": q})
}

// Get handles GET /quotes/:quoteId
func (h *Handler) Get(c *gin.Context) {
	q, err := h.svc.Get(c.Request.Context(), c.Param("quoteId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

// List handles GET /quotes?customerId=... or GET /quotes?ownerId=...
func (h *Handler) List(c *gin.Context) {
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

	var (
		quotes []*Quote
		err    error
	)
	switch {
	case c.Query("customerId") != "":
		quotes, err = h.svc.ListByCustomer(c.Request.Context(), c.Query("customerId"), limit)
	case c.Query("ownerId") != "":
		quotes, err = h.svc.ListByOwner(c.Request.Context(), c.Query("ownerId"), limit)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_filter",
			"message": "customerId or ownerId query parameter is required",
		})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

// Update handles PUT /quotes/:quoteId
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	q, err := h.svc.Update(c.Request.Context(), c.Param("quoteId"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

// Approve handles POST /quotes/:quoteId/approve
func (h *Handler) Approve(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	q, err := h.svc.Approve(c.Request.Context(), c.Param("quoteId"), req.ActorID, req.Remarks)
	if err != nil {
		// A provider failure still moved the quote forward: both parties
		// approved but no link exists yet. Surface the partial state.
		if errors.Is(err, payment.ErrProvider) && q != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "provider_error",
				"message": "Payment link could not be created, approve again to retry",
				"quote":   q,
			})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

// Reject handles POST /quotes/:quoteId/reject
func (h *Handler) Reject(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	q, err := h.svc.Reject(c.Request.Context(), c.Param("quoteId"), req.ActorID, req.Remarks)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

// Exchange handles POST /quotes/:quoteId/exchange
func (h *Handler) Exchange(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	q, err := h.svc.MarkExchanged(c.Request.Context(), c.Param("quoteId"), req.ActorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

// Return handles POST /quotes/:quoteId/return
func (h *Handler) Return(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	q, err := h.svc.MarkReturned(c.Request.Context(), c.Param("quoteId"), req.ActorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

// writeError maps service errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrQuoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "quote_not_found",
			"message": "No quote with that id",
		})
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "product_not_found",
			"message": "No product with that id",
		})
	case errors.Is(err, catalog.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user_not_found",
			"message": "No user with that id",
		})
	case errors.Is(err, ErrInvalidActor):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "invalid_actor",
			"message": "Actor is not a party to this quote",
		})
	case errors.Is(err, ErrQuoteClosed):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "quote_closed",
			"message": "Quote is closed",
		})
	case errors.Is(err, ErrUpdateLimitReached):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "update_limit_reached",
			"message": "Quote has reached its negotiation limit",
		})
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_status",
			"message": "Quote is not in a state that allows this operation",
		})
	case errors.Is(err, ErrInvalidExchange):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_exchange_type",
			"message": "exchangeType must be SHARE, RENT or DEPOSIT",
		})
	case errors.Is(err, ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_date",
			"message": "Dates must be DD/MM/YYYY and to_date must not precede from_date",
		})
	default:
		h.logger.Error("quote operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "quote_error",
			"message": "Quote operation failed",
		})
	}
}
