package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// Handler exposes the webhook endpoint and payment link lookups.
type Handler struct {
	svc    *Service
	secret string // empty disables signature verification
	logger *slog.Logger
}

// NewHandler creates a payment HTTP handler.
func NewHandler(svc *Service, webhookSecret string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, secret: webhookSecret, logger: logger}
}

// RegisterRoutes registers payment link lookups on the API router.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/quotes/:quoteId/payment-link", h.handleGetLink)
}

// RegisterWebhook mounts the provider callback. Kept separate from the
// API group so it can live outside rate limiting and auth layers.
func (h *Handler) RegisterWebhook(r *gin.RouterGroup) {
	r.POST("/webhooks/payments", h.handleWebhook)
}

func (h *Handler) handleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if h.secret != "" {
		signature := c.GetHeader("x-webhook-signature")
		timestamp := c.GetHeader("x-webhook-timestamp")
		if !verifySignature(h.secret, timestamp, payload, signature) {
			h.logger.Warn("webhook signature rejected", "remote", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	if err := h.svc.HandleWebhook(c.Request.Context(), payload); err != nil {
		switch {
		case errors.Is(err, ErrLinkNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown payment link"})
		default:
			h.logger.Error("webhook processing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleGetLink(c *gin.Context) {
	link, err := h.svc.GetByQuote(c.Request.Context(), c.Param("quoteId"))
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment link not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch payment link"})
		return
	}
	c.JSON(http.StatusOK, link)
}

// verifySignature checks the provider's HMAC-SHA256 over timestamp+body.
func verifySignature(secret, timestamp string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
