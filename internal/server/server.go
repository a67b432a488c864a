// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sharemart/sharemart/internal/catalog"
	"github.com/sharemart/sharemart/internal/config"
	"github.com/sharemart/sharemart/internal/ledger"
	"github.com/sharemart/sharemart/internal/logging"
	"github.com/sharemart/sharemart/internal/metrics"
	"github.com/sharemart/sharemart/internal/notify"
	"github.com/sharemart/sharemart/internal/payment"
	"github.com/sharemart/sharemart/internal/quote"
	"github.com/sharemart/sharemart/internal/ratelimit"
	"github.com/sharemart/sharemart/internal/realtime"
	"github.com/sharemart/sharemart/internal/security"
	"github.com/sharemart/sharemart/internal/traces"
	"github.com/sharemart/sharemart/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	catalog     catalog.Store
	ledger      *ledger.Ledger
	quotes      *quote.Service
	payments    *payment.Service
	dispatcher  *notify.Dispatcher
	notifyStore notify.Store
	realtimeHub *realtime.Hub
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	stopTraces  func(context.Context) error
	cancelRun   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCatalog sets a custom catalog store (for testing and demo seeding)
func WithCatalog(store catalog.Store) Option {
	return func(s *Server) {
		s.catalog = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set catalog/logger)
	for _, opt := range opts {
		opt(s)
	}

	var (
		quoteStore   quote.Store
		paymentStore payment.Store
		ledgerStore  ledger.Store
	)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		quoteStore = quote.NewPostgresStore(db)
		paymentStore = payment.NewPostgresStore(db)
		ledgerStore = ledger.NewPostgresStore(db)
		s.notifyStore = notify.NewPostgresStore(db)
		if s.catalog == nil {
			s.catalog = catalog.NewPostgresStore(db)
		}
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		quoteStore = quote.NewMemoryStore()
		paymentStore = payment.NewMemoryStore()
		ledgerStore = ledger.NewMemoryStore()
		s.notifyStore = notify.NewMemoryStore()
		if s.catalog == nil {
			s.catalog = catalog.NewMemoryStore()
		}
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.ledger = ledger.New(ledgerStore, cfg.PlatformAccountID)
	s.logger.Info("wallet ledger enabled", "platform_account", cfg.PlatformAccountID)

	// Realtime hub for WebSocket pushes
	s.realtimeHub = realtime.NewHub(s.logger)

	// Notification dispatcher: always persists and broadcasts; email only
	// when SendGrid credentials are configured.
	s.dispatcher = notify.NewDispatcher(s.notifyStore, s.catalog, s.logger).
		WithBroadcaster(s.realtimeHub)
	if cfg.SendGridAPIKey != "" {
		s.dispatcher = s.dispatcher.WithEmailer(
			notify.NewSendGridEmailer(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName))
		s.logger.Info("email notifications enabled", "from", cfg.EmailFrom)
	} else {
		s.logger.Info("email notifications disabled (no SENDGRID_API_KEY)")
	}
	emitter := notify.NewEmitter(s.dispatcher)

	// Payment provider
	provider, err := buildProvider(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	expiryLoc, err := config.ParseUTCOffset(cfg.PaymentExpiryOffset)
	if err != nil {
		return nil, err
	}
	s.payments = payment.NewService(paymentStore, provider, s.ledger, expiryLoc, s.logger)

	// Quote state machine
	s.quotes = quote.NewService(quoteStore, s.catalog, s.ledger, s.logger).
		WithNotifier(emitter)
	if provider != nil {
		s.quotes = s.quotes.WithLinkCreator(s.payments)
	} else {
		s.logger.Warn("payment provider not configured, RENT/DEPOSIT approvals will fail until one is")
	}
	s.payments.WithQuotes(s.quotes)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// buildProvider selects the payment-link backend from config. Returns
// nil (payments disabled) when the chosen provider has no credentials,
// which keeps SHARE-only development setups working.
func buildProvider(cfg *config.Config, logger *slog.Logger) (payment.Provider, error) {
	switch cfg.PaymentProvider {
	case "stripe":
		if cfg.StripeAPIKey == "" {
			return nil, nil
		}
		logger.Info("payment provider configured", "provider", "stripe")
		return payment.NewStripe(payment.StripeConfig{
			APIKey:     cfg.StripeAPIKey,
			SuccessURL: cfg.StripeSuccessURL,
		}), nil
	case "cashfree":
		if cfg.CashfreeClientID == "" || cfg.CashfreeSecret == "" {
			return nil, nil
		}
		p, err := payment.NewCashfree(payment.CashfreeConfig{
			BaseURL:      cfg.CashfreeBaseURL,
			ClientID:     cfg.CashfreeClientID,
			ClientSecret: cfg.CashfreeSecret,
			Timeout:      cfg.ProviderTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("cashfree provider: %w", err)
		}
		logger.Info("payment provider configured", "provider", "cashfree", "base_url", cfg.CashfreeBaseURL)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting. Provider webhooks are exempt so a redelivery burst
	// never drops a payment confirmation.
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time quote and wallet events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// Provider webhook callbacks live outside the v1 API group
	paymentHandler := payment.NewHandler(s.payments, s.cfg.WebhookSecret, s.logger)
	paymentHandler.RegisterWebhook(s.router.Group(""))

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate ID-shaped URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.IDParamMiddleware("quoteId"))
	v1.Use(validation.IDParamMiddleware("userId"))

	quote.NewHandler(s.quotes, s.logger).RegisterRoutes(v1)
	ledger.NewHandler(s.ledger, s.logger).RegisterRoutes(v1)
	notify.NewHandler(s.notifyStore, s.logger).RegisterRoutes(v1)
	paymentHandler.RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "ShareMart",
		"description": "Quote lifecycle and wallet settlement for peer-to-peer sharing",
		"version":     "0.1.0",
		"currency":    "INR",
		"realtime":    "/ws?userId=...",
	})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	// Tracing (no-op when OTEL_EXPORTER_OTLP_ENDPOINT is unset)
	stopTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed", "error", err)
	} else {
		s.stopTraces = stopTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start notification workers
	s.dispatcher.Start()

	// DB pool stats for Prometheus
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines (hub, stats collector)
	if s.cancelRun != nil {
		s.cancelRun()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Drain queued notifications
	s.dispatcher.Stop()
	s.logger.Info("notification dispatcher stopped")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close failed", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
