// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
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

	"github.com/yamb-labs/sokoni/internal/admin"
	"github.com/yamb-labs/sokoni/internal/config"
	"github.com/yamb-labs/sokoni/internal/deliveryfee"
	"github.com/yamb-labs/sokoni/internal/events"
	"github.com/yamb-labs/sokoni/internal/faileddelivery"
	"github.com/yamb-labs/sokoni/internal/health"
	"github.com/yamb-labs/sokoni/internal/hold"
	"github.com/yamb-labs/sokoni/internal/ledger"
	"github.com/yamb-labs/sokoni/internal/logging"
	"github.com/yamb-labs/sokoni/internal/metrics"
	"github.com/yamb-labs/sokoni/internal/order"
	"github.com/yamb-labs/sokoni/internal/payments"
	"github.com/yamb-labs/sokoni/internal/ratelimit"
	"github.com/yamb-labs/sokoni/internal/realtime"
	"github.com/yamb-labs/sokoni/internal/receipts"
	"github.com/yamb-labs/sokoni/internal/reconciliation"
	"github.com/yamb-labs/sokoni/internal/security"
	"github.com/yamb-labs/sokoni/internal/traces"
	"github.com/yamb-labs/sokoni/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	orderService  *order.Service
	ledgerService *ledger.Service
	holdManager   *hold.Manager
	feeService    *deliveryfee.Service
	feeConfig     *deliveryfee.Config
	fdService     *faileddelivery.Service
	receipts      *receipts.Service
	dispatcher    *events.Dispatcher
	eventStore    events.Store
	realtimeHub   *realtime.Hub
	reconTimer    *reconciliation.Timer
	reconRunner   *reconciliation.Runner
	rateLimiter   *ratelimit.Limiter
	healthReg     *health.Registry

	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	tracesCleanup func(context.Context) error
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	cleanup, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesCleanup = cleanup
	}

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		orderStore    order.Store
		ledgerStore   ledger.Store
		holdStore     hold.Store
		fdStore       faileddelivery.Store
		feeStore      deliveryfee.ConfigStore
		receiptStore  receipts.Store
		webhookStore  events.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		pgOrders := order.NewPostgresStore(db)
		if err := pgOrders.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate order store", "error", err)
		}
		orderStore = pgOrders

		pgLedger := ledger.NewPostgresStore(db)
		if err := pgLedger.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate ledger store", "error", err)
		}
		ledgerStore = pgLedger

		pgHolds := hold.NewPostgresStore(db)
		if err := pgHolds.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate hold store", "error", err)
		}
		holdStore = pgHolds

		pgFD := faileddelivery.NewPostgresStore(db)
		if err := pgFD.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate failed-delivery store", "error", err)
		}
		fdStore = pgFD

		pgFees := deliveryfee.NewPostgresConfigStore(db)
		if err := pgFees.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate delivery fee config store", "error", err)
		}
		feeStore = pgFees

		pgReceipts := receipts.NewPostgresStore(db)
		if err := pgReceipts.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate receipt store", "error", err)
		}
		receiptStore = pgReceipts

		pgWebhooks := events.NewPostgresStore(db)
		if err := pgWebhooks.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		webhookStore = pgWebhooks
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		orderStore = order.NewMemoryStore()
		ledgerStore = ledger.NewMemoryStore()
		holdStore = hold.NewMemoryStore()
		fdStore = faileddelivery.NewMemoryStore()
		feeStore = deliveryfee.NewMemoryConfigStore()
		receiptStore = receipts.NewMemoryStore()
		webhookStore = events.NewMemoryStore()
	}

	// Core services
	s.ledgerService = ledger.NewService(ledgerStore)
	s.holdManager = hold.NewManager(holdStore)
	s.feeConfig = deliveryfee.NewConfig(feeStore, cfg.DefaultCountry)
	s.feeService = deliveryfee.NewService(s.feeConfig)
	s.receipts = receipts.NewService(receiptStore, receipts.NewSigner(cfg.ReceiptSecret))
	if cfg.ReceiptSecret == "" {
		s.logger.Info("receipt signing disabled (no RECEIPT_HMAC_SECRET set)")
	}

	holdPolicy := order.StaticHoldPolicy{
		Internal:   cfg.AgentHoldInternal,
		Verified:   cfg.AgentHoldVerified,
		Unverified: cfg.AgentHoldUnverified,
	}
	s.orderService = order.NewService(orderStore, s.ledgerService, s.holdManager,
		s.feeService, s.feeConfig, holdPolicy)

	// Failed-delivery resolver shares the order service, holds and ledger
	s.fdService = faileddelivery.NewService(fdStore, s.orderService, s.holdManager,
		s.ledgerService, s.feeConfig)
	s.orderService.WithFailureRecorder(s.fdService)

	// Outbound webhooks + realtime streaming, fanned out from order events
	s.eventStore = webhookStore
	s.dispatcher = events.NewDispatcher(webhookStore)
	s.realtimeHub = realtime.NewHub(s.logger)
	s.orderService.WithRecorder(&orderRecorder{
		emitter:  events.NewEmitter(s.dispatcher, s.logger),
		hub:      s.realtimeHub,
		receipts: s.receipts,
	})

	// Reconciliation (periodic + on-demand via admin)
	s.reconRunner = reconciliation.NewRunner(s.ledgerService, s.holdManager, s.orderService, s.logger)
	s.reconTimer = reconciliation.NewTimer(s.reconRunner, s.logger)

	// Health checks
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		db := s.db
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
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

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS
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

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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

// adminAuthMiddleware guards operator routes with the shared admin secret.
// When no secret is configured the routes are disabled outright.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is not configured",
			})
			return
		}
		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
	}
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

	// Live order feed page
	s.router.GET("/feed", feedPageHandler)

	// WebSocket for real-time order tracking
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// Orders: lifecycle transitions carry the acting party in the body
	order.NewHandler(s.orderService).RegisterRoutes(v1)

	// Ledger: balances and transaction history
	ledgerHandler := ledger.NewHandler(s.ledgerService)
	ledgerHandler.RegisterRoutes(v1)

	// Delivery fee quotes
	feeHandler := deliveryfee.NewHandler(s.feeService, s.feeConfig)
	feeHandler.RegisterRoutes(v1)

	// Failed deliveries: reading is public, resolution moves money
	fdHandler := faileddelivery.NewHandler(s.fdService)
	fdHandler.RegisterRoutes(v1)

	// Receipts
	receipts.NewHandler(s.receipts).RegisterRoutes(v1)

	// Webhook subscriptions
	events.NewHandler(s.eventStore).RegisterRoutes(v1)

	// Stripe payment webhook (authenticated by signature, not admin secret)
	payments.NewHandler(s.orderService, s.cfg.StripeWebhookSecret, s.logger).RegisterRoutes(v1)
	if s.cfg.StripeWebhookSecret == "" {
		s.logger.Info("stripe webhook disabled (no STRIPE_WEBHOOK_SECRET set)")
	}

	// Operator routes behind the admin secret
	adminGroup := v1.Group("")
	adminGroup.Use(s.adminAuthMiddleware())
	{
		ledgerHandler.RegisterProtectedRoutes(adminGroup)
		feeHandler.RegisterProtectedRoutes(adminGroup)
		fdHandler.RegisterProtectedRoutes(adminGroup)
		admin.NewHandler().
			WithOrderService(s.orderService).
			WithReconciler(s.reconRunner).
			RegisterRoutes(adminGroup)
	}
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
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
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
		"name":        "Sokoni",
		"description": "Marketplace order fulfillment and escrow",
		"version":     "0.1.0",
		"country":     s.cfg.DefaultCountry,
		"currency":    s.cfg.DefaultCurrency,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start periodic reconciliation
	go s.reconTimer.Start(runCtx)

	// Export DB pool stats
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

	// Cancel the context for all background goroutines (hub, reconciliation timer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.reconTimer != nil {
		s.reconTimer.Stop()
		s.logger.Info("reconciliation timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending trace spans
	if s.tracesCleanup != nil {
		if err := s.tracesCleanup(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Order event fanout
// -----------------------------------------------------------------------------

// orderRecorder fans order lifecycle events out to webhooks, the realtime
// hub and receipt issuance. Implements the order service's Recorder.
type orderRecorder struct {
	emitter  *events.Emitter
	hub      *realtime.Hub
	receipts *receipts.Service
}

func (r *orderRecorder) OrderStatusChanged(ctx context.Context, o *order.Order, from order.Status, actor order.Actor) {
	r.emitter.OrderStatusChanged(ctx, o, from, actor)
	r.hub.OrderStatusChanged(ctx, o, from, actor)

	if o.Status == order.StatusRefunded {
		r.issueReceipt(ctx, o, receipts.StatusRefunded)
	}
}

func (r *orderRecorder) OrderCompleted(ctx context.Context, o *order.Order) {
	r.emitter.OrderCompleted(ctx, o)
	r.hub.OrderCompleted(ctx, o)
	r.issueReceipt(ctx, o, receipts.StatusCompleted)
}

func (r *orderRecorder) OrderCancelled(ctx context.Context, o *order.Order, actor order.Actor) {
	r.emitter.OrderCancelled(ctx, o, actor)
	r.hub.OrderCancelled(ctx, o, actor)
}

func (r *orderRecorder) OrderFailed(ctx context.Context, o *order.Order, reason string) {
	r.emitter.OrderFailed(ctx, o, reason)
	r.hub.OrderFailed(ctx, o, reason)
}

func (r *orderRecorder) issueReceipt(ctx context.Context, o *order.Order, status string) {
	err := r.receipts.IssueReceipt(ctx, receipts.IssueRequest{
		OrderID:    o.ID,
		ClientID:   o.ClientID,
		BusinessID: o.BusinessID,
		Amount:     o.Total,
		Currency:   o.Currency,
		Status:     status,
	})
	if err != nil {
		logging.L(ctx).Error("receipt issuance failed", "order_id", o.ID, "error", err)
	}
}
