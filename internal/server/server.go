package server

import (
	"github.com/gin-gonic/gin"

	"github.com/cinemarwa/backend/internal/config"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/logger"
	"github.com/cinemarwa/backend/internal/mailer"
	"github.com/cinemarwa/backend/internal/modules/modulemanager"
	"github.com/cinemarwa/backend/internal/outbox"

	// Import all modules to trigger their registration
	_ "github.com/cinemarwa/backend/internal/modules/entitlementmodule"
	_ "github.com/cinemarwa/backend/internal/modules/ledgermodule"
	_ "github.com/cinemarwa/backend/internal/modules/paymentmodule"
	_ "github.com/cinemarwa/backend/internal/modules/withdrawalmodule"
)

var (
	moduleInitialized bool
	outboxWorker      *outbox.Worker
)

// SetupRouter configures and returns the main router
func SetupRouter() *gin.Engine {
	r := gin.Default()

	cfg := config.Get()
	if cfg.Server.EnableCORS {
		r.Use(corsMiddleware(cfg.Server.FrontendURL))
	}

	if err := initializeModules(); err != nil {
		logger.Error("Failed to initialize modules: %v", err)
	}

	r.GET("/api/health", healthCheck)
	modulemanager.RegisterRoutes(r)

	startOutboxWorker(cfg)

	return r
}

func corsMiddleware(frontendURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := frontendURL
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// initializeModules sets up the module system and loads all modules
func initializeModules() error {
	if moduleInitialized {
		return nil
	}

	db := database.GetDB()
	if err := modulemanager.LoadAll(db); err != nil {
		return err
	}

	moduleInitialized = true
	logModuleStatus()
	return nil
}

// startOutboxWorker launches the drain loop for queued emails.
func startOutboxWorker(cfg *config.Config) {
	if outboxWorker != nil {
		return
	}

	var sender mailer.Sender
	if cfg.Mail.SMTPHost != "" {
		sender = mailer.NewSMTPSender(cfg.Mail)
	} else {
		logger.Warn("SMTP not configured, outbound mail is dropped")
		sender = mailer.Noop{}
	}

	outboxWorker = outbox.NewWorker(database.GetDB(), sender, 0)
	outboxWorker.Start()
}

// StopOutboxWorker halts the drain loop during shutdown.
func StopOutboxWorker() {
	if outboxWorker != nil {
		outboxWorker.Stop()
		outboxWorker = nil
	}
}

// logModuleStatus logs the loaded modules
func logModuleStatus() {
	modules := modulemanager.ListModules()
	logger.Info("✅ Module system initialized with %d modules", len(modules))
	for _, module := range modules {
		logger.Info("  - %s (%s)", module.Name(), module.ID())
	}
}
