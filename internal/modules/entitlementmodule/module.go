package entitlementmodule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/logger"
	"github.com/cinemarwa/backend/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "access.entitlements"
	ModuleName = "Entitlement Store"
)

// sweepInterval is how often clock-expired rows are flipped to expired.
const sweepInterval = time.Hour

// Module owns access grants and the access-check endpoint.
type Module struct {
	id          string
	name        string
	version     string
	core        bool
	db          *gorm.DB
	store       *Store
	stopSweep   chan struct{}
	initialized bool
}

var moduleInstance *Module

// Register registers this module with the module system
func Register() {
	moduleInstance = &Module{
		id:      ModuleID,
		name:    ModuleName,
		version: "1.0.0",
		core:    true,
	}
	modulemanager.Register(moduleInstance)
}

// GetStore returns the entitlement store owned by the loaded module.
func GetStore() *Store {
	if moduleInstance == nil {
		return nil
	}
	return moduleInstance.store
}

// ID returns the module ID
func (m *Module) ID() string {
	return m.id
}

// Name returns the module name
func (m *Module) Name() string {
	return m.name
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return m.core
}

// Migrate handles database schema migrations for entitlements
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.Entitlement{})
}

// Init initializes the entitlement module and starts the expiry sweep.
func (m *Module) Init() error {
	if m.initialized {
		return nil
	}
	m.db = database.GetDB()
	m.store = NewStore(m.db)
	m.stopSweep = make(chan struct{})
	go m.sweepLoop()
	m.initialized = true
	return nil
}

func (m *Module) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := m.store.ExpireStale(); err != nil {
				logger.Error("Entitlement expiry sweep failed: %v", err)
			} else if n > 0 {
				logger.Info("Entitlement expiry sweep flipped %d rows", n)
			}
		case <-m.stopSweep:
			return
		}
	}
}

// RegisterRoutes registers the access-check endpoint
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if !m.initialized {
		return
	}

	api := router.Group("/api/v1")
	api.GET("/access/:userId/:contentId", m.checkAccess)
}

func (m *Module) checkAccess(c *gin.Context) {
	decision := m.store.Check(c.Param("userId"), c.Param("contentId"))
	c.JSON(http.StatusOK, decision)
}
