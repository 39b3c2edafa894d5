package paymentmodule

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/config"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/gateway"
	"github.com/cinemarwa/backend/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "payments.core"
	ModuleName = "Payment Orchestration"
)

// Module owns purchase orchestration, gateway reconciliation, and the
// payment HTTP surface.
type Module struct {
	id           string
	name         string
	version      string
	core         bool
	db           *gorm.DB
	orchestrator *Orchestrator
	initialized  bool
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

// GetOrchestrator returns the orchestrator owned by the loaded module.
func GetOrchestrator() *Orchestrator {
	if moduleInstance == nil {
		return nil
	}
	return moduleInstance.orchestrator
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

// Migrate handles database schema migrations for payments
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.Payment{}, &database.OutboxMessage{})
}

// Init builds the orchestrator over the shared database handle and the
// configured gateway clients.
func (m *Module) Init() error {
	if m.initialized {
		return nil
	}

	cfg := config.Get()
	m.db = database.GetDB()

	gwLogger := hclog.New(&hclog.LoggerOptions{Name: "gateways", Level: hclog.Info})
	collector := gateway.NewCollectingClient(gwLogger.Named("collecting"), cfg.Gateways)
	card := gateway.NewCardClient(gwLogger.Named("card"), cfg.Gateways)

	m.orchestrator = NewOrchestrator(m.db, cfg, collector, card)
	m.initialized = true
	return nil
}
