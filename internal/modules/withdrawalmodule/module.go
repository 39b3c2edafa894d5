package withdrawalmodule

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
	ModuleID   = "finance.withdrawals"
	ModuleName = "Creator Withdrawals"
)

// Module owns the manual withdrawal lifecycle and its HTTP surface.
type Module struct {
	id          string
	name        string
	version     string
	core        bool
	db          *gorm.DB
	service     *Service
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

// GetService returns the service owned by the loaded module.
func GetService() *Service {
	if moduleInstance == nil {
		return nil
	}
	return moduleInstance.service
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

// Migrate handles database schema migrations for withdrawals
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.Withdrawal{}, &database.OutboxMessage{})
}

// Init builds the service over the shared database handle and the disbursing
// gateway client.
func (m *Module) Init() error {
	if m.initialized {
		return nil
	}

	cfg := config.Get()
	m.db = database.GetDB()

	gwLogger := hclog.New(&hclog.LoggerOptions{Name: "disbursing", Level: hclog.Info})
	disburser := gateway.NewDisbursingClient(gwLogger, cfg.Gateways)

	m.service = NewService(m.db, cfg, disburser)
	m.initialized = true
	return nil
}
