package ledgermodule

import (
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "finance.ledger"
	ModuleName = "Payment Ledger"
)

// Module owns the payment and withdrawal ledger and creator balances.
type Module struct {
	id          string
	name        string
	version     string
	core        bool
	db          *gorm.DB
	ledger      *Ledger
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

// GetLedger returns the ledger owned by the loaded module.
func GetLedger() *Ledger {
	if moduleInstance == nil {
		return nil
	}
	return moduleInstance.ledger
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

// Migrate handles database schema migrations for the ledger
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.Payment{}, &database.Withdrawal{})
}

// Init initializes the ledger module
func (m *Module) Init() error {
	if m.initialized {
		return nil
	}
	m.db = database.GetDB()
	m.ledger = NewLedger(m.db)
	m.initialized = true
	return nil
}
