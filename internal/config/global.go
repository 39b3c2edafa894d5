package config

import "sync"

var (
	global     *Config
	globalOnce sync.Once
	globalMu   sync.RWMutex
)

// Set installs the application configuration loaded at startup.
func Set(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cfg
}

// Get returns the installed configuration, loading it from the environment
// the first time if Set was never called.
func Get() *Config {
	globalMu.RLock()
	cfg := global
	globalMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalOnce.Do(func() {
		loaded, err := Load()
		if err != nil {
			loaded = &Config{}
		}
		globalMu.Lock()
		if global == nil {
			global = loaded
		}
		globalMu.Unlock()
	})

	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}
