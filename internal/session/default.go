package session

import (
	"path/filepath"
	"sync"

	"github.com/felixgeelhaar/servicehub/internal/config"
	"github.com/felixgeelhaar/servicehub/internal/tokenstore"
)

var (
	defaultManager *Manager
	defaultMu      sync.Mutex
)

// SetDefault installs m as the process-wide manager. The CLI calls it once
// after building the manager from configuration.
func SetDefault(m *Manager) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultManager = m
}

// Default returns the process-wide manager, creating one over the default
// credentials file if none was installed. Creation performs no I/O.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager == nil {
		var store tokenstore.Store
		if dir, err := config.Dir(); err == nil {
			store = tokenstore.NewFileStore(filepath.Join(dir, "auth.json"))
		} else {
			store = tokenstore.NewMemoryStore()
		}
		defaultManager = NewManager(store)
	}
	return defaultManager
}
