// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/internal/storage/memory"
	sqlitestorage "github.com/tacsim/battlesim/internal/storage/sqlite"
)

// NewBackend creates a recording backend based on configuration.
func NewBackend(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Type {
	case "sqlite":
		b, err := sqlitestorage.New(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
