package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/mail-triage/internal/adapters/store"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates profile and stats repositories based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// Repositories bundles the two repositories a store backend provides.
// The sqlite and mysql backends serve both from one database; the
// memory backend uses two separate values.
type Repositories struct {
	Profiles core.ProfileRepository
	Stats    core.StatsRepository
}

// CreateRepositories creates the repositories for the configured backend
func (f *StoreFactory) CreateRepositories() (Repositories, error) {
	storeCfg := f.cfg.GetStore()

	switch storeCfg.Type {
	case "memory":
		return Repositories{
			Profiles: store.NewMemoryStore(f.logger),
			Stats:    store.NewMemoryStatsStore(),
		}, nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return Repositories{}, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		s, err := store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
		if err != nil {
			return Repositories{}, err
		}
		return Repositories{Profiles: s, Stats: s}, nil
	case "mysql":
		s, err := store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
		if err != nil {
			return Repositories{}, err
		}
		return Repositories{Profiles: s, Stats: s}, nil
	default:
		return Repositories{}, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
