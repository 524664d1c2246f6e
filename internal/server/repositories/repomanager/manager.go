// Package repomanager opens the configured storage backend and hands out
// its repositories.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gpstracker/internal/server/config"
	"github.com/dmitrijs2005/gpstracker/internal/server/repositories/locations"
)

// RepositoryManager owns one storage backend.
type RepositoryManager interface {
	// Name is the backend name as used in configuration.
	Name() string
	// RunMigrations brings the schema up to date.
	RunMigrations(ctx context.Context) error
	Locations() locations.Repository
	Close() error
}

// Open returns the manager for cfg.Storage.
func Open(ctx context.Context, cfg *config.Config) (RepositoryManager, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		return OpenPostgres(cfg.DatabaseDSN)
	case config.StorageDynamoDB:
		return OpenDynamoDB(ctx, cfg)
	case config.StorageMemory:
		return NewMemoryRepositoryManager(), nil
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}

// MemoryRepositoryManager keeps everything in process memory.
type MemoryRepositoryManager struct {
	repo *locations.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{repo: locations.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) Name() string                        { return config.StorageMemory }
func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *MemoryRepositoryManager) Locations() locations.Repository     { return m.repo }
func (m *MemoryRepositoryManager) Close() error                        { return nil }
