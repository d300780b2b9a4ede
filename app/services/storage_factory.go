package services

import (
	"context"
	"fmt"

	"provision-svc/app/clients"
	"provision-svc/storage/memory"
	"provision-svc/storage/postgres"
)

// Storage drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// StorageFactory creates storage adapters
type StorageFactory struct{}

// NewStorageFactory creates a new storage factory
func NewStorageFactory() *StorageFactory {
	return &StorageFactory{}
}

// Create creates the storage adapter for driver
func (f *StorageFactory) Create(ctx context.Context, driver, connString string) (clients.StorageAdapter, error) {
	switch driver {
	case StoreDriverPostgres:
		return f.CreatePostgresStore(ctx, connString)
	case StoreDriverMemory:
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver: %s", driver)
}

// CreatePostgresStore creates a Postgres store
func (f *StorageFactory) CreatePostgresStore(ctx context.Context, connString string) (clients.StorageAdapter, error) {
	store, err := postgres.NewStore(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres store: %w", err)
	}
	return store, nil
}
