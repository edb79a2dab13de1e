// Package store caches simulation history and comparison records
// locally so exports keep working without a round-trip to the backend.
// SQLite is the default driver; Postgres is available for shared
// history.
package store

import (
	"context"

	"github.com/carbonlens/carbonlens-cli/internal/model"
)

// Filter narrows a simulation listing.
type Filter struct {
	Country string `json:"country,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store is the persistence interface for the local history cache.
// Get methods return nil (not an error) when the record is absent.
type Store interface {
	// Simulations
	PutSimulation(ctx context.Context, sim model.SavedSimulation) error
	GetSimulation(ctx context.Context, id string) (*model.SavedSimulation, error)
	ListSimulations(ctx context.Context, filter Filter) ([]model.SavedSimulation, error)
	DeleteSimulation(ctx context.Context, id string) error

	// Comparison records
	PutComparison(ctx context.Context, rec model.ComparisonRecord) error
	GetComparison(ctx context.Context, id string) (*model.ComparisonRecord, error)
	ListComparisons(ctx context.Context) ([]model.ComparisonRecord, error)
	DeleteComparison(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
