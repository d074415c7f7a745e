// Package repository stores user events and answers dashboard queries.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Store provides read/write access to user events.
type Store interface {
	// Record persists e. Returns false when an event with the same id is
	// already stored.
	Record(ctx context.Context, e model.UserEvent) (bool, error)

	// Stats summarizes a deployment over r.
	Stats(ctx context.Context, deploymentID int64, r analytics.Range) (analytics.Stats, error)

	// RecentSignups returns up to limit signups, newest first.
	RecentSignups(ctx context.Context, deploymentID int64, limit int) ([]analytics.RecentSignup, error)

	// DailyCounts returns one zero-filled bucket per day of r for events of type t.
	DailyCounts(ctx context.Context, deploymentID int64, t model.EventType, r analytics.Range) ([]analytics.DailyCount, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// Settings selects and configures a Store backend.
type Settings struct {
	Driver        string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
}

// Open builds the Store named by s.Driver. opts apply to the memory driver.
func Open(ctx context.Context, s Settings, opts ...Option) (Store, error) {
	switch s.Driver {
	case DriverMemory, "":
		return NewMemoryStore(ctx, opts...), nil
	case DriverPostgres:
		return NewPostgresStore(ctx, s.PostgresDSN)
	case DriverMongo:
		return NewMongoStore(ctx, s.MongoURI, s.MongoDatabase)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.Driver)
	}
}
