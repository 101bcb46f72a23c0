package seating

import (
	"context"
	"database/sql"

	"github.com/iliyamo/flight-seating/internal/database"
	"github.com/iliyamo/flight-seating/internal/repository"
)

// SQLiteStores gives every flight its own SQLite file under dataDir.
func SQLiteStores(dataDir string) StoreOpener {
	return func(ctx context.Context, key string) (Store, error) {
		db, err := database.OpenSQLite(ctx, database.EntityPath(dataDir, key))
		if err != nil {
			return nil, err
		}
		return repository.NewSeatRepo(db), nil
	}
}

// MemoryStores gives every activation a fresh in-memory SQLite database.
// Seats do not survive deactivation; use it for tests and demos.
func MemoryStores() StoreOpener {
	return func(ctx context.Context, key string) (Store, error) {
		db, err := database.OpenSQLite(ctx, ":memory:")
		if err != nil {
			return nil, err
		}
		return repository.NewSeatRepo(db), nil
	}
}

// MySQLStores scopes the shared flight_seats table of db to each flight.
func MySQLStores(db *sql.DB) StoreOpener {
	return func(ctx context.Context, key string) (Store, error) {
		return repository.NewFlightSeatRepo(db, key), nil
	}
}
