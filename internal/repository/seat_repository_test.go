package repository_test

import (
	"context"
	"errors"
	"testing"

	"tideland.dev/go/asserts/verify"

	"github.com/iliyamo/flight-seating/internal/database"
	"github.com/iliyamo/flight-seating/internal/repository"
)

// setupTestRepo returns a seat store over a fresh in-memory database with
// the schema in place.
func setupTestRepo(t *testing.T) *repository.SeatRepo {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	repo := repository.NewSeatRepo(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func TestSeatRepo_EnsureSchemaIsIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	verify.NoError(t, repo.EnsureSchema(ctx))
	verify.NoError(t, repo.EnsureSchema(ctx))
}

func TestSeatRepo_InsertSeat(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	verify.NoError(t, repo.InsertSeat(ctx, "3B"))

	occupant, err := repo.GetOccupant(ctx, "3B")
	verify.NoError(t, err)
	verify.True(t, occupant == nil)

	err = repo.InsertSeat(ctx, "3B")
	verify.True(t, errors.Is(err, repository.ErrDuplicateSeat))

	var dup *repository.DuplicateSeatError
	verify.True(t, errors.As(err, &dup))
	verify.Equal(t, dup.SeatID, "3B")
	verify.Equal(t, dup.Index, -1)
}

func TestSeatRepo_InsertSeatsIsAllOrNothing(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	verify.NoError(t, repo.InsertSeat(ctx, "1C"))

	err := repo.InsertSeats(ctx, []string{"1A", "1B", "1C", "1D"})
	var dup *repository.DuplicateSeatError
	verify.True(t, errors.As(err, &dup))
	verify.Equal(t, dup.SeatID, "1C")
	verify.Equal(t, dup.Index, 2)

	seats, err := repo.ListAvailable(ctx)
	verify.NoError(t, err)
	verify.Equal(t, len(seats), 1)
	verify.Equal(t, seats[0], "1C")
}

func TestSeatRepo_InsertSeatsRejectsRepeatedIDs(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	err := repo.InsertSeats(ctx, []string{"2A", "2B", "2A"})
	var dup *repository.DuplicateSeatError
	verify.True(t, errors.As(err, &dup))
	verify.Equal(t, dup.SeatID, "2A")
	verify.Equal(t, dup.Index, 2)

	seats, err := repo.ListAvailable(ctx)
	verify.NoError(t, err)
	verify.Equal(t, len(seats), 0)
}

func TestSeatRepo_ListAvailable(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("empty table yields empty list", func(t *testing.T) {
		seats, err := repo.ListAvailable(ctx)
		verify.NoError(t, err)
		verify.NotNil(t, seats)
		verify.Equal(t, len(seats), 0)
	})

	verify.NoError(t, repo.InsertSeats(ctx, []string{"1B", "1A", "1C"}))
	verify.NoError(t, repo.SetOccupant(ctx, "1B", "alice"))

	t.Run("only seats without occupant", func(t *testing.T) {
		seats, err := repo.ListAvailable(ctx)
		verify.NoError(t, err)
		verify.Equal(t, len(seats), 2)
		verify.Equal(t, seats[0], "1A")
		verify.Equal(t, seats[1], "1C")
	})
}

func TestSeatRepo_GetOccupant(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	verify.NoError(t, repo.InsertSeat(ctx, "4F"))
	verify.NoError(t, repo.SetOccupant(ctx, "4F", "bob"))

	occupant, err := repo.GetOccupant(ctx, "4F")
	verify.NoError(t, err)
	verify.NotNil(t, occupant)
	verify.Equal(t, *occupant, "bob")

	_, err = repo.GetOccupant(ctx, "9Z")
	verify.True(t, errors.Is(err, repository.ErrSeatNotFound))
}

func TestSeatRepo_ClearOccupant(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	verify.NoError(t, repo.InsertSeats(ctx, []string{"1A", "1B"}))
	verify.NoError(t, repo.SetOccupant(ctx, "1A", "alice"))

	verify.NoError(t, repo.ClearOccupant(ctx, "alice"))
	verify.NoError(t, repo.ClearOccupant(ctx, "alice"))
	verify.NoError(t, repo.ClearOccupant(ctx, "nobody"))

	seats, err := repo.ListAvailable(ctx)
	verify.NoError(t, err)
	verify.Equal(t, len(seats), 2)
}

func TestSeatRepo_SetOccupantMissingSeat(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.SetOccupant(context.Background(), "9Z", "x")
	verify.True(t, errors.Is(err, repository.ErrSeatNotFound))
}

func TestSeatRepo_OccupantIsUnique(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	verify.NoError(t, repo.InsertSeats(ctx, []string{"1A", "1B"}))
	verify.NoError(t, repo.SetOccupant(ctx, "1A", "alice"))

	err := repo.SetOccupant(ctx, "1B", "alice")
	verify.True(t, errors.Is(err, repository.ErrStorageFailure))
}

func TestSeatRepo_MoveOccupant(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	verify.NoError(t, repo.InsertSeats(ctx, []string{"1A", "1B", "1C"}))
	verify.NoError(t, repo.MoveOccupant(ctx, "1A", "alice"))
	verify.NoError(t, repo.MoveOccupant(ctx, "1B", "alice"))

	seats, err := repo.ListAvailable(ctx)
	verify.NoError(t, err)
	verify.Equal(t, len(seats), 2)
	verify.Equal(t, seats[0], "1A")
	verify.Equal(t, seats[1], "1C")

	t.Run("missing target keeps previous seat", func(t *testing.T) {
		err := repo.MoveOccupant(ctx, "9Z", "alice")
		verify.True(t, errors.Is(err, repository.ErrSeatNotFound))

		occupant, err := repo.GetOccupant(ctx, "1B")
		verify.NoError(t, err)
		verify.NotNil(t, occupant)
		verify.Equal(t, *occupant, "alice")
	})
}
