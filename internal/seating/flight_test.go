package seating_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tideland.dev/go/actor"
	"tideland.dev/go/asserts/verify"

	"github.com/iliyamo/flight-seating/internal/database"
	"github.com/iliyamo/flight-seating/internal/repository"
	"github.com/iliyamo/flight-seating/internal/seating"
)

// setupFlight activates a flight over a fresh in-memory store and returns
// it together with the store for direct inspection.
func setupFlight(t *testing.T, seats ...string) (*seating.FlightSeating, *repository.SeatRepo) {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	store := repository.NewSeatRepo(db)
	flight, err := seating.Activate(ctx, "flight-123-2024-05-01", store, nil, nil)
	if err != nil {
		t.Fatalf("failed to activate flight: %v", err)
	}
	t.Cleanup(flight.Close)

	if len(seats) > 0 {
		if err := flight.Initialize(ctx, seats); err != nil {
			t.Fatalf("failed to initialize seats: %v", err)
		}
	}
	return flight, store
}

func available(t *testing.T, f *seating.FlightSeating) []string {
	t.Helper()
	seats, err := f.GetAvailable(context.Background())
	if err != nil {
		t.Fatalf("GetAvailable failed: %v", err)
	}
	slices.Sort(seats)
	return seats
}

func TestFlightSeating_Scenario(t *testing.T) {
	flight, _ := setupFlight(t, "1A", "1B", "1C")
	ctx := context.Background()

	verify.True(t, slices.Equal(available(t, flight), []string{"1A", "1B", "1C"}))

	verify.NoError(t, flight.AssignSeat(ctx, "1A", "alice"))
	verify.True(t, slices.Equal(available(t, flight), []string{"1B", "1C"}))

	verify.NoError(t, flight.AssignSeat(ctx, "1B", "alice"))
	verify.True(t, slices.Equal(available(t, flight), []string{"1A", "1C"}))

	err := flight.AssignSeat(ctx, "1B", "bob")
	verify.True(t, errors.Is(err, repository.ErrSeatAlreadyOccupied))
	verify.True(t, slices.Equal(available(t, flight), []string{"1A", "1C"}))
}

func TestFlightSeating_GetAvailableIsIdempotent(t *testing.T) {
	flight, _ := setupFlight(t, "2A", "2B")

	first := available(t, flight)
	second := available(t, flight)
	verify.True(t, slices.Equal(first, second))
}

func TestFlightSeating_GetAvailableOnEmptyFlight(t *testing.T) {
	flight, _ := setupFlight(t)

	seats, err := flight.GetAvailable(context.Background())
	verify.NoError(t, err)
	verify.NotNil(t, seats)
	verify.Equal(t, len(seats), 0)
}

func TestFlightSeating_Initialize(t *testing.T) {
	flight, _ := setupFlight(t, "1A", "1B")
	ctx := context.Background()

	t.Run("overlapping ids fail and insert nothing", func(t *testing.T) {
		err := flight.Initialize(ctx, []string{"1C", "1B"})
		verify.True(t, errors.Is(err, repository.ErrDuplicateSeat))

		var dup *repository.DuplicateSeatError
		verify.True(t, errors.As(err, &dup))
		verify.Equal(t, dup.SeatID, "1B")
		verify.Equal(t, dup.Index, 1)
		verify.True(t, slices.Equal(available(t, flight), []string{"1A", "1B"}))
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		err := flight.Initialize(ctx, []string{"1D", ""})
		verify.True(t, errors.Is(err, repository.ErrInvalidArgument))
		verify.True(t, slices.Equal(available(t, flight), []string{"1A", "1B"}))
	})
}

func TestFlightSeating_AssignMissingSeat(t *testing.T) {
	flight, _ := setupFlight(t, "1A")

	err := flight.AssignSeat(context.Background(), "9Z", "X")
	verify.True(t, errors.Is(err, repository.ErrSeatNotFound))
	verify.True(t, slices.Equal(available(t, flight), []string{"1A"}))
}

func TestFlightSeating_AssignConflictLeavesState(t *testing.T) {
	flight, store := setupFlight(t, "1A", "1B")
	ctx := context.Background()

	verify.NoError(t, flight.AssignSeat(ctx, "1A", "o1"))
	verify.NoError(t, flight.AssignSeat(ctx, "1B", "o2"))

	err := flight.AssignSeat(ctx, "1A", "o2")
	verify.True(t, errors.Is(err, repository.ErrSeatAlreadyOccupied))

	occupant, err := store.GetOccupant(ctx, "1A")
	verify.NoError(t, err)
	verify.Equal(t, *occupant, "o1")
	occupant, err = store.GetOccupant(ctx, "1B")
	verify.NoError(t, err)
	verify.Equal(t, *occupant, "o2")
}

func TestFlightSeating_AssignOwnSeatAgain(t *testing.T) {
	flight, _ := setupFlight(t, "1A")
	ctx := context.Background()

	verify.NoError(t, flight.AssignSeat(ctx, "1A", "alice"))
	err := flight.AssignSeat(ctx, "1A", "alice")
	verify.True(t, errors.Is(err, repository.ErrSeatAlreadyOccupied))
}

func TestFlightSeating_AssignInvalidArguments(t *testing.T) {
	flight, _ := setupFlight(t, "1A")
	ctx := context.Background()

	verify.True(t, errors.Is(flight.AssignSeat(ctx, "", "alice"), repository.ErrInvalidArgument))
	verify.True(t, errors.Is(flight.AssignSeat(ctx, "1A", ""), repository.ErrInvalidArgument))
}

func TestFlightSeating_LengthLimits(t *testing.T) {
	flight, _ := setupFlight(t, "1A")
	ctx := context.Background()
	long := strings.Repeat("x", seating.MaxSeatIDLen+1)

	err := flight.Initialize(ctx, []string{"2A", long})
	verify.True(t, errors.Is(err, repository.ErrInvalidArgument))
	verify.True(t, slices.Equal(available(t, flight), []string{"1A"}))

	verify.True(t, errors.Is(flight.AssignSeat(ctx, long, "alice"), repository.ErrInvalidArgument))
	tooLong := strings.Repeat("ü", seating.MaxOccupantLen+1)
	verify.True(t, errors.Is(flight.AssignSeat(ctx, "1A", tooLong), repository.ErrInvalidArgument))
	verify.NoError(t, flight.AssignSeat(ctx, "1A", strings.Repeat("ü", seating.MaxOccupantLen)))
}

func TestFlightSeating_ConcurrentAssignSameSeat(t *testing.T) {
	flight, _ := setupFlight(t, "7C")
	ctx := context.Background()

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := flight.AssignSeat(ctx, "7C", fmt.Sprintf("passenger-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repository.ErrSeatAlreadyOccupied):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	verify.Equal(t, succeeded, 1)
	verify.Equal(t, conflicts, callers-1)
}

func TestFlightSeating_OccupantHoldsOneSeat(t *testing.T) {
	seats := []string{"1A", "1B", "1C", "1D", "1E", "1F"}
	flight, store := setupFlight(t, seats...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, seat := range seats {
		for _, who := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(seat, who string) {
				defer wg.Done()
				flight.AssignSeat(ctx, seat, who)
			}(seat, who)
		}
	}
	wg.Wait()

	held := map[string]int{}
	occupied := 0
	for _, seat := range seats {
		occupant, err := store.GetOccupant(ctx, seat)
		verify.NoError(t, err)
		if occupant != nil {
			held[*occupant]++
			occupied++
		}
	}
	verify.True(t, held["alice"] <= 1)
	verify.True(t, held["bob"] <= 1)
	verify.True(t, occupied >= 1)
	verify.Equal(t, len(available(t, flight)), len(seats)-occupied)
}

// failingStore fails every operation after activation.
type failingStore struct {
	closed bool
}

var errDisk = errors.New("disk on fire")

func (s *failingStore) EnsureSchema(ctx context.Context) error { return nil }
func (s *failingStore) InsertSeats(ctx context.Context, ids []string) error {
	return fmt.Errorf("insert: %w: %w", repository.ErrStorageFailure, errDisk)
}
func (s *failingStore) ListAvailable(ctx context.Context) ([]string, error) {
	return nil, fmt.Errorf("list: %w: %w", repository.ErrStorageFailure, errDisk)
}
func (s *failingStore) GetOccupant(ctx context.Context, seatID string) (*string, error) {
	return nil, fmt.Errorf("get: %w: %w", repository.ErrStorageFailure, errDisk)
}
func (s *failingStore) MoveOccupant(ctx context.Context, seatID, occupant string) error {
	return nil
}
func (s *failingStore) Close() error {
	s.closed = true
	return nil
}

func TestFlightSeating_StorageFailurePropagates(t *testing.T) {
	store := &failingStore{}
	flight, err := seating.Activate(context.Background(), "broken", store, nil, nil)
	verify.NoError(t, err)
	ctx := context.Background()

	verify.True(t, errors.Is(flight.Initialize(ctx, []string{"1A"}), repository.ErrStorageFailure))
	_, err = flight.GetAvailable(ctx)
	verify.True(t, errors.Is(err, errDisk))
	verify.True(t, errors.Is(flight.AssignSeat(ctx, "1A", "x"), repository.ErrStorageFailure))

	flight.Close()
	verify.True(t, store.closed)
}

// blockingStore holds ListAvailable until release is closed.
type blockingStore struct {
	failingStore
	entered chan struct{}
	release chan struct{}
	inserts atomic.Int32
}

func newBlockingStore() *blockingStore {
	return &blockingStore{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *blockingStore) ListAvailable(ctx context.Context) ([]string, error) {
	s.entered <- struct{}{}
	<-s.release
	return nil, nil
}

func (s *blockingStore) InsertSeats(ctx context.Context, ids []string) error {
	s.inserts.Add(1)
	return nil
}

func TestFlightSeating_CanceledWhileQueuedIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := newBlockingStore()
	flight, err := seating.Activate(ctx, "queued", store, nil, nil)
	verify.NoError(t, err)

	go flight.GetAvailable(ctx)
	<-store.entered

	qctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- flight.Initialize(qctx, []string{"1A"}) }()
	cancel()
	err = <-done
	verify.Equal(t, seating.CodeOf(err), actor.ErrCanceled)
	verify.True(t, errors.Is(err, context.Canceled))

	close(store.release)
	_, err = flight.GetAvailable(ctx)
	verify.NoError(t, err)
	verify.Equal(t, store.inserts.Load(), int32(0))
	flight.Close()
}

func TestFlightSeating_CallerDeadline(t *testing.T) {
	ctx := context.Background()
	store := newBlockingStore()
	flight, err := seating.Activate(ctx, "slow", store, nil, nil)
	verify.NoError(t, err)
	defer flight.Close()
	defer close(store.release)

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = flight.GetAvailable(tctx)
	verify.Equal(t, seating.CodeOf(err), actor.ErrTimeout)
	verify.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFlightSeating_PanicStopsActor(t *testing.T) {
	ctx := context.Background()
	store := &panickingStore{}
	flight, err := seating.Activate(ctx, "panicky", store, nil, nil)
	verify.NoError(t, err)

	_, err = flight.GetAvailable(ctx)
	verify.Equal(t, seating.CodeOf(err), actor.ErrPanic)
	<-flight.Done()
	verify.True(t, store.closed)

	err = flight.AssignSeat(ctx, "1A", "alice")
	verify.Equal(t, seating.CodeOf(err), actor.ErrShutdown)
}

// schemaFailingStore cannot create its table.
type schemaFailingStore struct {
	failingStore
}

func (s *schemaFailingStore) EnsureSchema(ctx context.Context) error {
	return fmt.Errorf("ensure schema: %w: %w", repository.ErrStorageFailure, errDisk)
}

func TestActivate_SchemaFailureClosesStore(t *testing.T) {
	store := &schemaFailingStore{}
	_, err := seating.Activate(context.Background(), "broken", store, nil, nil)
	verify.True(t, errors.Is(err, repository.ErrStorageFailure))
	verify.True(t, store.closed)
}
