// Package seating holds the seat assignment actor of a flight and the
// directory resolving flight keys to their one live actor.
//
// Every FlightSeating owns a private Store and executes its operations on
// a single goroutine. That is what makes AssignSeat safe: the availability
// check and the write happen inside one action, and no other action of the
// same flight can run between them.
package seating

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"tideland.dev/go/actor"

	"github.com/iliyamo/flight-seating/internal/repository"
)

// Length limits of seat ids and occupants, in characters. They match the
// widest columns any store uses.
const (
	MaxSeatIDLen   = 64
	MaxOccupantLen = 191
)

// Store is the seat table of one flight. repository.SeatRepo implements it.
type Store interface {
	EnsureSchema(ctx context.Context) error
	InsertSeats(ctx context.Context, seatIDs []string) error
	ListAvailable(ctx context.Context) ([]string, error)
	GetOccupant(ctx context.Context, seatID string) (*string, error)
	MoveOccupant(ctx context.Context, seatID, occupant string) error
	Close() error
}

// flightState is owned by the actor goroutine.
type flightState struct {
	store Store
}

// FlightSeating manages seat assignment for one flight.
type FlightSeating struct {
	key    string
	act    *actor.Actor[flightState]
	logger *slog.Logger
}

// Activate starts the actor for key over store and makes sure the seat
// table exists before any operation runs. The store is closed when the
// actor stops, including when activation fails. cfg receives the store's
// finalizer, so it must not be shared between activations. Its context
// bounds the actor's lifetime, not ctx.
func Activate(ctx context.Context, key string, store Store, cfg *actor.Config, logger *slog.Logger) (*FlightSeating, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("flight", key)
	if cfg == nil {
		cfg = actor.DefaultConfig()
	}
	cfg.SetFinalizer(func(err error) error {
		if cerr := store.Close(); cerr != nil {
			logger.Error("closing seat store failed", "error", cerr)
		}
		if err != nil {
			logger.Error("seating actor terminated", "error", err)
		}
		return err
	})

	act, err := actor.Go(flightState{store: store}, cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("activate flight %q: %w", key, err)
	}
	f := &FlightSeating{key: key, act: act, logger: logger}

	err = f.run(ctx, "activate", func(s *flightState) error {
		return s.store.EnsureSchema(context.WithoutCancel(ctx))
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("activate flight %q: %w", key, err)
	}
	logger.Debug("seating actor activated")
	return f, nil
}

// Key returns the flight key the actor was activated for.
func (f *FlightSeating) Key() string {
	return f.key
}

func validSeatID(id string) bool {
	return id != "" && utf8.RuneCountInString(id) <= MaxSeatIDLen
}

func validOccupant(occupant string) bool {
	return occupant != "" && utf8.RuneCountInString(occupant) <= MaxOccupantLen
}

// Initialize adds the given seats, all unoccupied. Either all seats are
// added or, on a duplicate id, none.
func (f *FlightSeating) Initialize(ctx context.Context, seatIDs []string) error {
	for i, id := range seatIDs {
		if !validSeatID(id) {
			return fmt.Errorf("initialize: seat %d must have 1 to %d characters: %w", i, MaxSeatIDLen, repository.ErrInvalidArgument)
		}
	}
	err := f.run(ctx, "initialize", func(s *flightState) error {
		return s.store.InsertSeats(context.WithoutCancel(ctx), seatIDs)
	})
	if err != nil {
		return err
	}
	f.logger.Info("seats initialized", "count", len(seatIDs))
	return nil
}

// GetAvailable returns the ids of all unoccupied seats.
func (f *FlightSeating) GetAvailable(ctx context.Context) ([]string, error) {
	var seats []string
	err := f.run(ctx, "available", func(s *flightState) error {
		var err error
		seats, err = s.store.ListAvailable(context.WithoutCancel(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	return seats, nil
}

// AssignSeat puts occupant on seatID. The seat must exist and be free. If
// the occupant already sits elsewhere on this flight, that seat is freed.
func (f *FlightSeating) AssignSeat(ctx context.Context, seatID, occupant string) error {
	if !validSeatID(seatID) || !validOccupant(occupant) {
		return fmt.Errorf("assign seat: seat (1-%d) and occupant (1-%d characters) are required: %w",
			MaxSeatIDLen, MaxOccupantLen, repository.ErrInvalidArgument)
	}
	err := f.run(ctx, "assign", func(s *flightState) error {
		sctx := context.WithoutCancel(ctx)
		current, err := s.store.GetOccupant(sctx, seatID)
		if err != nil {
			return fmt.Errorf("seat %q: %w", seatID, err)
		}
		if current != nil {
			return fmt.Errorf("seat %q: %w", seatID, repository.ErrSeatAlreadyOccupied)
		}
		return s.store.MoveOccupant(sctx, seatID, occupant)
	})
	if err != nil {
		return err
	}
	f.logger.Info("seat assigned", "seat", seatID, "occupant", occupant)
	return nil
}

// Close stops the actor and waits until its store is closed.
func (f *FlightSeating) Close() {
	f.act.Stop()
	<-f.act.Done()
}

// Done is closed once the actor has stopped.
func (f *FlightSeating) Done() <-chan struct{} {
	return f.act.Done()
}
