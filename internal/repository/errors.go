// Package repository defines the seat store and the error values it shares
// with higher layers. Handlers translate these sentinels into HTTP status
// codes: ErrDuplicateSeat and ErrSeatAlreadyOccupied become 409,
// ErrSeatNotFound becomes 404, ErrInvalidArgument becomes 400 and anything
// wrapped with ErrStorageFailure becomes 500.
package repository

import (
	"errors"
	"fmt"
)

// ErrDuplicateSeat is returned when a seat id is inserted twice for the
// same flight.
var ErrDuplicateSeat = errors.New("duplicate seat")

// ErrSeatNotFound is returned when an operation references a seat id that
// was never inserted.
var ErrSeatNotFound = errors.New("seat not found")

// ErrSeatAlreadyOccupied is returned when assigning a seat that currently
// holds an occupant.
var ErrSeatAlreadyOccupied = errors.New("seat already occupied")

// ErrInvalidArgument is returned for empty seat ids or occupants.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrStorageFailure marks errors coming from the underlying database. They
// are fatal for the operation and never retried.
var ErrStorageFailure = errors.New("storage failure")

// DuplicateSeatError names the seat id that violated the primary key and
// its position in the batch being inserted (-1 for single inserts).
type DuplicateSeatError struct {
	SeatID string
	Index  int
}

func (e *DuplicateSeatError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("duplicate seat %q", e.SeatID)
	}
	return fmt.Sprintf("duplicate seat %q at index %d", e.SeatID, e.Index)
}

// Is lets errors.Is(err, ErrDuplicateSeat) match.
func (e *DuplicateSeatError) Is(target error) bool {
	return target == ErrDuplicateSeat
}

// storageError wraps a driver error so callers can test for
// ErrStorageFailure while keeping the driver error reachable.
func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
