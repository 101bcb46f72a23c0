// Package queue defines the seat events exchanged over RabbitMQ and the
// consumer that records them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// SeatEventsQueue is the durable queue carrying SeatEvent messages.
const SeatEventsQueue = "seat.events"

// Seat event types.
const (
	EventSeatsInitialized = "seats.initialized"
	EventSeatAssigned     = "seat.assigned"
)

// SeatEvent is published after a seat operation succeeded. Consumers get
// enough information to log or notify without asking the flight actor.
type SeatEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	FlightKey  string    `json:"flight_key"`
	SeatID     string    `json:"seat_id,omitempty"`
	Occupant   string    `json:"occupant,omitempty"`
	Seats      []string  `json:"seats,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewSeatsInitialized builds the event for a successful initialize.
func NewSeatsInitialized(flightKey string, seats []string) SeatEvent {
	return SeatEvent{
		ID:         uuid.NewString(),
		Type:       EventSeatsInitialized,
		FlightKey:  flightKey,
		Seats:      seats,
		OccurredAt: time.Now().UTC(),
	}
}

// NewSeatAssigned builds the event for a successful assignment.
func NewSeatAssigned(flightKey, seatID, occupant string) SeatEvent {
	return SeatEvent{
		ID:         uuid.NewString(),
		Type:       EventSeatAssigned,
		FlightKey:  flightKey,
		SeatID:     seatID,
		Occupant:   occupant,
		OccurredAt: time.Now().UTC(),
	}
}
