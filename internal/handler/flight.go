// Package handler exposes the flight seating operations over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"tideland.dev/go/actor"

	"github.com/iliyamo/flight-seating/internal/queue"
	"github.com/iliyamo/flight-seating/internal/repository"
	"github.com/iliyamo/flight-seating/internal/seating"
)

// DemoFlightKey and DemoSeats back the root route.
const DemoFlightKey = "my-durable-object"

var DemoSeats = []string{"1A", "1B", "1C", "1D", "1E", "1F"}

// EventPublisher receives seat events after successful writes.
type EventPublisher interface {
	PublishSeatEvent(ctx context.Context, ev queue.SeatEvent) error
}

// CacheInvalidator drops cached availability of a flight.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// FlightHandler routes requests to the flight actors of a directory.
// Publisher and Cache are optional.
type FlightHandler struct {
	Dir       *seating.Directory
	Publisher EventPublisher
	Cache     CacheInvalidator
	Logger    *slog.Logger
}

// NewFlightHandler constructs a handler and panics without a directory.
func NewFlightHandler(dir *seating.Directory, pub EventPublisher, cache CacheInvalidator, logger *slog.Logger) *FlightHandler {
	if dir == nil {
		panic("nil directory passed to NewFlightHandler")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FlightHandler{Dir: dir, Publisher: pub, Cache: cache, Logger: logger}
}

type initializeRequest struct {
	Seats []string `json:"seats"`
}

type assignRequest struct {
	Occupant string `json:"occupant"`
}

// Demo initializes the demo flight with six seats and returns its available
// seats. The seats are inserted on every call, so only the first call on a
// fresh store succeeds; later calls report the duplicate.
func (h *FlightHandler) Demo(c echo.Context) error {
	ctx := c.Request().Context()
	var seats []string
	err := h.Dir.With(ctx, DemoFlightKey, func(f *seating.FlightSeating) error {
		if err := f.Initialize(ctx, DemoSeats); err != nil {
			return err
		}
		var err error
		seats, err = f.GetAvailable(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.afterWrite(ctx, queue.NewSeatsInitialized(DemoFlightKey, DemoSeats))
	return c.JSON(http.StatusOK, seats)
}

// Available returns the unoccupied seats of a flight.
func (h *FlightHandler) Available(c echo.Context) error {
	key := c.Param("key")
	if strings.TrimSpace(key) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "flight key is required"})
	}
	ctx := c.Request().Context()
	var seats []string
	err := h.Dir.With(ctx, key, func(f *seating.FlightSeating) error {
		var err error
		seats, err = f.GetAvailable(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, seats)
}

// Initialize adds seats to a flight.
func (h *FlightHandler) Initialize(c echo.Context) error {
	key := c.Param("key")
	if strings.TrimSpace(key) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "flight key is required"})
	}
	var req initializeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(req.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
	}
	ctx := c.Request().Context()
	err := h.Dir.With(ctx, key, func(f *seating.FlightSeating) error {
		return f.Initialize(ctx, req.Seats)
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.afterWrite(ctx, queue.NewSeatsInitialized(key, req.Seats))
	return c.JSON(http.StatusCreated, echo.Map{"flight": key, "seats": len(req.Seats)})
}

// Assign puts an occupant on a seat.
func (h *FlightHandler) Assign(c echo.Context) error {
	key, seat := c.Param("key"), c.Param("seat")
	if strings.TrimSpace(key) == "" || strings.TrimSpace(seat) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "flight key and seat are required"})
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Occupant == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "occupant is required"})
	}
	ctx := c.Request().Context()
	err := h.Dir.With(ctx, key, func(f *seating.FlightSeating) error {
		return f.AssignSeat(ctx, seat, req.Occupant)
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.afterWrite(ctx, queue.NewSeatAssigned(key, seat, req.Occupant))
	return c.NoContent(http.StatusNoContent)
}

// afterWrite invalidates the cached availability and publishes ev. Both
// are best effort.
func (h *FlightHandler) afterWrite(ctx context.Context, ev queue.SeatEvent) {
	ctx = context.WithoutCancel(ctx)
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, ev.FlightKey); err != nil {
			h.Logger.Warn("cache invalidation failed", "flight", ev.FlightKey, "error", err)
		}
	}
	if h.Publisher != nil {
		if err := h.Publisher.PublishSeatEvent(ctx, ev); err != nil {
			h.Logger.Warn("publishing seat event failed", "flight", ev.FlightKey, "event", ev.Type, "error", err)
		}
	}
}

// fail maps seating errors to responses.
func (h *FlightHandler) fail(c echo.Context, err error) error {
	var dup *repository.DuplicateSeatError
	switch {
	case errors.As(err, &dup):
		return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate_seat", "seat": dup.SeatID})
	case errors.Is(err, repository.ErrDuplicateSeat):
		return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate_seat"})
	case errors.Is(err, repository.ErrSeatAlreadyOccupied):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat_already_occupied"})
	case errors.Is(err, repository.ErrSeatNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "seat_not_found"})
	case errors.Is(err, repository.ErrInvalidArgument):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_argument"})
	case errors.Is(err, seating.ErrDirectoryClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable"})
	}
	switch seating.CodeOf(err) {
	case actor.ErrShutdown, actor.ErrTimeout, actor.ErrCanceled:
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable"})
	}
	h.Logger.Error("seat operation failed", "path", c.Path(), "flight", c.Param("key"), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage_failure"})
}
