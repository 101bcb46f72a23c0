package seating

import (
	"context"
	"errors"
	"fmt"

	"tideland.dev/go/actor"
)

// actionError carries an error produced inside an action through the
// actor, so it can be told apart from errors of the actor itself.
type actionError struct {
	err error
}

func (e *actionError) Error() string { return e.err.Error() }
func (e *actionError) Unwrap() error { return e.err }

// CodeOf returns the actor error code in err's chain, or actor.ErrNone for
// errors of the seat store and business rules.
func CodeOf(err error) actor.ErrorCode {
	var ae *actor.ActorError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return actor.ErrNone
}

func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return actor.NewError(op, err, actor.ErrTimeout)
	}
	return actor.NewError(op, err, actor.ErrCanceled)
}

// run executes fn on the flight's actor. An action whose caller gave up
// before it was dequeued is skipped; one that already started runs to
// completion while the caller returns. A panic in fn stops the actor.
func (f *FlightSeating) run(ctx context.Context, op string, fn func(s *flightState) error) error {
	if err := ctx.Err(); err != nil {
		return contextError(op, err)
	}
	result := make(chan error, 1)
	go func() {
		err := f.act.DoWithError(func(s *flightState) error {
			if err := ctx.Err(); err != nil {
				return &actionError{contextError(op, err)}
			}
			return guard(op, s, fn)
		})
		var ae *actionError
		switch {
		case err == nil:
		case errors.As(err, &ae):
			err = ae.err
		case f.act.IsRunning():
			err = actor.NewError(op, err, actor.ErrTimeout)
		default:
			err = actor.NewError(op, err, actor.ErrShutdown)
		}
		if CodeOf(err) == actor.ErrPanic {
			f.logger.Error("seat action panicked, stopping actor", "op", op, "error", err)
			f.act.Stop()
		}
		result <- err
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return contextError(op, ctx.Err())
	}
}

func guard(op string, s *flightState, fn func(s *flightState) error) (err error) {
	defer func() {
		if reason := recover(); reason != nil {
			err = &actionError{actor.NewError(op, fmt.Errorf("panic: %v", reason), actor.ErrPanic)}
		}
	}()
	if ferr := fn(s); ferr != nil {
		return &actionError{ferr}
	}
	return nil
}
