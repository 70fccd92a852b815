package gameerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the game core. Shared by game, storage, auth and web
// so that none of them has to import another just to compare errors.
var (
	ErrValidation       = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrGameFull         = errors.New("game is full")
	ErrAlreadyJoined    = errors.New("already joined this game")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrGameCompleted    = errors.New("game already completed")
	ErrInvalidSelection = errors.New("invalid tile selection")
	ErrSeeding          = errors.New("not enough cards to seed board")
	ErrPersistence      = errors.New("storage failure")
	ErrNotOwner         = errors.New("only the game owner may do this")
	ErrUnauthenticated  = errors.New("not signed in")
)

// PersistenceError wraps a storage driver failure with the operation that
// produced it. errors.Is(err, ErrPersistence) holds for every PersistenceError.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes every PersistenceError match ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err as a PersistenceError. A nil err stays nil, and errors
// that already belong to the taxonomy are returned unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if Known(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// NotFound returns ErrNotFound annotated with what was missing.
func NotFound(what string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
}

// ValidationError carries a reason that is safe to show to the user.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return ErrValidation.Error() + ": " + e.Reason }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation returns a ValidationError for reason.
func Validation(reason string) error {
	return &ValidationError{Reason: reason}
}

var taxonomy = []error{
	ErrValidation, ErrNotFound, ErrGameFull, ErrAlreadyJoined, ErrNotYourTurn,
	ErrGameCompleted, ErrInvalidSelection, ErrSeeding, ErrPersistence,
	ErrNotOwner, ErrUnauthenticated,
}

// Known reports whether err wraps one of the sentinels above.
func Known(err error) bool {
	for _, s := range taxonomy {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// Message returns a user-facing message for err. Storage details and
// unexpected errors are never exposed.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Reason != "" {
			return strings.ToUpper(ve.Reason[:1]) + ve.Reason[1:] + "."
		}
		return "Please check your input and try again."
	case errors.Is(err, ErrNotFound):
		return "Game not found."
	case errors.Is(err, ErrGameFull):
		return "Game is full or already started."
	case errors.Is(err, ErrAlreadyJoined):
		return "You have already joined this game."
	case errors.Is(err, ErrNotYourTurn):
		return "It is not your turn."
	case errors.Is(err, ErrGameCompleted):
		return "This game is already over."
	case errors.Is(err, ErrInvalidSelection):
		return "That tile cannot be selected."
	case errors.Is(err, ErrNotOwner):
		return "Only the player who created the game can delete it."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in first."
	case errors.Is(err, ErrSeeding):
		return "The board could not be prepared. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}
