package services

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and response mapping.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is bad input shape, rejected before touching state.
	KindValidation
	// KindRejection is an expected, user-facing refusal. The caller corrects it.
	KindRejection
	// KindConflict means the caller raced another writer and must refetch.
	KindConflict
	// KindTransient is an infrastructure failure that was already retried.
	KindTransient
	// KindFatal means the worker and the local record may have diverged.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejection:
		return "rejection"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DomainError is a sentinel with a stable machine-readable code.
type DomainError struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches by code so copies of a sentinel compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

func newDomainError(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation = newDomainError(KindValidation, "VALIDATION_ERROR", "invalid input")

	ErrNotFound         = newDomainError(KindRejection, "NOT_FOUND", "not found")
	ErrForbidden        = newDomainError(KindRejection, "FORBIDDEN", "not permitted")
	ErrInvalidTarget    = newDomainError(KindRejection, "INVALID_TARGET", "cannot invite yourself")
	ErrDuplicatePending = newDomainError(KindRejection, "DUPLICATE_PENDING", "a pending invitation already exists for this pair")
	ErrUserBusy         = newDomainError(KindRejection, "USER_BUSY", "player already has an active game")
	ErrExpired          = newDomainError(KindRejection, "EXPIRED", "invitation has expired")
	ErrAlreadyResolved  = newDomainError(KindRejection, "ALREADY_RESOLVED", "invitation is no longer pending")
	ErrIllegalMove      = newDomainError(KindRejection, "ILLEGAL_MOVE", "illegal move")
	ErrNotYourTurn      = newDomainError(KindRejection, "NOT_YOUR_TURN", "it is not your turn")
	ErrGameAlreadyOver  = newDomainError(KindRejection, "GAME_ALREADY_OVER", "game is already over")

	ErrInvalidCredentials = newDomainError(KindRejection, "INVALID_CREDENTIALS", "invalid credentials")
	ErrNameTaken          = newDomainError(KindRejection, "NAME_TAKEN", "name or email already registered")
	ErrTokenInvalid       = newDomainError(KindRejection, "TOKEN_INVALID", "invalid or expired token")

	ErrStaleSequence = newDomainError(KindConflict, "STALE_SEQUENCE", "game has moved on; refetch and resubmit")

	ErrWorkerUnavailable = newDomainError(KindTransient, "WORKER_UNAVAILABLE", "move worker unavailable")

	ErrFatalInconsistency = newDomainError(KindFatal, "FATAL_INCONSISTENCY", "accepted move could not be recorded")
)

// KindOf returns the kind of the outermost DomainError in err's chain.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the outermost DomainError in err's chain, or "INTERNAL".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
