// Package errs carries the service's error taxonomy. Check-in and
// issuance failures must reach the front-desk operator with a reason
// specific enough to act on, so every domain error carries a Kind and a
// human-readable Details string alongside the wrapped cause.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	NotFound              Kind = "not_found"
	InvalidInput          Kind = "invalid_input"
	Unauthorized          Kind = "unauthorized"
	Forbidden             Kind = "forbidden"
	NotConfigured         Kind = "not_configured"
	EventNotStarted       Kind = "event_not_started"
	EventEnded            Kind = "event_ended"
	NotAuthorizedToday    Kind = "not_authorized_today"
	AlreadyUsed           Kind = "already_used"
	AlreadyCheckedInToday Kind = "already_checked_in_today"
	UndoExpired           Kind = "undo_expired"
	UnauthorizedUndo      Kind = "unauthorized_undo"
	NothingToUndo         Kind = "nothing_to_undo"
	PaymentNotCompleted   Kind = "payment_not_completed"
	AccountCreationFailed Kind = "account_creation_failed"
	ScanInProgress        Kind = "scan_in_progress"
	Internal              Kind = "internal"
)

type Error struct {
	Kind    Kind
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, details string) *Error {
	return &Error{Kind: kind, Details: details}
}

func Wrap(kind Kind, details string, err error) *Error {
	return &Error{Kind: kind, Details: details, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// DetailsOf extracts the operator-readable details from an error chain.
// Internal errors deliberately surface a generic message.
func DetailsOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return "internal error"
}

// HTTPStatus maps an error kind to the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden, UnauthorizedUndo:
		return http.StatusForbidden
	case NotConfigured, EventNotStarted, EventEnded, NotAuthorizedToday,
		AlreadyUsed, AlreadyCheckedInToday, UndoExpired, NothingToUndo:
		return http.StatusConflict
	case PaymentNotCompleted:
		return http.StatusPaymentRequired
	case ScanInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
