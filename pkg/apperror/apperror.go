package apperror

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	default:
		return "Internal"
	}
}

// Machine-readable reasons carried next to the kind.
const (
	ReasonNoCopiesAvailable   = "noCopiesAvailable"
	ReasonLoanLimitExceeded   = "loanLimitExceeded"
	ReasonDuplicateActiveLoan = "duplicateActiveLoan"
	ReasonAlreadyReturned     = "alreadyReturned"
	ReasonRenewalLimitReached = "renewalLimitReached"
	ReasonDuplicateField      = "duplicateField"
	ReasonCopiesOnLoan        = "copiesOnLoan"
)

// Error is the typed failure returned by stores and the loan ledger.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func InvalidInput(message string) error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// NotFound reports a missing entity; the entity name doubles as the reason.
func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Reason: entity, Message: entity + " not found"}
}

func Conflict(reason, message string) error {
	return &Error{Kind: KindConflict, Reason: reason, Message: message}
}

func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Unauthorized(message string) error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

func Is(err error, kind Kind, reason string) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == kind && (reason == "" || appErr.Reason == reason)
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show to API callers. Internal errors
// never expose their cause.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "the server encountered a problem and could not process your request"
}

// CanonicalUid rejects identifiers that are not uuids and returns the
// lower-case hyphenated form used for storage and lookups.
func CanonicalUid(entity, value string) (string, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return "", InvalidInput("invalid " + entity + " id")
	}
	return id.String(), nil
}
