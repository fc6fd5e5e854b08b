package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes into the families callers react to.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindAuthorization Kind = "authorization"
	KindCapacity      Kind = "capacity"
	KindNotFound      Kind = "not_found"
	KindStorage       Kind = "storage"
	KindInternal      Kind = "internal"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string                 `json:"code"`
	Kind      Kind                   `json:"kind"`
	Message   string                 `json:"message"`
	Status    int                    `json:"status"`
	Retryable bool                   `json:"retryable,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Err       error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so cloned errors still compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, kind Kind, status int, message string) *Error {
	return &Error{Code: code, Kind: kind, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	wrapped := &Error{Code: code, Kind: KindInternal, Status: status, Message: message, Err: err}
	if known, ok := templatesByCode[code]; ok {
		wrapped.Kind = known.Kind
		wrapped.Retryable = known.Retryable
	}
	return wrapped
}

// Predefined errors.
var (
	ErrValidation           = New("VALIDATION_ERROR", KindValidation, http.StatusBadRequest, "validation failed")
	ErrInvalidField         = New("INVALID_FIELD", KindValidation, http.StatusBadRequest, "invalid field value")
	ErrInvalidTimeRange     = New("INVALID_TIME_RANGE", KindValidation, http.StatusBadRequest, "start_time must be before end_time")
	ErrInvalidTransition    = New("INVALID_TRANSITION", KindState, http.StatusConflict, "invalid status transition")
	ErrParentNotApproved    = New("PARENT_NOT_APPROVED", KindState, http.StatusConflict, "parent event is not approved")
	ErrParentCompleted      = New("PARENT_COMPLETED", KindState, http.StatusConflict, "parent event is completed")
	ErrTargetNotOpen        = New("TARGET_NOT_OPEN", KindState, http.StatusConflict, "target is not open for registration")
	ErrTargetNotRegistrable = New("TARGET_NOT_REGISTRABLE", KindState, http.StatusConflict, "target does not accept registrations")
	ErrEventNotEnded        = New("EVENT_NOT_ENDED", KindState, http.StatusConflict, "event has not reached its scheduled end")
	ErrNotEditable          = New("NOT_EDITABLE", KindState, http.StatusConflict, "entity cannot be edited in its current state")
	ErrStaleVersion         = New("STALE_VERSION", KindState, http.StatusConflict, "entity was modified concurrently")
	ErrConflict             = New("CONFLICT", KindState, http.StatusConflict, "conflict")
	ErrUnauthorized         = New("UNAUTHORIZED", KindAuthorization, http.StatusUnauthorized, "unauthorized")
	ErrForbidden            = New("FORBIDDEN", KindAuthorization, http.StatusForbidden, "forbidden")
	ErrInactiveAccount      = New("ACCOUNT_INACTIVE", KindAuthorization, http.StatusForbidden, "account is inactive")
	ErrPrincipalRole        = New("PRINCIPAL_ROLE_MISMATCH", KindAuthorization, http.StatusForbidden, "principal role cannot hold an internal registration")
	ErrTargetFull           = New("TARGET_FULL", KindCapacity, http.StatusConflict, "no seats remaining")
	ErrDuplicateReg         = New("DUPLICATE_REGISTRATION", KindCapacity, http.StatusConflict, "an active registration already exists")
	ErrNotFound             = New("NOT_FOUND", KindNotFound, http.StatusNotFound, "resource not found")
	ErrParentNotFound       = New("PARENT_NOT_FOUND", KindNotFound, http.StatusNotFound, "parent event not found")
	ErrUnknownRole          = New("UNKNOWN_ROLE", KindStorage, http.StatusInternalServerError, "stored role is outside the known set")
	ErrStorageUnavailable   = &Error{Code: "STORAGE_UNAVAILABLE", Kind: KindStorage, Status: http.StatusServiceUnavailable, Message: "storage unavailable", Retryable: true}
	ErrInternal             = New("INTERNAL_ERROR", KindInternal, http.StatusInternalServerError, "internal server error")
)

var templatesByCode = map[string]*Error{}

func init() {
	for _, e := range []*Error{
		ErrValidation, ErrInvalidField, ErrInvalidTimeRange, ErrInvalidTransition,
		ErrParentNotApproved, ErrParentCompleted, ErrTargetNotOpen, ErrTargetNotRegistrable,
		ErrEventNotEnded, ErrNotEditable, ErrStaleVersion, ErrConflict, ErrUnauthorized, ErrForbidden, ErrInactiveAccount,
		ErrPrincipalRole, ErrTargetFull, ErrDuplicateReg, ErrNotFound, ErrParentNotFound,
		ErrUnknownRole, ErrStorageUnavailable, ErrInternal,
	} {
		templatesByCode[e.Code] = e
	}
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	if err.Details != nil {
		clone.Details = make(map[string]interface{}, len(err.Details))
		for k, v := range err.Details {
			clone.Details[k] = v
		}
	}
	return &clone
}

// WithDetails returns a copy of err carrying the provided details.
func WithDetails(err *Error, message string, details map[string]interface{}) *Error {
	clone := Clone(err, message)
	if clone == nil {
		return nil
	}
	if clone.Details == nil {
		clone.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		clone.Details[k] = v
	}
	return clone
}

// KindOf reports the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return FromError(err).Kind
}

// IsRetryable reports whether the caller may retry the request unchanged.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
