// Package shared holds the error kinds, events and value objects that every
// campus domain package uses. It imports only the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; DomainError carries one as Kind.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInvalidState = errors.New("invalid state")

	// Failures of the face and transcription services.
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError is a failed operation in one domain, classified by Kind.
type DomainError struct {
	Domain  string // "student", "attendance", "schedule", "recognition"
	Op      string
	Kind    error
	Message string
	Err     error // cause, may be nil
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the cause, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError returns an error of the given kind without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError returns an error of the given kind caused by err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Student domain errors
var (
	ErrStudentNotFound      = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrStudentAlreadyExists = NewDomainError("student", "Create", ErrAlreadyExists, "student already exists")
	ErrInvalidStudentID     = NewDomainError("student", "Validate", ErrEmptyValue, "student id cannot be empty")
	ErrInvalidYear          = NewDomainError("student", "Validate", ErrValueOutOfRange, "year must be between 1 and 4")
	ErrInvalidSection       = NewDomainError("student", "Validate", ErrInvalidInput, "section must be one of A, B, C")
)

// Attendance domain errors
var (
	ErrAttendanceAlreadyMarked = NewDomainError("attendance", "Mark", ErrAlreadyExists, "attendance already marked")
	ErrInvalidAttendanceStatus = NewDomainError("attendance", "Validate", ErrInvalidInput, "invalid attendance status")
	ErrLedgerCorrupted         = NewDomainError("attendance", "Verify", ErrInvalidState, "attendance ledger chain is broken")
)

// Schedule domain errors
var (
	ErrScheduleEntryNotFound = NewDomainError("schedule", "Find", ErrNotFound, "schedule entry not found")
	ErrInvalidDay            = NewDomainError("schedule", "Validate", ErrInvalidInput, "invalid day of week")
	ErrInvalidTimeSlot       = NewDomainError("schedule", "Validate", ErrInvalidFormat, "invalid time slot")
)

// Recognition errors
var (
	ErrNoFaceDetected        = NewDomainError("recognition", "Detect", ErrInvalidInput, "No face detected in the image")
	ErrMultipleFacesDetected = NewDomainError("recognition", "Detect", ErrInvalidInput, "Multiple faces detected. Please use an image with a single face.")
	ErrInvalidEmbedding      = NewDomainError("recognition", "Validate", ErrInvalidInput, "invalid face embedding")
	ErrFaceServiceFailed     = NewDomainError("recognition", "Request", ErrExternalService, "face service request failed")
	ErrFaceServiceTimeout    = NewDomainError("recognition", "Request", ErrTimeout, "face service request timeout")
)

// IsNotFound reports a missing student, record or timetable entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports a duplicate student or attendance mark.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation reports bad caller input of any validation kind.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrValidation, ErrInvalidInput, ErrEmptyValue, ErrInvalidFormat, ErrValueOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsExternalService reports a face or transcription service failure.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
