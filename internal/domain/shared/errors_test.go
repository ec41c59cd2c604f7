package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError(t *testing.T) {
	plain := NewDomainError("student", "Find", ErrNotFound, "student not found")
	assert.EqualError(t, plain, "student.Find: student not found")
	assert.True(t, IsNotFound(plain))
	assert.Same(t, ErrNotFound, errors.Unwrap(plain))

	wrapped := WrapError("recognition", "Request", ErrTimeout, "face service request cancelled", context.DeadlineExceeded)
	assert.EqualError(t, wrapped, "recognition.Request: face service request cancelled: context deadline exceeded")
	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.True(t, IsExternalService(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsValidation(ErrInvalidStudentID))
	assert.True(t, IsValidation(ErrInvalidYear))
	assert.True(t, IsValidation(ErrInvalidTimeSlot))
	assert.False(t, IsValidation(ErrStudentNotFound))

	assert.True(t, IsAlreadyExists(ErrAttendanceAlreadyMarked))
	assert.True(t, IsExternalService(ErrFaceServiceFailed))
	assert.False(t, IsExternalService(ErrLedgerCorrupted))
	assert.False(t, IsExternalService(nil))
}
