package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "resource not found", (&AppError{Code: ErrCodeNotFound, Message: "resource not found"}).Error())
	assert.Equal(t, "failed: underlying",
		(&AppError{Code: ErrCodeInternal, Message: "failed", Cause: errors.New("underlying")}).Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped error")
	assert.ErrorIs(t, err, cause)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err  *AppError
		code ErrorCode
		msg  string
	}{
		{NotFound("missing"), ErrCodeNotFound, "missing"},
		{NotFoundf("account %s", "a1"), ErrCodeNotFound, "account a1"},
		{Conflict("dup"), ErrCodeConflict, "dup"},
		{Validation("bad"), ErrCodeValidation, "bad"},
		{Validationf("bad %d", 1), ErrCodeValidation, "bad 1"},
		{Unauthorized("nope"), ErrCodeUnauthorized, "nope"},
		{Internal("oops"), ErrCodeInternal, "oops"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code)
		assert.Equal(t, tt.msg, tt.err.Message)
	}

	// A literal percent sign survives when no args are given.
	assert.Equal(t, "100% wrong", Validation("100% wrong").Message)
}

func TestValidationField(t *testing.T) {
	err := ValidationField("email", "invalid email")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "email", GetField(err))
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "x %d", 1))
}

func TestPredicatesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("inner"))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
	assert.Equal(t, ErrCodeNotFound, GetCode(err))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Equal(t, "", GetField(errors.New("plain")))

	assert.True(t, IsUnauthorized(Wrapf(errors.New("x"), ErrCodeUnauthorized, "login %s", "failed")))
}
