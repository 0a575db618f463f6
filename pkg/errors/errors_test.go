package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		require.NotNil(t, err)
		assert.Equal(t, ErrCodeInvalidConfig, err.Code)
		assert.Equal(t, "configuration is invalid", err.Message)
		assert.Equal(t, CategoryConfiguration, err.Category)
		assert.NotNil(t, err.Details)
		assert.NotNil(t, err.Context)
		assert.False(t, err.Timestamp.IsZero())
	})

	t.Run("sets correct retryable defaults", func(t *testing.T) {
		assert.True(t, NewError(ErrCodeNetworkError, "down").Retryable)
		assert.False(t, NewError(ErrCodeDuplicateName, "dup").Retryable)
		assert.False(t, NewError(ErrCodeInvalidArgument, "blank").Retryable)
	})

	t.Run("sets correct HTTP status defaults", func(t *testing.T) {
		tests := []struct {
			code       ErrorCode
			wantStatus int
		}{
			{ErrCodeInvalidArgument, 400},
			{ErrCodeAuthenticationFailed, 401},
			{ErrCodeLookupNotFound, 404},
			{ErrCodeDuplicateName, 409},
			{ErrCodeTaskRejected, 429},
			{ErrCodeInternalError, 500},
			{ErrCodeNoHealthChecks, 501},
			{ErrCodeOperationTimeout, 504},
		}

		for _, tt := range tests {
			err := NewError(tt.code, "test")
			assert.Equal(t, tt.wantStatus, err.HTTPStatus, tt.code)
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidArgument, CategoryArgument},
		{ErrCodeDuplicateName, CategoryNaming},
		{ErrCodeKindMismatch, CategoryNaming},
		{ErrCodeUnsupportedOperation, CategoryOperation},
		{ErrCodeLookupNotFound, CategoryLookup},
		{ErrCodeNoHealthChecks, CategoryLookup},
		{ErrCodeAlreadyConfigured, CategoryState},
		{ErrCodeTaskRejected, CategoryResource},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeNetworkError, CategoryConnection},
		{ErrCodeAuthenticationFailed, CategoryAuth},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetCategory(tt.code))
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := DuplicateName("Worker.errorsMeter")
	assert.True(t, errors.Is(err, ErrDuplicateName))
	assert.False(t, errors.Is(err, ErrInvalidArgument))

	wrapped := fmt.Errorf("registering: %w", err)
	assert.True(t, errors.Is(wrapped, ErrDuplicateName))
	assert.True(t, IsCode(wrapped, ErrCodeDuplicateName))
	assert.False(t, IsCode(wrapped, ErrCodeLookupNotFound))
	assert.False(t, IsCode(nil, ErrCodeLookupNotFound))

	var me *MonitoringError
	require.True(t, errors.As(wrapped, &me))
	assert.Equal(t, "Worker.errorsMeter", me.Details["name"])
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	t.Run("without component", func(t *testing.T) {
		err := InvalidArgument("top-level name must not be blank")
		assert.Equal(t, "INVALID_ARGUMENT: top-level name must not be blank", err.Error())
	})

	t.Run("with component and operation", func(t *testing.T) {
		err := UnsupportedOperation("Inc").WithComponent("metrics")
		assert.Equal(t, "[metrics:Inc] UNSUPPORTED_OPERATION: Inc is not supported on a read-only metric", err.Error())
	})

	t.Run("sentinel without message", func(t *testing.T) {
		assert.Equal(t, "TASK_REJECTED: task rejected", ErrRejected.Error())
	})

	t.Run("cause is unwrapped", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := NewError(ErrCodeConnectionFailed, "graphite unreachable").WithCause(cause)
		assert.ErrorIs(t, err, cause)
		assert.True(t, strings.HasSuffix(err.Error(), "dial tcp: refused"))
		assert.Contains(t, err.String(), `Cause="dial tcp: refused"`)
	})
}

func TestLookupNotFound(t *testing.T) {
	t.Parallel()

	err := LookupNotFound("health check", "db")
	assert.Equal(t, ErrCodeLookupNotFound, err.Code)
	assert.Equal(t, 404, err.HTTPStatus)
	assert.Contains(t, err.Error(), `health check "db" not found`)
	assert.False(t, errors.Is(err, ErrNoHealthChecks))
}
