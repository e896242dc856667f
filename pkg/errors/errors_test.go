package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineError_Error(t *testing.T) {
	err := NewTimeoutError("generation attempt timed out")
	assert.Contains(t, err.Error(), "timeout_error")
	assert.Contains(t, err.Error(), "generation attempt timed out")
	assert.Contains(t, err.Error(), CodeGenerationFailure)
}

func TestEngineError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want int
	}{
		{"invalid input", NewInvalidInputError("too short"), http.StatusBadRequest},
		{"timeout", NewTimeoutError("deadline"), http.StatusGatewayTimeout},
		{"transport", NewTransportError("connection reset"), http.StatusBadGateway},
		{"exhausted", NewGenerationExhaustedError("all attempts failed"), http.StatusBadGateway},
		{"store", NewStoreUnavailableError("redis down"), http.StatusServiceUnavailable},
		{"zero status falls back to 500", &EngineError{Message: "x"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatusCode())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTimeoutError("t")))
	assert.True(t, IsRetryable(NewTransportError("t")))
	assert.True(t, IsRetryable(NewMalformedOutputError("bad json")))
	assert.True(t, IsRetryable(NewValidationError("empty explanation")))
	assert.False(t, IsRetryable(NewInvalidInputError("short")))
	assert.False(t, IsRetryable(NewGenerationExhaustedError("done")))
	assert.False(t, IsRetryable(nil))

	// Unclassified errors are treated as transient transport faults.
	assert.True(t, IsRetryable(stderrors.New("boom")))
}

func TestIsRetryable_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("attempt 2: %w", NewGenerationExhaustedError("done"))
	assert.False(t, IsRetryable(wrapped))
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, CodeInvalidInput, CodeOf(NewInvalidInputError("short")))
	require.Equal(t, CodeValidationFailure, CodeOf(NewValidationError("empty")))
	require.Equal(t, CodeGenerationFailure, CodeOf(stderrors.New("unknown")))
}
