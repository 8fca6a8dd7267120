package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"store open is fatal", ErrCodeStoreOpen, CategoryStore, SeverityFatal, false},
		{"network is retryable", ErrCodeNetworkUnavailable, CategoryNetwork, SeverityWarning, true},
		{"validation", ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
		{"embedding degrades", ErrCodeEmbeddingFailed, CategoryInternal, SeverityWarning, false},
		{"search failure", ErrCodeSearchFailed, CategoryInternal, SeverityError, false},
		{"short code", "ERR", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "msg", nil)

			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestRecallError_ErrorAndUnwrap(t *testing.T) {
	// Given: a store error wrapping a driver error
	cause := stderrors.New("database is locked")
	err := New(ErrCodeStoreRead, "load fragments", cause)

	// Then: message carries the code and the cause is reachable
	assert.Equal(t, "[ERR_202_STORE_READ] load fragments", err.Error())
	assert.True(t, stderrors.Is(err, cause))
}

func TestRecallError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("hydrate: %w", New(ErrCodeSearchFailed, "boom", nil))

	assert.True(t, stderrors.Is(err, New(ErrCodeSearchFailed, "", nil)))
	assert.False(t, stderrors.Is(err, New(ErrCodeStoreRead, "", nil)))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHelpers_LookThroughWrapping(t *testing.T) {
	// Given: a retryable error wrapped twice with fmt.Errorf
	inner := NetworkError("ollama unreachable", nil).WithDetail("host", "localhost:11434")
	err := fmt.Errorf("embed query: %w", fmt.Errorf("attempt: %w", inner))

	// Then: helpers find it in the chain
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
	assert.Equal(t, ErrCodeNetworkUnavailable, GetCode(err))
	assert.Equal(t, CategoryNetwork, GetCategory(err))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}

func TestFormatForCLI(t *testing.T) {
	err := ConfigError("rrf_constant must be positive", nil).
		WithSuggestion("set search.rrf_constant to 60")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: rrf_constant must be positive")
	assert.Contains(t, out, "Hint: set search.rrf_constant to 60")
	assert.Contains(t, out, "Code: ERR_102_CONFIG_INVALID")
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_WrapsPlainErrors(t *testing.T) {
	data, err := FormatJSON(stderrors.New("unexpected"))
	require.NoError(t, err)

	assert.Contains(t, string(data), `"code":"ERR_501_INTERNAL"`)
	assert.Contains(t, string(data), `"cause":"unexpected"`)
}
