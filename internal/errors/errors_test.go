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
		name     string
		code     string
		category Category
		severity Severity
	}{
		{"config is fatal", ErrCodeConfigInvalid, CategoryConfig, SeverityFatal},
		{"model mismatch is fatal", ErrCodeModelMismatch, CategoryConfig, SeverityFatal},
		{"store is recoverable", ErrCodeStoreWrite, CategoryStore, SeverityError},
		{"provider is recoverable", ErrCodeEmbeddingFailed, CategoryProvider, SeverityError},
		{"no data is a query error", ErrCodeNoDataIndexed, CategoryQuery, SeverityError},
		{"chunking is internal", ErrCodeChunkingFailed, CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestRagError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("query failed: %w", NoDataIndexed())

	assert.True(t, stderrors.Is(err, NoDataIndexed()))
	assert.False(t, stderrors.Is(err, New(ErrCodeInvalidQuery, "other", nil)))
}

func TestRagError_UnwrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(ErrCodeStoreWrite, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeProviderUnavailable, "ollama down", nil)))
	assert.True(t, IsRetryable(New(ErrCodeEmbeddingFailed, "timeout", nil)))
	assert.False(t, IsRetryable(New(ErrCodeConfigInvalid, "bad yaml", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ModelMismatch("a", "b")))
	assert.False(t, IsFatal(New(ErrCodeStoreWrite, "write failed", nil)))
	assert.False(t, IsFatal(nil))
}

func TestModelMismatch_CarriesBothModels(t *testing.T) {
	err := ModelMismatch("nomic-embed-text", "text-embedding-3-small")

	assert.Equal(t, "nomic-embed-text", err.Details["index_model"])
	assert.Equal(t, "text-embedding-3-small", err.Details["query_model"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestFormatForCLI_IncludesSuggestionAndCode(t *testing.T) {
	out := FormatForCLI(NoDataIndexed())

	assert.Contains(t, out, "no data indexed yet")
	assert.Contains(t, out, "Suggestion:")
	assert.Contains(t, out, ErrCodeNoDataIndexed)
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(stderrors.New("plain failure"))

	assert.Contains(t, out, "plain failure")
	assert.Contains(t, out, ErrCodeInternal)
}
