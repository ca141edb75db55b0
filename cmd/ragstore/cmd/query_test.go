package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstore/ragstore/internal/errors"
)

func TestBuildFilters(t *testing.T) {
	filters, err := buildFilters(
		[]string{"doc-1", "doc-2"},
		[]string{"type=guide", "author=ada"},
		"2026-01-01",
		"2026-06-30T12:00:00Z",
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, filters.ResourceIDs)
	assert.Equal(t, "guide", filters.Metadata["type"])
	assert.Equal(t, "ada", filters.Metadata["author"])
	require.NotNil(t, filters.DateRange)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), filters.DateRange.From)
	assert.Equal(t, 12, filters.DateRange.To.Hour())
}

func TestBuildFiltersEmpty(t *testing.T) {
	filters, err := buildFilters(nil, nil, "", "")

	require.NoError(t, err)
	assert.Nil(t, filters.Metadata)
	assert.Nil(t, filters.DateRange)
}

func TestBuildFiltersRejectsMalformedMeta(t *testing.T) {
	_, err := buildFilters(nil, []string{"typeguide"}, "", "")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidQuery, errors.GetCode(err))
}

func TestParseTimeFlagRejectsGarbage(t *testing.T) {
	_, err := parseTimeFlag("yesterday")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidQuery, errors.GetCode(err))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n\nb\tc", 100))
	assert.Equal(t, "abcde...", snippet("abcdefgh", 5))
}
