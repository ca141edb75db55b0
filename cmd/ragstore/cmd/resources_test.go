package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadResourcesJSONArray(t *testing.T) {
	// Given a JSON array of resources
	path := writeTempFile(t, "resources.json", `[
		{"id": "doc-1", "filePath": "a.md", "content": "alpha"},
		{"id": "doc-2", "filePath": "b.md", "content": "beta", "frontmatter": {"type": "guide"}}
	]`)

	// When loading the file
	resources, err := loadResources(path)

	// Then both resources parse with their fields intact
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "doc-1", resources[0].ID)
	assert.Equal(t, "alpha", resources[0].Content)
	assert.Equal(t, "guide", resources[1].Frontmatter["type"])
}

func TestLoadResourcesJSONL(t *testing.T) {
	// Given newline-delimited JSON with a blank line in the middle
	path := writeTempFile(t, "resources.jsonl",
		`{"id": "doc-1", "content": "alpha"}

{"id": "doc-2", "content": "beta"}
`)

	resources, err := loadResources(path)

	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "doc-2", resources[1].ID)
}

func TestLoadResourcesMalformedLineReportsLineNumber(t *testing.T) {
	path := writeTempFile(t, "resources.jsonl",
		`{"id": "doc-1", "content": "alpha"}
{not json}
`)

	_, err := loadResources(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadResourcesMissingFile(t *testing.T) {
	_, err := loadResources(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestFilterByID(t *testing.T) {
	path := writeTempFile(t, "resources.jsonl",
		`{"id": "doc-1", "content": "alpha"}
{"id": "doc-2", "content": "beta"}
`)
	resources, err := loadResources(path)
	require.NoError(t, err)

	assert.Len(t, filterByID(resources, "doc-2"), 1)
	assert.Nil(t, filterByID(resources, "doc-9"))
}
