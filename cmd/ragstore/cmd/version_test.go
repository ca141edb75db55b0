package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runVersionCmd(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestVersionCmdDefault(t *testing.T) {
	out := runVersionCmd(t)
	assert.Contains(t, out, "ragstore")
}

func TestVersionCmdShort(t *testing.T) {
	out := runVersionCmd(t, "--short")
	assert.NotContains(t, out, "commit")
}

func TestVersionCmdJSON(t *testing.T) {
	out := runVersionCmd(t, "--json")

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["os"])
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "2.5 MB", formatBytes(int64(2.5*1024*1024)))
}
