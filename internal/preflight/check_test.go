package preflight

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstore/ragstore/internal/embed"
)

func TestCheckWritePermissionsCreatesDirectory(t *testing.T) {
	// Given a store directory that does not exist yet
	checker := New()
	storeDir := filepath.Join(t.TempDir(), "index")

	// When checking write permissions
	result := checker.CheckWritePermissions(storeDir)

	// Then the check passes and the directory is usable
	assert.Equal(t, StatusPass, result.Status)
	assert.True(t, result.Required)
}

func TestCheckDiskSpace(t *testing.T) {
	checker := New()

	result := checker.CheckDiskSpace(t.TempDir())

	// Temp dirs in CI always have headroom beyond the 100MB floor.
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "free")
}

func TestCheckEmbedderStatic(t *testing.T) {
	checker := New()
	embedder := embed.NewStaticEmbedder()

	result := checker.CheckEmbedder(context.Background(), embedder)

	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, embed.StaticModelName)
}

func TestCheckEmbedderNil(t *testing.T) {
	checker := New()

	result := checker.CheckEmbedder(context.Background(), nil)

	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestRunAllAndSummary(t *testing.T) {
	var buf bytes.Buffer
	checker := New(WithOutput(&buf), WithVerbose(true))

	results := checker.RunAll(context.Background(), t.TempDir(), embed.NewStaticEmbedder())

	require.Len(t, results, 3)
	assert.False(t, checker.HasCriticalFailures(results))
	assert.Equal(t, "ready", checker.SummaryStatus(results))

	checker.PrintResults(results)
	assert.Contains(t, buf.String(), "Status: ready")
}

func TestSummaryStatusFailed(t *testing.T) {
	checker := New()
	results := []CheckResult{
		{Name: "write_permissions", Status: StatusFail, Required: true},
	}

	assert.True(t, checker.HasCriticalFailures(results))
	assert.Equal(t, "failed", checker.SummaryStatus(results))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
}
