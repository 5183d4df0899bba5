package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The run command's flag state is package-level, so the error paths are
// exercised in one ordered test instead of independent tests.
func TestRunCommand_RequiredInputs(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")

	// No run id anywhere
	err := runPipelineCmd(runCommand, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--run-id is required")

	// Run id set but no database URL
	require.NoError(t, runCommand.Flags().Set("run-id", "run-1"))
	err = runPipelineCmd(runCommand, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	// Similarity strategy needs an API key before any connection is made
	require.NoError(t, runCommand.Flags().Set("db-url", "postgres://localhost/campaigns"))
	require.NoError(t, runCommand.Flags().Set("strategy", "similarity"))
	err = runPipelineCmd(runCommand, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestRunCommand_RejectsUnknownStrategyFromConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	content := `{"run_id": "run-1", "strategy": "astrology"}`
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

	require.NoError(t, runCommand.Flags().Set("config", tmpFile))
	defer func() { _ = runCommand.Flags().Set("config", "") }()

	err := runPipelineCmd(runCommand, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Strategy")
}
