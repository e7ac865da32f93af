package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../harness/testdata/scenarios"

func TestTestCommand_Passes(t *testing.T) {
	out, err := execute(t, "test", scenarioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ ")
	assert.Contains(t, out, "2 passed, 0 failed, 2 total")
}

func TestTestCommand_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", filepath.Join(scenarioDir, "allowance_weekly.yaml"))
	require.NoError(t, err)

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Scenarios, 1)
	assert.True(t, result.Scenarios[0].Pass)
}

func TestTestCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	broken := `name: emma_opens_own_account
steps:
  - create: AllowanceAccount
    as: emma
    payload:
      parent: parent
      child: emma
      childName: Emma
      balance: "20.00"
      weeklyAmount: "10.00"
      currency: USD
      lastPaymentDate: "2024-01-01"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(broken), 0o644))

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Scenarios, 1)
	assert.False(t, result.Scenarios[0].Pass)
	assert.NotEmpty(t, result.Scenarios[0].Errors)
}

func TestTestCommand_MissingPath(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nowhere"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
