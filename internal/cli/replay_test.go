package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/store"
)

func TestReplay_Text(t *testing.T) {
	cfg := withdrawOnce(t)

	out, err := execute(t, "-c", cfg, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 2 transition(s), last seq 2")
	assert.Contains(t, out, "Active contracts: 1")
	assert.Contains(t, out, "AllowanceAccount")
	assert.Contains(t, out, "✓ Journal verified deterministic")
}

func TestReplay_JSON(t *testing.T) {
	cfg := withdrawOnce(t)

	out, err := execute(t, "-c", cfg, "--format", "json", "replay")
	require.NoError(t, err)

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, result.Transitions)
	assert.Equal(t, int64(2), result.LastSeq)
	assert.Equal(t, 1, result.Active)
	assert.Equal(t, map[string]int{"AllowanceAccount": 1}, result.ByTemplate)
	assert.True(t, result.Deterministic)
}

func TestReplay_EmptyJournal(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := execute(t, "-c", cfg, "--format", "json", "replay")
	require.NoError(t, err)

	var result ReplayResult
	decodeResponse(t, out, &result)
	assert.Zero(t, result.Transitions)
	assert.Zero(t, result.Active)
	assert.True(t, result.Deterministic)
}

func TestReplay_DetectsTampering(t *testing.T) {
	cfg := withdrawOnce(t)

	st, err := store.Open(filepath.Join(filepath.Dir(cfg), "ledger.db"))
	require.NoError(t, err)
	_, err = st.DB().Exec("UPDATE contracts SET status = 'active' WHERE id = 1")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "-c", cfg, "--format", "json", "replay")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDeterminism, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "corrupt journal")
}

func TestReplay_RequiresJournal(t *testing.T) {
	_, err := execute(t, "replay")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no journal configured")
}
