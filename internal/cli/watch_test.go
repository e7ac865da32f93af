package cli

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/feed"
	"github.com/roach88/ledgerd/internal/ir"
)

// feedConfig writes a config whose feed points at a fresh miniredis.
func feedConfig(t *testing.T) string {
	t.Helper()
	mr := miniredis.RunT(t)
	return writeConfig(t, "feed:\n  addr: \""+mr.Addr()+"\"\n  namespace: cli\n")
}

func decodeEvents(t *testing.T, out string) []feed.Event {
	t.Helper()
	var events []feed.Event
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var e feed.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
		events = append(events, e)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestWatch_OnceJSON(t *testing.T) {
	cfg := feedConfig(t)
	openAccount(t, cfg)
	_, err := execute(t, "-c", cfg, "exercise", "#1", "WithdrawMoney", "--as", "emma",
		"--args", `{"amount":"5.00","description":"comic book"}`)
	require.NoError(t, err)

	out, err := execute(t, "-c", cfg, "--format", "json", "watch", "--once")
	require.NoError(t, err)

	events := decodeEvents(t, out)
	require.Len(t, events, 2)

	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, ir.TransitionCreate, events[0].Kind)
	require.Len(t, events[0].Produced, 1)
	assert.Equal(t, ir.ContractID(1), events[0].Produced[0].ID)
	assert.Equal(t, []ir.Party{"emma"}, events[0].Produced[0].Observers)

	assert.Equal(t, int64(2), events[1].Seq)
	assert.Equal(t, "WithdrawMoney", events[1].Choice)
	assert.Equal(t, ir.Party("emma"), events[1].ActingParty)
	assert.Equal(t, []ir.ContractID{1}, events[1].Consumed)
	assert.NotContains(t, out, "15.00")
}

func TestWatch_From(t *testing.T) {
	cfg := feedConfig(t)
	openAccount(t, cfg)
	_, err := execute(t, "-c", cfg, "exercise", "#1", "WithdrawMoney", "--as", "emma",
		"--args", `{"amount":"5.00","description":"comic book"}`)
	require.NoError(t, err)

	out, err := execute(t, "-c", cfg, "watch", "--once", "--from", "1")
	require.NoError(t, err)
	assert.Equal(t, "seq 2 2024-01-08T09:00:00Z AllowanceAccount.WithdrawMoney by emma consumed [#1] produced [#2]\n", out)
}

func TestWatch_CommandErrors(t *testing.T) {
	_, err := execute(t, "-c", writeConfig(t, ""), "watch", "--once")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no feed configured")

	_, err = execute(t, "-c", feedConfig(t), "watch", "--once", "--as", "emma")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
