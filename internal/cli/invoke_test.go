package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
)

func TestCreate_JSON(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := execute(t, "-c", cfg, "--format", "json",
		"create", "AllowanceAccount", "--as", "parent", "--payload", accountJSON, "--command-id", "cmd-1")
	require.NoError(t, err)

	var view OutcomeView
	resp := decodeResponse(t, out, &view)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, engine.StatusCommitted, view.Status)
	assert.Equal(t, int64(1), view.Seq)
	assert.Equal(t, "cmd-1", view.CommandID)
	assert.Equal(t, []ir.ContractID{1}, view.Produced)
	assert.Len(t, view.TransitionID, 64)
}

func TestExercise_Text(t *testing.T) {
	cfg := writeConfig(t, "")
	openAccount(t, cfg)

	out, err := execute(t, "-c", cfg, "exercise", "#1", "WithdrawMoney", "--as", "emma",
		"--args", `{"amount":"5.00","description":"comic book"}`)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ committed seq 2")
	assert.Contains(t, out, "produced: [#2]")
	assert.Contains(t, out, `"balance":"15.00"`)
}

func TestExercise_StateSurvivesRestart(t *testing.T) {
	cfg := writeConfig(t, "")
	openAccount(t, cfg)

	for i, want := range []string{"15.00", "10.00"} {
		out, err := execute(t, "-c", cfg, "--format", "json", "exercise", ir.ContractID(i+1).String(), "WithdrawMoney",
			"--as", "emma", "--args", `{"amount":"5.00","description":"sweets"}`)
		require.NoError(t, err)

		var view OutcomeView
		decodeResponse(t, out, &view)
		assert.Equal(t, ir.Text(want), view.Result["balance"])
		assert.Equal(t, []ir.ContractID{ir.ContractID(i + 2)}, view.Produced)
	}
}

func TestExercise_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{
			name:     "insufficient funds",
			args:     []string{"#1", "WithdrawMoney", "--as", "emma", "--args", `{"amount":"100.00","description":"bike"}`},
			wantCode: "InvalidArgument/InsufficientFunds",
		},
		{
			name:     "wrong controller",
			args:     []string{"#1", "WithdrawMoney", "--as", "parent", "--args", `{"amount":"1.00","description":"x"}`},
			wantCode: "Unauthorized",
		},
		{
			name:     "not a stakeholder",
			args:     []string{"#1", "WithdrawMoney", "--as", "noah", "--args", `{"amount":"1.00","description":"x"}`},
			wantCode: "NotFound",
		},
		{
			name:     "unknown choice",
			args:     []string{"#1", "Spend", "--as", "emma"},
			wantCode: "UnknownChoice",
		},
		{
			name:     "unknown contract",
			args:     []string{"#9", "WithdrawMoney", "--as", "emma", "--args", `{"amount":"1.00","description":"x"}`},
			wantCode: "NotFound",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := writeConfig(t, "")
			openAccount(t, cfg)

			out, err := execute(t, append([]string{"-c", cfg, "--format", "json", "exercise"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var view OutcomeView
			resp := decodeResponse(t, out, &view)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, engine.StatusRejected, view.Status)
			assert.NotContains(t, resp.Error.Message, "20.00")
		})
	}
}

func TestCreate_Rejected(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := execute(t, "-c", cfg, "create", "AllowanceAccount", "--as", "emma", "--payload", accountJSON)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ rejected Unauthorized")
}

func TestSubmit_CommandErrors(t *testing.T) {
	cfg := writeConfig(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"no journal", []string{"create", "AllowanceAccount", "--as", "parent", "--payload", accountJSON}},
		{"float in payload", []string{"-c", cfg, "create", "Task", "--as", "parent", "--payload", `{"reward":3.5}`}},
		{"payload not an object", []string{"-c", cfg, "create", "Task", "--as", "parent", "--payload", `[1]`}},
		{"bad contract id", []string{"-c", cfg, "exercise", "acct", "WithdrawMoney", "--as", "emma"}},
		{"zero contract id", []string{"-c", cfg, "exercise", "#0", "WithdrawMoney", "--as", "emma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestSubmit_RequiresParty(t *testing.T) {
	cfg := writeConfig(t, "")
	_, err := execute(t, "-c", cfg, "create", "AllowanceAccount", "--payload", accountJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "as" not set`)
}

func TestParseContractID(t *testing.T) {
	id, err := parseContractID("#12")
	require.NoError(t, err)
	assert.Equal(t, ir.ContractID(12), id)

	id, err = parseContractID("7")
	require.NoError(t, err)
	assert.Equal(t, ir.ContractID(7), id)

	for _, bad := range []string{"", "#", "-1", "x7"} {
		_, err := parseContractID(bad)
		assert.Error(t, err, bad)
	}
}
