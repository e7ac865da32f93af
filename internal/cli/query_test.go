package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/ir"
)

func queryJSON(t *testing.T, cfg string, args ...string) []ir.Contract {
	t.Helper()
	out, err := execute(t, append([]string{"-c", cfg, "--format", "json", "query"}, args...)...)
	require.NoError(t, err)

	var contracts []ir.Contract
	resp := decodeResponse(t, out, &contracts)
	assert.Equal(t, "ok", resp.Status)
	return contracts
}

func TestQuery_Visibility(t *testing.T) {
	cfg := writeConfig(t, "")
	openAccount(t, cfg)

	tests := []struct {
		party string
		want  int
	}{
		{"parent", 1},
		{"emma", 1},
		{"noah", 0},
	}
	for _, tt := range tests {
		t.Run(tt.party, func(t *testing.T) {
			contracts := queryJSON(t, cfg, "AllowanceAccount", "--as", tt.party)
			assert.Len(t, contracts, tt.want)
		})
	}
}

func TestQuery_ArchivedContractsHidden(t *testing.T) {
	cfg := writeConfig(t, "")
	openAccount(t, cfg)
	_, err := execute(t, "-c", cfg, "exercise", "#1", "WithdrawMoney", "--as", "emma",
		"--args", `{"amount":"5.00","description":"kite"}`)
	require.NoError(t, err)

	contracts := queryJSON(t, cfg, "AllowanceAccount", "--as", "parent")
	require.Len(t, contracts, 1)
	assert.Equal(t, ir.ContractID(2), contracts[0].ID)
	assert.Equal(t, ir.StatusActive, contracts[0].Status)
	assert.Equal(t, ir.Text("15.00"), contracts[0].Payload["balance"])
}

func TestQuery_Filters(t *testing.T) {
	cfg := writeConfig(t, "")
	openAccount(t, cfg)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"where match", []string{"--where", "child=emma"}, 1},
		{"where miss", []string{"--where", "child=noah"}, 0},
		{"where two fields", []string{"--where", "child=emma,currency=USD"}, 1},
		{"filter match", []string{"--filter", `payload.balance == "20.00"`}, 1},
		{"filter miss", []string{"--filter", `payload.childName.startsWith("N")`}, 0},
		{"filter on absent field", []string{"--filter", `payload.colour == "red"`}, 0},
		{"where and filter", []string{"--where", "currency=USD", "--filter", `"parent" in signatories`}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"AllowanceAccount", "--as", "parent"}, tt.args...)
			assert.Len(t, queryJSON(t, cfg, args...), tt.want)
		})
	}
}

func TestQuery_Text(t *testing.T) {
	cfg := writeConfig(t, "")
	openAccount(t, cfg)

	out, err := execute(t, "-c", cfg, "query", "AllowanceAccount", "--as", "emma")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 AllowanceAccount")
	assert.Contains(t, out, "signatories: parent")
	assert.Contains(t, out, "observers:   emma")
	assert.Contains(t, out, `"childName":"Emma"`)
	assert.Contains(t, out, "1 contract(s)")

	out, err = execute(t, "-c", cfg, "query", "AllowanceAccount", "--as", "noah")
	require.NoError(t, err)
	assert.Equal(t, "No active AllowanceAccount contracts visible to noah.\n", out)
}

func TestQuery_Rejections(t *testing.T) {
	cfg := writeConfig(t, "")
	openAccount(t, cfg)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"unknown template", []string{"Pony", "--as", "parent"}, "UnknownTemplate"},
		{"unknown where field", []string{"AllowanceAccount", "--as", "parent", "--where", "colour=red"}, "InvalidArgument/SchemaViolation"},
		{"malformed filter", []string{"AllowanceAccount", "--as", "parent", "--filter", `payload.balance ==`}, "InvalidArgument/SchemaViolation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"-c", cfg, "--format", "json", "query"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			resp := decodeResponse(t, out, nil)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}
