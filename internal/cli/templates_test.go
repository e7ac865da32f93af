package cli

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/templates"
)

// catalogueDir copies embedded catalogue files into a temp dir.
func catalogueDir(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		data, err := fs.ReadFile(templates.Catalogue(), name)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestTemplates_Text(t *testing.T) {
	out, err := execute(t, "templates")
	require.NoError(t, err)

	assert.Contains(t, out, "7 template(s)")
	assert.Contains(t, out, "AllowanceAccount\n")
	assert.Contains(t, out, "  signatories: parent\n")
	assert.Contains(t, out, "  choice WithdrawMoney (controller child): amount Money, description Text\n")
	assert.Contains(t, out, "    consumes bondCid: Bond (controller investor)\n")
	assert.Contains(t, out, "  choice PayCoupon (controller issuer, nonconsuming)\n")
	assert.Contains(t, out, "  choice TransferBond (controller investor): newInvestor Party\n")
	assert.Contains(t, out, "bondData {issuer Party, isin Text, denomination Money, maturityDate Date}")
}

func TestTemplates_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "templates")
	require.NoError(t, err)

	var summary CatalogueSummary
	resp := decodeResponse(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, summary.Hash, 64)

	var names []string
	for _, spec := range summary.Templates {
		names = append(names, spec.Name)
	}
	assert.ElementsMatch(t, []string{
		"AllowanceAccount", "Task", "TaskCompletion",
		"BondIssuanceRequest", "Bond", "CouponPayment", "BondTradeOffer",
	}, names)
}

func TestTemplates_CatalogueDirAndOutput(t *testing.T) {
	dir := catalogueDir(t, "allowance.cue")
	outFile := filepath.Join(t.TempDir(), "catalogue.json")

	out, err := execute(t, "--catalogue", dir, "templates", "-o", outFile)
	require.NoError(t, err)
	assert.Contains(t, out, "3 template(s)")
	assert.NotContains(t, out, "Bond")

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var summary CatalogueSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Len(t, summary.Templates, 3)
}

func TestTemplates_BadCatalogue(t *testing.T) {
	_, err := execute(t, "--catalogue", filepath.Join(t.TempDir(), "missing"), "templates")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
