package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "ledgerd.yml")
	validConfig := `version: "1"
journal:
  path: "ledger.db"
feed:
  addr: "localhost:6379"
log:
  level: debug
clock:
  fixed: "2024-01-08T09:00:00+02:00"
`
	require.NoError(t, os.WriteFile(configPath, []byte(validConfig), 0644))

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "ledger.db", config.Journal.Path)
	assert.Empty(t, config.Catalogue.Dir)

	require.NotNil(t, config.Feed)
	assert.Equal(t, "default", config.Feed.Namespace)
	require.NotNil(t, config.Feed.MaxLen)
	assert.Equal(t, int64(100_000), *config.Feed.MaxLen)

	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)

	fixed, ok := config.FixedTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 8, 7, 0, 0, 0, time.UTC), fixed)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/ledgerd.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"empty", ``, "empty config"},
		{"malformed", "version: [", "failed to parse YAML"},
		{"unknown key", "version: \"1\"\njournal:\n  file: x.db\n", "field file not found"},
		{"wrong version", `version: "2"`, "unsupported version"},
		{"bad level", "version: \"1\"\nlog:\n  level: loud\n", "log.level"},
		{"bad format", "version: \"1\"\nlog:\n  format: xml\n", "log.format"},
		{"feed without addr", "version: \"1\"\nfeed:\n  namespace: x\n", "feed.addr is required"},
		{"negative max_len", "version: \"1\"\nfeed:\n  addr: x:1\n  max_len: -1\n", "feed.max_len"},
		{"bad clock", "version: \"1\"\nclock:\n  fixed: monday\n", "clock.fixed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_ZeroMaxLenKept(t *testing.T) {
	config, err := Parse([]byte("version: \"1\"\nfeed:\n  addr: x:1\n  max_len: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), *config.Feed.MaxLen)
}

func TestDefault(t *testing.T) {
	config := Default()
	require.NoError(t, config.Validate())
	assert.Nil(t, config.Feed)
	assert.Empty(t, config.Journal.Path)
	_, ok := config.FixedTime()
	assert.False(t, ok)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	config := Default()
	config.Log.Format = "json"
	config.Log.Level = "warn"

	logger := config.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "seq", 3)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"seq":3`)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}
