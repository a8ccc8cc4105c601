package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"MCPHUB_ADDR", "MCPHUB_TIMEOUT", "MCPHUB_CORS_ORIGINS", "MCPHUB_LOG_JSONRPC"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8700", cfg.Addr)
	assert.Equal(t, "mcphub", cfg.ClientName)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.LogJSONRPC)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MCPHUB_ADDR", "127.0.0.1:9000")
	t.Setenv("MCPHUB_TIMEOUT", "5s")
	t.Setenv("MCPHUB_LOG_JSONRPC", "true")
	t.Setenv("MCPHUB_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.LogJSONRPC)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("MCPHUB_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
}

func TestConfigLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := Config{LogLevel: "warn", LogFormat: "json"}.Logger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "endpoint", "ep")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = Config{LogLevel: "loud"}.Logger(&buf)
	require.Error(t, err)
	_, err = Config{LogLevel: "info", LogFormat: "xml"}.Logger(&buf)
	require.Error(t, err)
}

func TestParseEndpoints(t *testing.T) {
	t.Parallel()

	endpoints, err := ParseEndpoints([]byte(`
endpoints:
  - id: docs
    url: https://docs.example.com/mcp
  - id: " files "
    url: http://localhost:9000/sse
`))
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{
		{ID: "docs", URL: "https://docs.example.com/mcp"},
		{ID: "files", URL: "http://localhost:9000/sse"},
	}, endpoints)

	for name, doc := range map[string]string{
		"missing id":  "endpoints:\n  - url: http://x\n",
		"missing url": "endpoints:\n  - id: a\n",
		"duplicate":   "endpoints:\n  - {id: a, url: http://x}\n  - {id: a, url: http://y}\n",
		"malformed":   "endpoints: [",
	} {
		_, err := ParseEndpoints([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadEndpointsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoints:\n  - {id: a, url: http://x/mcp}\n"), 0o600))

	endpoints, err := LoadEndpoints(path)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, "a", endpoints[0].ID)

	_, err = LoadEndpoints(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
