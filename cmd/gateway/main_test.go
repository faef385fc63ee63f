package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a minimal config rooted in a temp dir and points
// GATEWAY_CONFIG at it.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := `
gateway:
  address: "127.0.0.1:0"
  output_dir: "` + filepath.Join(dir, "logs") + `"
  heartbeat: 0
  verify_timeout: 5
directory:
  path: "` + filepath.Join(dir, "registered_devices.json") + `"
database:
  path: "` + filepath.Join(dir, "gateway.db") + `"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: false
influxdb:
  enabled: false
api:
  enabled: false
console:
  enabled: false
logging:
  level: error
  format: text
  output: stderr
` + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("GATEWAY_CONFIG", path)
	return dir
}

// TestRun_InvalidConfig verifies run fails with an explicit but missing config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestRun_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway: [unterminated"), 0600))
	t.Setenv("GATEWAY_CONFIG", path)

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestRun_StartsAndStops(t *testing.T) {
	dir := writeConfig(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, run(ctx))

	_, err := os.Stat(filepath.Join(dir, "gateway.db"))
	assert.NoError(t, err, "database should be created")
	_, err = os.Stat(filepath.Join(dir, "logs"))
	assert.NoError(t, err, "output directory should be created")
}

func TestRun_GatewayBindFailure(t *testing.T) {
	writeConfig(t, "")
	t.Setenv("GATEWAY_LISTEN_ADDRESS", "256.0.0.1:1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting gateway")
}

func TestGetConfigPath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("GATEWAY_CONFIG", "")
		path, allowMissing := getConfigPath()
		assert.Equal(t, defaultConfigPath, path)
		assert.True(t, allowMissing)
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("GATEWAY_CONFIG", "/etc/gateway/config.yaml")
		path, allowMissing := getConfigPath()
		assert.Equal(t, "/etc/gateway/config.yaml", path)
		assert.False(t, allowMissing)
	})
}

func TestDispatch_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, dispatch(context.Background(), []string{"-version"}, &out))
	assert.Contains(t, out.String(), "gray-logic-gateway "+version)
}

func TestDispatch_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, dispatch(context.Background(), []string{"-no-such-flag"}, &out))
}

func TestDispatch_IssueToken(t *testing.T) {
	const secret = "test-secret-for-development-only"
	writeConfig(t, "security:\n  jwt:\n    secret: \""+secret+"\"\n")

	var out bytes.Buffer
	require.NoError(t, dispatch(context.Background(), []string{"-issue-token", "ops", "-token-ttl", "1h"}, &out))

	raw := strings.TrimSpace(out.String())
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestDispatch_IssueTokenWithoutSecret(t *testing.T) {
	writeConfig(t, "")

	var out bytes.Buffer
	err := dispatch(context.Background(), []string{"-issue-token", "ops"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret")
}
