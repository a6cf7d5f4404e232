package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agent_credentials.yaml")
	creds := Credentials{
		AgentID:   "agent-1",
		Token:     "secret",
		ServerURL: "http://controller:8080",
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}

	require.NoError(t, SaveCredentials(path, creds))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "# Agent registered on 2026-03-04T05:06:07Z\n"))

	loaded, ok, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, creds, loaded)
}

func TestLoadCredentials_Missing(t *testing.T) {
	_, ok, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadCredentials_Incomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent_id: agent-1\n"), 0o600))

	creds, ok, err := LoadCredentials(path)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "agent-1", creds.AgentID)
}

func TestLoadCredentials_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent_id: [\n"), 0o600))

	_, ok, err := LoadCredentials(path)
	assert.Error(t, err)
	assert.False(t, ok)
}
