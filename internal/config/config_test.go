package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultaire.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeYAML(t, `
db_path: /data/vaultaire.db
providers:
  - name: primary
    type: s3
    bucket: my-bucket
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/vaultaire.db", cfg.DBPath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, KeyProviderLocal, cfg.Keys.Provider)
	assert.Equal(t, 1, cfg.ReplicationFactor)
	assert.Equal(t, uint32(1), cfg.Providers[0].Weight)
	assert.True(t, cfg.Compression.Enabled)
	assert.Equal(t, 1000, cfg.Raft.ElectionTimeoutMs)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeYAML(t, `
server:
  port: 8080
`)
	t.Setenv("VAULTAIRE_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoad_RejectsBadReplicationFactor(t *testing.T) {
	path := writeYAML(t, `replication_factor: 0`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ClampsReplicationFactorToProviderCount(t *testing.T) {
	path := writeYAML(t, `
replication_factor: 5
providers:
  - name: a
    type: local
  - name: b
    type: local
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.ReplicationFactor)
}

func TestLoad_RejectsUnknownKeyProvider(t *testing.T) {
	path := writeYAML(t, `
keys:
  provider: made-up
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_DecryptsProviderCredentials(t *testing.T) {
	key := make([]byte, 32)
	SetCredentialsKey(key)
	t.Cleanup(func() { SetCredentialsKey(nil) })

	wrapped, err := EncryptCredential("super-secret")
	require.NoError(t, err)

	path := writeYAML(t, `
providers:
  - name: primary
    type: s3_compatible
    bucket: b
    access_key: plain-access-key
    secret_key: `+wrapped+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plain-access-key", cfg.Providers[0].AccessKey)
	assert.Equal(t, "super-secret", cfg.Providers[0].SecretKey)
}
