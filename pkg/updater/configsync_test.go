package updater

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRemoteConfig = `mode: agent
server:
  bind_addr: 0.0.0.0
  port: 8443
agents: []
`

func TestSyncConfigReplacesOnChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte("mode: home\nserver:\n  port: 1\n"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validRemoteConfig))
	}))
	defer srv.Close()

	updated, err := SyncConfig(t.Context(), srv.Client(), srv.URL, localPath, filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.True(t, updated)

	content, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, validRemoteConfig, string(content))
}

func TestSyncConfigNoopsWhenContentIdentical(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte(validRemoteConfig), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validRemoteConfig))
	}))
	defer srv.Close()

	updated, err := SyncConfig(t.Context(), srv.Client(), srv.URL, localPath, filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestSyncConfigRejectsTooSmallPayload(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte("mode: home\n"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mode: x"))
	}))
	defer srv.Close()

	_, err := SyncConfig(t.Context(), srv.Client(), srv.URL, localPath, filepath.Join(dir, "backups"))
	assert.Error(t, err)
}

func TestSyncConfigRejectsMissingModeField(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte("mode: home\n"), 0o644))

	payload := strings.Repeat("x", 60) + "\nfoo: bar\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	_, err := SyncConfig(t.Context(), srv.Client(), srv.URL, localPath, filepath.Join(dir, "backups"))
	assert.Error(t, err)
}

func TestSyncConfigRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte("mode: home\n"), 0o644))

	payload := "mode: home\nlist: [" + strings.Repeat("unclosed, ", 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	_, err := SyncConfig(t.Context(), srv.Client(), srv.URL, localPath, filepath.Join(dir, "backups"))
	assert.Error(t, err)
}

func TestSyncConfigBacksUpPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "config.yaml")
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.WriteFile(localPath, []byte("mode: home\nserver:\n  port: 1\n"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validRemoteConfig))
	}))
	defer srv.Close()

	updated, err := SyncConfig(t.Context(), srv.Client(), srv.URL, localPath, backupDir)
	require.NoError(t, err)
	require.True(t, updated)

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSyncConfigPrunesBackupsToMax(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0o755))
	for i := 0; i < maxConfigBackups+2; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(backupDir, "config.yaml.stamp"+string(rune('a'+i))), []byte("x"), 0o644))
	}

	localPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte("mode: home\nserver:\n  port: 1\n"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validRemoteConfig))
	}))
	defer srv.Close()

	_, err := SyncConfig(t.Context(), srv.Client(), srv.URL, localPath, backupDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), maxConfigBackups)
}

func TestSyncConfigErrorsOnNonOKStatus(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte("mode: home\n"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := SyncConfig(t.Context(), srv.Client(), srv.URL, localPath, filepath.Join(dir, "backups"))
	assert.Error(t, err)
}
