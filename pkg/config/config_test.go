package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/types"
)

func minimalValidConfig() *types.Config {
	return &types.Config{
		Mode: types.ModeHome,
		Auth: types.AuthConfig{Secret: validSecret},
		Deployments: []types.DeploymentSpec{
			{Name: "api", Kind: types.KindGitPull, Path: "/srv/api"},
		},
	}
}

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

const validSecret = "0123456789012345678901234567890123456789"

func baseYAML(secret string) string {
	return `
mode: home
server:
  bind_addr: 0.0.0.0
  port: 8443
  isolation_mode: true
  allowed_cidrs: ["10.0.0.0/8"]
auth:
  secret: "` + secret + `"
deployments:
  - name: api
    kind: git_pull
    path: /srv/api
`
}

func TestLoadSubstitutesEnvAndValidates(t *testing.T) {
	os.Setenv("INFRACTL_TEST_SECRET", validSecret)
	defer os.Unsetenv("INFRACTL_TEST_SECRET")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML("${INFRACTL_TEST_SECRET}")), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, validSecret, cfg.Auth.Secret)
	assert.Equal(t, "main", cfg.Deployments[0].Branch)
	assert.Equal(t, 100, cfg.Storage.MaxHistory)
}

func TestLoadPreservesConfiguredMaxHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := baseYAML(validSecret) + "storage:\n  max_history: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Storage.MaxHistory)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML("tooshort")), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadCIDR(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
mode: home
server:
  allowed_cidrs: ["not-a-cidr"]
auth:
  secret: "` + validSecret + `"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestMergeDeploymentsDMergesAndDedupes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML(validSecret)), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "deployments.d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deployments.d", "a.yaml"), []byte(`
deployments:
  - name: web
    kind: custom_script
    script: /srv/deploy.sh
  - name: api
    kind: custom_script
    script: /should/be/ignored.sh
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	names := make([]string, 0, len(cfg.Deployments))
	for _, d := range cfg.Deployments {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"api", "web"}, names)

	for _, d := range cfg.Deployments {
		if d.Name == "api" {
			assert.Equal(t, "/srv/api", d.Path, "first occurrence of duplicate name must win")
		}
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	cfg := minimalValidConfig()
	cfg.Deployments[0].Kind = "teleport"
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsDockerPullMissingComposeFile(t *testing.T) {
	cfg := minimalValidConfig()
	cfg.Deployments[0].Kind = "docker_pull"
	cfg.Deployments[0].Path = "/srv/app"
	require.Error(t, Validate(cfg))
}
