package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/infractl/pkg/types"
)

func TestNormalizeBaseURLAddsSchemeWhenMissing(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", normalizeBaseURL("localhost:8080"))
	assert.Equal(t, "http://localhost:8080", normalizeBaseURL("localhost:8080/"))
	assert.Equal(t, "https://agent.example.com", normalizeBaseURL("https://agent.example.com"))
}

func TestHasDeploymentFindsConfiguredName(t *testing.T) {
	cfg := &types.Config{Deployments: []types.DeploymentSpec{{Name: "web"}}}
	assert.True(t, hasDeployment(cfg, "web"))
	assert.False(t, hasDeployment(cfg, "missing"))
}

func TestResolveTargetPrefersExplicitAgentOverSticky(t *testing.T) {
	cfg := &types.Config{Agents: []types.AgentEndpoint{{Name: "edge-1", Address: "https://edge-1.example.com"}}}

	target, err := resolveTarget(cfg, "edge-1", "https://stale.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://edge-1.example.com", target)
}

func TestResolveTargetFallsBackToStickyThenLocal(t *testing.T) {
	cfg := &types.Config{Server: types.ServerConfig{Port: 9000}}

	target, err := resolveTarget(cfg, "", "https://sticky.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://sticky.example.com", target)

	target, err = resolveTarget(cfg, "", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", target)
}

func TestResolveTargetTreatsUnknownAgentNameAsLiteralURL(t *testing.T) {
	cfg := &types.Config{}
	target, err := resolveTarget(cfg, "10.0.0.5:8080", "")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8080", target)
}

func TestAssignmentsRoundTripThroughYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent-assignments.yaml")

	loaded, err := loadAssignments(path)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, saveAssignments(path, map[string]string{"web": "https://edge-1.example.com"}))

	reloaded, err := loadAssignments(path)
	require.NoError(t, err)
	assert.Equal(t, "https://edge-1.example.com", reloaded["web"])
}

func TestAssignmentsPathSitsNextToConfigFile(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/infractl", "agent-assignments.yaml"), assignmentsPath("/etc/infractl/config.yaml"))
}
