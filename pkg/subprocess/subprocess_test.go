package subprocess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdoutAndStderr(t *testing.T) {
	res, err := Run(t.Context(), Request{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err 1>&2"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "out")
	assert.Contains(t, res.Output, "err")
}

func TestRunRejectsEmptyCommandName(t *testing.T) {
	_, err := Run(t.Context(), Request{})
	assert.Error(t, err)
}

func TestRunReturnsErrorOnNonZeroExit(t *testing.T) {
	_, err := Run(t.Context(), Request{Name: "sh", Args: []string{"-c", "exit 3"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestRunTimesOutAndReportsIt(t *testing.T) {
	_, err := Run(t.Context(), Request{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunMergesExtraEnvironmentVariables(t *testing.T) {
	res, err := Run(t.Context(), Request{
		Name: "sh",
		Args: []string{"-c", "echo $INFRACTL_TEST_VAR"},
		Env:  map[string]string{"INFRACTL_TEST_VAR": "hello"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "hello")
}

func TestRunShellCommandRejectsInvalidatedCommand(t *testing.T) {
	_, err := RunShellCommand(t.Context(), "echo hi; rm -rf /", "", nil, 0)
	assert.Error(t, err)
}

func TestRunShellCommandRunsValidCommand(t *testing.T) {
	res, err := RunShellCommand(t.Context(), "echo shell-ok", "", nil, 0)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "shell-ok")
}

func TestGitSSHCommandIncludesKeyPathAndAcceptNewPolicy(t *testing.T) {
	cmd := GitSSHCommand("/home/user/.ssh/id_ed25519")
	assert.Contains(t, cmd, "/home/user/.ssh/id_ed25519")
	assert.Contains(t, cmd, "StrictHostKeyChecking=accept-new")
}
