// Package subprocess spawns external tools the way the deploy executor's
// adapters need: captured stdout+stderr, a hard timeout, an explicit
// environment, and no shell of its own: Run executes the argument vector
// as given, and RunShellCommand validates an inline command before handing
// it to `sh -c`. Grounded on the teacher's pkg/health exec checker
// (context-bounded exec.Cmd with captured buffers) generalized from a
// health probe into the general-purpose driver the VCS, container, and
// script adapters share.
package subprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/validate"
)

// DefaultTimeout is used when a caller passes a zero Timeout.
const DefaultTimeout = 5 * time.Minute

// Request describes one subprocess invocation.
type Request struct {
	Name    string            // argv[0]
	Args    []string          // remaining argv
	Dir     string            // working directory override, "" = inherit
	Env     map[string]string // extra environment entries, merged over os.Environ
	Timeout time.Duration     // 0 = DefaultTimeout
}

// Result is the captured outcome of a run. On a non-zero exit or timeout
// Run returns it alongside the error, so the output of a failed command
// is still available.
type Result struct {
	Output   string // stdout concatenated with stderr
	Duration time.Duration
}

// Run executes argv directly — never through a shell. On non-zero exit or
// timeout it returns a DeploymentFailure error containing the exit code and
// a trimmed stderr excerpt.
func Run(ctx context.Context, req Request) (Result, error) {
	if req.Name == "" {
		return Result{}, errs.New(errs.Deployment, "subprocess: empty command name")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Name, req.Args...)
	if req.Dir != "" {
		cmd.Dir = req.Dir
	}
	cmd.Env = mergeEnv(req.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	combined := stdout.String() + stderr.String()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Output: combined, Duration: elapsed}, errs.New(errs.Deployment,
			fmt.Sprintf("command %q timed out after %s (%v): %s", req.Name, timeout, err, excerpt(stderr.String(), 2000)))
	}
	if err != nil {
		excerpt := excerpt(stderr.String(), 2000)
		return Result{Output: combined, Duration: elapsed}, errs.Wrap(errs.Deployment, err,
			fmt.Sprintf("command %q failed: %s", strings.Join(append([]string{req.Name}, req.Args...), " "), excerpt))
	}

	return Result{Output: combined, Duration: elapsed}, nil
}

// RunShellCommand validates cmd with pkg/validate before handing it to
// `sh -c`. Run never adds a shell itself; pkg/script names `sh` in its own
// argument vector after running the same validator.
func RunShellCommand(ctx context.Context, cmd string, dir string, env map[string]string, timeout time.Duration) (Result, error) {
	if err := validate.Command(cmd); err != nil {
		return Result{}, errs.Wrap(errs.Deployment, err, "command rejected by validator")
	}
	return Run(ctx, Request{Name: "sh", Args: []string{"-c", cmd}, Dir: dir, Env: env, Timeout: timeout})
}

// GitSSHCommand builds the synthetic GIT_SSH_COMMAND value for an SSH key
// path: host-key checking is accept-new against /dev/null, a deliberate
// trade-off (tolerant of first connect, resistant to MITM across a
// restart) documented in spec §4.1 and §9.
func GitSSHCommand(keyPath string) string {
	return fmt.Sprintf(
		"ssh -i %s -o StrictHostKeyChecking=accept-new -o UserKnownHostsFile=/dev/null",
		keyPath,
	)
}

func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
