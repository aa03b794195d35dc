package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/infractl/pkg/container"
	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/script"
	"github.com/cuemby/infractl/pkg/subprocess"
	"github.com/cuemby/infractl/pkg/types"
	"github.com/cuemby/infractl/pkg/vcs"
)

// Executor runs a DeploymentSpec's phases in the order the data model
// requires and produces a DeployResult. It holds no state of its own; every
// call is independent.
type Executor struct{}

// NewExecutor builds an Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Run executes the phases in strict order. Any failure short-circuits with
// success=false, skipped=false and the output accumulated so far.
func (e *Executor) Run(ctx context.Context, spec types.DeploymentSpec) *types.DeployResult {
	logger := log.WithComponent("deploy").With().Str("deployment", spec.Name).Logger()
	start := time.Now()
	var out strings.Builder

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = subprocess.DefaultTimeout
	}

	fail := func(phase string, err error) *types.DeployResult {
		logger.Error().Str("phase", phase).Err(err).Msg("deploy phase failed")
		return &types.DeployResult{
			Success:    false,
			Skipped:    false,
			Output:     out.String(),
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	// 1. Materialize working path.
	if spec.Path != "" {
		if _, err := os.Stat(spec.Path); os.IsNotExist(err) {
			if err := os.MkdirAll(spec.Path, 0o755); err != nil {
				return fail("materialize", errs.Wrap(errs.Deployment, err, "create working path"))
			}
			fmt.Fprintf(&out, "[materialize]\ncreated %s\n", spec.Path)
		}
	}

	// 2. Pre-deploy commands.
	if res, err := e.runCommands(ctx, "pre-deploy", spec.PreCommands, spec); err != nil {
		out.WriteString(res)
		return fail("pre-deploy", err)
	} else {
		out.WriteString(res)
	}

	// 3. File fetch from git.
	if len(spec.FileFetch) > 0 {
		if spec.Path == "" || spec.Repo == "" {
			return fail("file-fetch", errs.New(errs.Deployment, "file_fetch requires both path and repo"))
		}
		res, err := vcs.FetchFiles(ctx, spec.Repo, spec.Branch, spec.FileFetch, spec.Path, spec.SSHKey, timeout)
		out.WriteString(res)
		if err != nil {
			return fail("file-fetch", err)
		}
	}

	// 4. Main step.
	skipped := false
	switch spec.Kind {
	case types.KindGitPull:
		changed, res, err := e.runGitPull(ctx, spec, timeout)
		out.WriteString(res)
		if err != nil {
			return fail("main", err)
		}
		skipped = !changed

	case types.KindDockerPull:
		res, err := e.runDockerPull(ctx, spec, timeout)
		out.WriteString(res)
		if err != nil {
			return fail("main", err)
		}

	case types.KindCustomScript:
		res, err := e.runCustomScript(ctx, spec, timeout)
		out.WriteString(res)
		if err != nil {
			return fail("main", err)
		}

	default:
		return fail("main", errs.New(errs.Deployment, fmt.Sprintf("unknown deployment kind %q", spec.Kind)))
	}

	// 5. Post-deploy commands, skipped when the main step was a no-op pull.
	if !skipped {
		res, err := e.runCommands(ctx, "post-deploy", spec.PostCommands, spec)
		out.WriteString(res)
		if err != nil {
			return fail("post-deploy", err)
		}
	} else {
		fmt.Fprintf(&out, "[post-deploy]\nskipped: no changes from pull\n")
	}

	// 6. Timing.
	return &types.DeployResult{
		Success:    true,
		Skipped:    skipped,
		Output:     out.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func (e *Executor) runCommands(ctx context.Context, phase string, commands []string, spec types.DeploymentSpec) (string, error) {
	if len(commands) == 0 {
		return "", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", phase)
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = subprocess.DefaultTimeout
	}
	for _, cmd := range commands {
		res, err := script.RunCommand(ctx, cmd, spec.WorkDir, spec.Env, spec.User, timeout)
		b.WriteString(res)
		b.WriteString("\n")
		if err != nil {
			return b.String(), errs.Wrap(errs.Deployment, err, fmt.Sprintf("%s command %q", phase, cmd))
		}
	}
	return b.String(), nil
}

func (e *Executor) runGitPull(ctx context.Context, spec types.DeploymentSpec, timeout time.Duration) (changed bool, output string, err error) {
	gitDir := filepath.Join(spec.Path, ".git")
	if _, statErr := os.Stat(gitDir); os.IsNotExist(statErr) {
		out, cloneErr := vcs.Clone(ctx, spec.Repo, spec.Path, spec.Branch, spec.SSHKey, timeout)
		if cloneErr != nil {
			return false, out, cloneErr
		}
		return true, out, nil
	}
	output, changed, err := vcs.Pull(ctx, spec.Path, spec.Remote, spec.Branch, spec.SSHKey, timeout)
	return changed, output, err
}

func (e *Executor) runDockerPull(ctx context.Context, spec types.DeploymentSpec, timeout time.Duration) (string, error) {
	composePath := filepath.Join(spec.Path, spec.ComposeFile)
	if _, err := os.Stat(composePath); err != nil {
		return "", errs.Wrap(errs.Deployment, err, fmt.Sprintf("compose file %q missing", composePath))
	}
	return container.PullAndRestart(ctx, composePath, spec.Services, spec.Prune, spec.Strategy, timeout)
}

func (e *Executor) runCustomScript(ctx context.Context, spec types.DeploymentSpec, timeout time.Duration) (string, error) {
	if isScriptPath(spec.Script) {
		return script.RunScript(ctx, spec.Script, spec.WorkDir, spec.Env, spec.User, timeout)
	}
	return script.RunCommand(ctx, spec.Script, spec.WorkDir, spec.Env, spec.User, timeout)
}

// isScriptPath classifies spec.Script as a filesystem path (existing file,
// or starting with "/" or "./", or ending in ".sh") versus an inline shell
// command. Anything containing a space or shell metacharacter is inline.
func isScriptPath(s string) bool {
	if strings.ContainsAny(s, " |&;$`") {
		return false
	}
	if _, err := os.Stat(s); err == nil {
		return true
	}
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasSuffix(s, ".sh")
}

// Shutdown runs spec's shutdown path synchronously: explicit shutdown
// commands if configured, else a compose down for docker_pull deployments
// whose compose file resolves on disk, else a no-op success.
func (e *Executor) Shutdown(ctx context.Context, spec types.DeploymentSpec) *types.DeployResult {
	start := time.Now()
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = subprocess.DefaultTimeout
	}

	if len(spec.ShutdownCommands) > 0 {
		out, err := e.runCommands(ctx, "shutdown", spec.ShutdownCommands, spec)
		if err != nil {
			return &types.DeployResult{Success: false, Output: out, Error: err.Error(), DurationMs: time.Since(start).Milliseconds()}
		}
		return &types.DeployResult{Success: true, Output: out, DurationMs: time.Since(start).Milliseconds()}
	}

	if spec.Kind == types.KindDockerPull {
		composePath := filepath.Join(spec.Path, spec.ComposeFile)
		if _, err := os.Stat(composePath); err == nil {
			out, err := container.Down(ctx, composePath, timeout)
			if err != nil {
				return &types.DeployResult{Success: false, Output: out, Error: err.Error(), DurationMs: time.Since(start).Milliseconds()}
			}
			return &types.DeployResult{Success: true, Output: out, DurationMs: time.Since(start).Milliseconds()}
		}
	}

	return &types.DeployResult{Success: true, Output: "[shutdown]\nno-op\n", DurationMs: time.Since(start).Milliseconds()}
}
