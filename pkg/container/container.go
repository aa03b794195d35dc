package container

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/subprocess"
	"github.com/cuemby/infractl/pkg/types"
)

// DefaultTimeout bounds a compose invocation when the caller passes a
// zero/negative timeout instead of a deployment's configured one.
const DefaultTimeout = 5 * time.Minute

func run(ctx context.Context, workDir string, timeout time.Duration, args ...string) (subprocess.Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return subprocess.Run(ctx, subprocess.Request{Name: "docker", Args: append([]string{"compose"}, args...), Dir: workDir, Timeout: timeout})
}

// PullAndRestart runs `compose pull` followed by the bring-up variant
// matching strategy, then an optional prune pass whose failure is logged
// but never fails the deployment. timeout bounds each subprocess call;
// zero/negative falls back to DefaultTimeout.
func PullAndRestart(ctx context.Context, composeFile string, services []string, prune bool, strategy types.ContainerStrategy, timeout time.Duration) (string, error) {
	workDir := filepath.Dir(composeFile)
	base := []string{"-f", composeFile}
	var b strings.Builder

	pullArgs := append(append([]string{}, base...), append([]string{"pull"}, services...)...)
	pullRes, err := run(ctx, workDir, timeout, pullArgs...)
	fmt.Fprintf(&b, "[pull]\n%s\n", pullRes.Output)
	if err != nil {
		return b.String(), errs.Wrap(errs.Deployment, err, "compose pull")
	}

	var upArgs []string
	switch strategy {
	case types.StrategyForceRecreate:
		upArgs = append(append([]string{}, base...), "up", "-d", "--force-recreate")
	case types.StrategyRestart:
		upArgs = append(append([]string{}, base...), "restart")
	default:
		upArgs = append(append([]string{}, base...), append([]string{"up", "-d", "--remove-orphans"}, services...)...)
	}
	upRes, err := run(ctx, workDir, timeout, upArgs...)
	fmt.Fprintf(&b, "[up]\n%s\n", upRes.Output)
	if err != nil {
		return b.String(), errs.Wrap(errs.Deployment, err, "compose up")
	}

	if prune {
		pruneTimeout := timeout
		if pruneTimeout <= 0 {
			pruneTimeout = DefaultTimeout
		}
		pruneRes, pruneErr := subprocess.Run(ctx, subprocess.Request{Name: "docker", Args: []string{"image", "prune", "-f"}, Dir: workDir, Timeout: pruneTimeout})
		fmt.Fprintf(&b, "[prune]\n%s\n", pruneRes.Output)
		if pruneErr != nil {
			log.WithComponent("container").Warn().Err(pruneErr).Msg("image prune failed, continuing")
		}
	}

	return b.String(), nil
}

// Down runs `compose down` against composeFile. timeout bounds the
// invocation; zero/negative falls back to DefaultTimeout.
func Down(ctx context.Context, composeFile string, timeout time.Duration) (string, error) {
	workDir := filepath.Dir(composeFile)
	res, err := run(ctx, workDir, timeout, "-f", composeFile, "down")
	if err != nil {
		return res.Output, errs.Wrap(errs.Deployment, err, "compose down")
	}
	return res.Output, nil
}
