package script

import (
	"context"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/subprocess"
	"github.com/cuemby/infractl/pkg/validate"
)

// RunCommand validates cmd (§4.2) then runs it through a shell, optionally
// impersonating user via sudo.
func RunCommand(ctx context.Context, cmd, cwd string, env map[string]string, user string, timeout time.Duration) (string, error) {
	if err := validate.Command(cmd); err != nil {
		return "", errs.Wrap(errs.Deployment, err, "command rejected by validator")
	}

	req := subprocess.Request{Dir: cwd, Env: env, Timeout: timeout}
	if user != "" {
		req.Name = "sudo"
		req.Args = []string{"-u", user, "sh", "-c", cmd}
	} else {
		req.Name = "sh"
		req.Args = []string{"-c", cmd}
	}

	res, err := subprocess.Run(ctx, req)
	if err != nil {
		return res.Output, err
	}
	return res.Output, nil
}

// RunScript spawns a script file directly with bash, bypassing the
// command validator since no shell interprets the path itself.
func RunScript(ctx context.Context, path, cwd string, env map[string]string, user string, timeout time.Duration) (string, error) {
	req := subprocess.Request{Dir: cwd, Env: env, Timeout: timeout}
	if user != "" {
		req.Name = "sudo"
		req.Args = []string{"-u", user, "bash", path}
	} else {
		req.Name = "bash"
		req.Args = []string{path}
	}

	res, err := subprocess.Run(ctx, req)
	if err != nil {
		return res.Output, err
	}
	return res.Output, nil
}
