package vcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/pathsafe"
	"github.com/cuemby/infractl/pkg/subprocess"
)

func sshEnv(sshKey string) map[string]string {
	if sshKey == "" {
		return nil
	}
	return map[string]string{"GIT_SSH_COMMAND": subprocess.GitSSHCommand(sshKey)}
}

func run(ctx context.Context, dir string, env map[string]string, timeout time.Duration, args ...string) (subprocess.Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return subprocess.Run(ctx, subprocess.Request{Name: "git", Args: args, Dir: dir, Env: env, Timeout: timeout})
}

// Pull runs the fetch/reset/clean sequence against an existing checkout at
// path and reports whether HEAD moved. timeout bounds each individual git
// invocation; zero/negative falls back to DefaultTimeout.
func Pull(ctx context.Context, path, remote, branch, sshKey string, timeout time.Duration) (output string, changed bool, err error) {
	env := sshEnv(sshKey)
	var b strings.Builder

	preHead, err := run(ctx, path, env, timeout, "rev-parse", "HEAD")
	if err != nil {
		return "", false, errs.Wrap(errs.Deployment, err, "read pre-pull HEAD")
	}

	fetchRes, err := run(ctx, path, env, timeout, "fetch", remote, branch)
	fmt.Fprintf(&b, "[fetch]\n%s\n", fetchRes.Output)
	if err != nil {
		return b.String(), false, errs.Wrap(errs.Deployment, err, "git fetch")
	}

	resetRes, err := run(ctx, path, env, timeout, "reset", "--hard", remote+"/"+branch)
	fmt.Fprintf(&b, "[reset]\n%s\n", resetRes.Output)
	if err != nil {
		return b.String(), false, errs.Wrap(errs.Deployment, err, "git reset")
	}

	cleanRes, err := run(ctx, path, env, timeout, "clean", "-fd")
	fmt.Fprintf(&b, "[clean]\n%s\n", cleanRes.Output)
	if err != nil {
		return b.String(), false, errs.Wrap(errs.Deployment, err, "git clean")
	}

	postHead, err := run(ctx, path, env, timeout, "rev-parse", "HEAD")
	if err != nil {
		return b.String(), false, errs.Wrap(errs.Deployment, err, "read post-pull HEAD")
	}

	changed = strings.TrimSpace(preHead.Output) != strings.TrimSpace(postHead.Output)
	commit := strings.TrimSpace(postHead.Output)
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if changed {
		fmt.Fprintf(&b, "[changes]\n%s\n", commit)
	} else {
		fmt.Fprintf(&b, "[no changes]\n%s\n", commit)
	}

	return b.String(), changed, nil
}

// Clone performs a shallow depth-1 clone of url into dest at an optional
// branch. timeout bounds the clone invocation; zero/negative falls back to
// DefaultTimeout.
func Clone(ctx context.Context, url, dest, branch, sshKey string, timeout time.Duration) (string, error) {
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dest)

	res, err := run(ctx, "", sshEnv(sshKey), timeout, args...)
	if err != nil {
		return res.Output, errs.Wrap(errs.Deployment, err, "git clone")
	}
	return res.Output, nil
}

// Mapping is one parsed "src:dst" file-fetch entry. A trailing "/" on
// either side marks a directory copy.
type Mapping struct {
	Src, Dst string
}

// ParseMapping splits "src:dst" on the first colon. "a:b:c" yields
// Src="a", Dst="b:c"; a string with no colon is rejected.
func ParseMapping(raw string) (Mapping, error) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return Mapping{}, errs.New(errs.Deployment, fmt.Sprintf("file_fetch mapping %q has no ':' separator", raw))
	}
	return Mapping{Src: raw[:idx], Dst: raw[idx+1:]}, nil
}

// FetchFiles shallow-clones url at branch into a private temporary
// directory (removed on every exit path) and copies each mapping into
// dest, routing every destination through pathsafe. timeout bounds the
// clone invocation; zero/negative falls back to DefaultTimeout.
func FetchFiles(ctx context.Context, url, branch string, mappings []string, dest, sshKey string, timeout time.Duration) (string, error) {
	tmp, err := os.MkdirTemp("", "infractl-fetch-*")
	if err != nil {
		return "", errs.Wrap(errs.Deployment, err, "create temp clone dir")
	}
	defer os.RemoveAll(tmp)

	var b strings.Builder
	cloneOut, err := Clone(ctx, url, tmp, branch, sshKey, timeout)
	fmt.Fprintf(&b, "[clone]\n%s\n", cloneOut)
	if err != nil {
		return b.String(), err
	}

	for _, raw := range mappings {
		m, err := ParseMapping(raw)
		if err != nil {
			return b.String(), err
		}

		srcIsDir := strings.HasSuffix(m.Src, "/") || strings.HasSuffix(m.Dst, "/")
		srcPath := filepath.Join(tmp, strings.TrimSuffix(m.Src, "/"))
		dstPath, err := pathsafe.Resolve(dest, strings.TrimSuffix(m.Dst, "/"))
		if err != nil {
			return b.String(), err
		}

		info, statErr := os.Stat(srcPath)
		if statErr != nil {
			return b.String(), errs.Wrap(errs.Deployment, statErr, fmt.Sprintf("file_fetch source %q missing", m.Src))
		}
		if info.IsDir() != srcIsDir {
			return b.String(), errs.New(errs.Deployment, fmt.Sprintf("file_fetch mapping %q: directory/file mismatch", raw))
		}

		if srcIsDir {
			if err := copyDir(srcPath, dstPath); err != nil {
				return b.String(), errs.Wrap(errs.Deployment, err, fmt.Sprintf("copy directory %q", raw))
			}
		} else {
			if err := copyFile(srcPath, dstPath); err != nil {
				return b.String(), errs.Wrap(errs.Deployment, err, fmt.Sprintf("copy file %q", raw))
			}
		}
		fmt.Fprintf(&b, "[fetch_files] %s -> %s\n", m.Src, m.Dst)
	}

	return b.String(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

// DefaultTimeout bounds a git invocation when the caller passes a
// zero/negative timeout instead of a deployment's configured one.
const DefaultTimeout = 2 * time.Minute
