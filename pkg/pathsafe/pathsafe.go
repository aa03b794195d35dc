// Package pathsafe keeps file-fetch destinations from escaping the
// deployment's materialized directory. See spec §4.3.
package pathsafe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/infractl/pkg/errs"
)

// Resolve canonicalizes target relative to base and returns its absolute
// path, failing if target resolves outside base. It creates target's
// parent directory (mode 0o755) if absent, so callers can write to the
// result directly.
func Resolve(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", errs.Wrap(errs.Deployment, err, "pathsafe: resolve base")
	}
	absBase = filepath.Clean(absBase)

	var absTarget string
	if filepath.IsAbs(target) {
		absTarget = filepath.Clean(target)
	} else {
		absTarget = filepath.Clean(filepath.Join(absBase, target))
	}

	if !contains(absBase, absTarget) {
		return "", errs.New(errs.Deployment,
			fmt.Sprintf("pathsafe: %q escapes base %q", target, base))
	}

	if err := os.MkdirAll(filepath.Dir(absTarget), 0o755); err != nil {
		return "", errs.Wrap(errs.Deployment, err, "pathsafe: create parent directory")
	}

	return absTarget, nil
}

// contains reports whether target is base itself or a descendant of it.
func contains(base, target string) bool {
	if base == target {
		return true
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
