package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/types"
)

// DefaultPath is used when INFRACTL_CONFIG and the --config flag are both
// unset.
const DefaultPath = "/etc/infractl/config.yaml"

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, substitutes, parses, merges deployments.d, and validates the
// configuration at path. It is the only entry point that produces a
// types.Config.
func Load(path string) (*types.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "read config file")
	}

	substituted := substituteEnv(string(raw))

	var cfg types.Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "parse config yaml")
	}

	dir := filepath.Dir(path)
	merged, err := mergeDeployments(dir, cfg.Deployments)
	if err != nil {
		return nil, err
	}
	cfg.Deployments = merged
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// substituteEnv replaces every ${NAME} with its environment value, or the
// empty string with a warning if NAME is unset.
func substituteEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			log.WithComponent("config").Warn().Str("var", name).Msg("referenced environment variable is unset")
			return ""
		}
		return v
	})
}

// mergeDeployments folds in <dir>/deployments.yaml and
// <dir>/deployments.d/*.yaml, in that order, alphabetically within the
// deployments.d directory. Later duplicates (by name) are dropped with a
// warning; the first occurrence wins.
func mergeDeployments(dir string, base []types.DeploymentSpec) ([]types.DeploymentSpec, error) {
	seen := make(map[string]bool, len(base))
	result := make([]types.DeploymentSpec, 0, len(base))
	for _, d := range base {
		seen[d.Name] = true
		result = append(result, d)
	}

	add := func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return errs.Wrap(errs.Configuration, err, "read "+path)
		}
		var wrapper struct {
			Deployments []types.DeploymentSpec `yaml:"deployments"`
		}
		if err := yaml.Unmarshal([]byte(substituteEnv(string(data))), &wrapper); err != nil {
			return errs.Wrap(errs.Configuration, err, "parse "+path)
		}
		for _, d := range wrapper.Deployments {
			if seen[d.Name] {
				log.WithComponent("config").Warn().Str("deployment", d.Name).Str("file", path).
					Msg("duplicate deployment name ignored")
				continue
			}
			seen[d.Name] = true
			result = append(result, d)
		}
		return nil
	}

	if err := add(filepath.Join(dir, "deployments.yaml")); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(dir, "deployments.d"))
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, errs.Wrap(errs.Configuration, err, "read deployments.d")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := add(filepath.Join(dir, "deployments.d", name)); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// applyDefaults fills optional fields before validation so defaulted values
// satisfy the §3 per-kind invariants.
func applyDefaults(cfg *types.Config) {
	if cfg.Storage.MaxHistory <= 0 {
		cfg.Storage.MaxHistory = 100
	}
	if cfg.Metrics.CollectEvery <= 0 {
		cfg.Metrics.CollectEvery = 30 * time.Second
	}
	for i := range cfg.Deployments {
		d := &cfg.Deployments[i]
		if d.Kind == types.KindGitPull && d.Branch == "" {
			d.Branch = "main"
		}
		if d.Kind == types.KindGitPull && d.Remote == "" {
			d.Remote = "origin"
		}
		if d.Kind == types.KindDockerPull && d.ComposeFile == "" {
			d.ComposeFile = "docker-compose.yaml"
		}
		if d.Strategy == "" {
			d.Strategy = types.StrategyDefault
		}
	}
}

// Validate checks the invariants from §3: secret length, CIDR syntax,
// per-kind required fields, and agent-address warnings.
func Validate(cfg *types.Config) error {
	if cfg.Mode != types.ModeHome && cfg.Mode != types.ModeAgent {
		return errs.New(errs.Configuration, fmt.Sprintf("mode must be %q or %q, got %q", types.ModeHome, types.ModeAgent, cfg.Mode))
	}

	if len(cfg.Auth.Secret) < 32 {
		return errs.New(errs.Configuration, "auth.secret must be at least 32 bytes")
	}

	for _, cidr := range cfg.Server.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return errs.Wrap(errs.Configuration, err, fmt.Sprintf("invalid CIDR %q", cidr))
		}
	}

	names := make(map[string]bool, len(cfg.Deployments))
	for _, d := range cfg.Deployments {
		if d.Name == "" {
			return errs.New(errs.Configuration, "deployment with empty name")
		}
		if names[d.Name] {
			return errs.New(errs.Configuration, fmt.Sprintf("duplicate deployment name %q", d.Name))
		}
		names[d.Name] = true

		switch d.Kind {
		case types.KindGitPull:
			if d.Path == "" {
				return errs.New(errs.Configuration, fmt.Sprintf("deployment %q: git_pull requires path", d.Name))
			}
		case types.KindDockerPull:
			if d.Path == "" {
				return errs.New(errs.Configuration, fmt.Sprintf("deployment %q: docker_pull requires path", d.Name))
			}
			if d.ComposeFile == "" {
				return errs.New(errs.Configuration, fmt.Sprintf("deployment %q: docker_pull requires compose_file", d.Name))
			}
		case types.KindCustomScript:
			if d.Script == "" {
				return errs.New(errs.Configuration, fmt.Sprintf("deployment %q: custom_script requires script", d.Name))
			}
		default:
			return errs.New(errs.Configuration, fmt.Sprintf("deployment %q: unknown kind %q", d.Name, d.Kind))
		}
	}

	if len(cfg.Agents) == 0 && cfg.Mode == types.ModeHome {
		log.WithComponent("config").Warn().Msg("no agents configured")
	}

	return nil
}

// ResolvePath returns the configuration file path: the explicit override if
// non-empty, else INFRACTL_CONFIG, else DefaultPath.
func ResolvePath(override string) string {
	if override != "" {
		return override
	}
	if v := os.Getenv("INFRACTL_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}
