package main

import (
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/infractl/pkg/types"
)

// assignmentsFileName sits next to the main config file, per §3's "one
// additional YAML file for CLI agent assignments".
const assignmentsFileName = "agent-assignments.yaml"

type assignmentsFile struct {
	Assignments []types.AgentAssignment `yaml:"assignments"`
}

func assignmentsPath(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), assignmentsFileName)
}

// loadAssignments returns an empty set if the file doesn't exist yet; a
// sticky assignment file is optional until the first --permanent deploy.
func loadAssignments(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	var parsed assignmentsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	byName := make(map[string]string, len(parsed.Assignments))
	for _, a := range parsed.Assignments {
		byName[a.DeploymentName] = a.AgentAddress
	}
	return byName, nil
}

func saveAssignments(path string, byName map[string]string) error {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	file := assignmentsFile{Assignments: make([]types.AgentAssignment, 0, len(names))}
	for _, name := range names {
		file.Assignments = append(file.Assignments, types.AgentAssignment{
			DeploymentName: name,
			AgentAddress:   byName[name],
		})
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
