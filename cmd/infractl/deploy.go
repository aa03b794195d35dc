package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/infractl/pkg/config"
	"github.com/cuemby/infractl/pkg/token"
	"github.com/cuemby/infractl/pkg/types"
)

// cliTokenTTL is how long the short-lived token minted for one CLI request
// lives; long enough for the call, never persisted.
const cliTokenTTL = 5 * time.Minute

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Trigger or stop a deployment, locally or on an agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath := configPath(cmd)
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		list, _ := cmd.Flags().GetBool("list")
		if list {
			return runDeployList(cfg, assignmentsPath(cfgPath))
		}

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		if !hasDeployment(cfg, name) {
			return fmt.Errorf("deployment %q not found in config", name)
		}

		agentFlag, _ := cmd.Flags().GetString("agent")
		permanent, _ := cmd.Flags().GetBool("permanent")
		reset, _ := cmd.Flags().GetBool("reset")

		byAgent, err := loadAssignments(assignmentsPath(cfgPath))
		if err != nil {
			return fmt.Errorf("load agent assignments: %w", err)
		}

		target, err := resolveTarget(cfg, agentFlag, byAgent[name])
		if err != nil {
			return err
		}

		if permanent {
			if agentFlag == "" {
				return fmt.Errorf("--permanent requires --agent")
			}
			byAgent[name] = target
			if err := saveAssignments(assignmentsPath(cfgPath), byAgent); err != nil {
				return fmt.Errorf("save agent assignments: %w", err)
			}
		}

		path := "/webhook/deploy/" + name
		if reset {
			path = "/webhook/shutdown/" + name
		}

		return callWebhook(cmd, cfg, target, path)
	},
}

func init() {
	deployCmd.Flags().String("name", "", "Deployment name")
	deployCmd.Flags().String("agent", "", "Agent name (from config) or base URL to target")
	deployCmd.Flags().Bool("permanent", false, "Persist --agent as the sticky assignment for --name")
	deployCmd.Flags().Bool("list", false, "List configured deployments and their sticky agent assignment")
	deployCmd.Flags().Bool("reset", false, "Stop the deployment (shutdown path) instead of triggering it")
}

func hasDeployment(cfg *types.Config, name string) bool {
	for _, d := range cfg.Deployments {
		if d.Name == name {
			return true
		}
	}
	return false
}

func runDeployList(cfg *types.Config, assignPath string) error {
	byAgent, err := loadAssignments(assignPath)
	if err != nil {
		return fmt.Errorf("load agent assignments: %w", err)
	}
	for _, d := range cfg.Deployments {
		agent := byAgent[d.Name]
		if agent == "" {
			agent = "(local)"
		}
		fmt.Printf("%s\t%s\t%s\n", d.Name, d.Kind, agent)
	}
	return nil
}

// resolveTarget picks the base URL a deploy/shutdown request goes to:
// an explicit --agent (resolved against cfg.Agents by name, else taken as
// a literal base URL), else the sticky assignment, else the local server.
func resolveTarget(cfg *types.Config, agentFlag, sticky string) (string, error) {
	if agentFlag != "" {
		for _, a := range cfg.Agents {
			if a.Name == agentFlag {
				return a.Address, nil
			}
		}
		return normalizeBaseURL(agentFlag), nil
	}
	if sticky != "" {
		return sticky, nil
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port), nil
}

func callWebhook(cmd *cobra.Command, cfg *types.Config, baseURL, path string) error {
	tokens := token.NewService(cfg.Auth.Secret)
	tok, err := tokens.Generate("cli", cliTokenTTL)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request rejected: status %d: %s", resp.StatusCode, string(body))
	}

	fmt.Println(string(body))
	return nil
}
