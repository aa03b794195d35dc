package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/infractl/pkg/config"
	"github.com/cuemby/infractl/pkg/token"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd)
		if _, err := config.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s: valid\n", path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("infractl version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
		return nil
	},
}

const defaultTokenTTL = 24 * time.Hour

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for the configured auth secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		if subject == "" {
			return fmt.Errorf("--subject is required")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, err := config.Load(configPath(cmd))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ttlUsed := ttl
		if ttlUsed <= 0 {
			ttlUsed = cfg.Auth.DefaultTokenTTL
		}
		if ttlUsed <= 0 {
			ttlUsed = defaultTokenTTL
		}

		tokens := token.NewService(cfg.Auth.Secret)
		tok, err := tokens.Generate(subject, ttlUsed)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "", "Token subject (required)")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to config's auth.default_token_ttl, then 24h)")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check a running instance's /health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		if address == "" {
			return fmt.Errorf("--address is required")
		}
		tok, _ := cmd.Flags().GetString("token")

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, normalizeBaseURL(address)+"/health", nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		fmt.Println(strings.TrimSpace(string(body)))
		return nil
	},
}

func init() {
	healthCmd.Flags().String("address", "", "Base address of the instance to check, e.g. http://localhost:8080 (required)")
	healthCmd.Flags().String("token", "", "Bearer token, if the instance requires one for this path")
}

// normalizeBaseURL prepends http:// when address has no scheme, so
// operators can pass bare host:port.
func normalizeBaseURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return strings.TrimSuffix(address, "/")
	}
	return "http://" + strings.TrimSuffix(address, "/")
}
