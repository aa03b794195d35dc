package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/infractl/pkg/config"
	"github.com/cuemby/infractl/pkg/updater"
)

var selfUpdateCmd = &cobra.Command{
	Use:   "self-update",
	Short: "Run the self-update and config-sync path once",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		repo, _ := cmd.Flags().GetString("repo")
		prerelease, _ := cmd.Flags().GetBool("prerelease")

		cfgPath := configPath(cmd)
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		updaterCfg := cfg.Updater
		updaterCfg.Enabled = true
		if repo != "" {
			updaterCfg.Repo = repo
		}
		if prerelease {
			updaterCfg.Prerelease = true
		}

		u := updater.New(updaterCfg, Version, execPath(), updaterBackupDir(cfgPath), cfgPath, configBackupDir(cfgPath))
		if err := u.RunOnce(cmd.Context(), force); err != nil {
			return fmt.Errorf("self-update failed: %w", err)
		}
		fmt.Println("self-update check complete")
		return nil
	},
}

func init() {
	selfUpdateCmd.Flags().Bool("force", false, "Reinstall the latest release even if it isn't newer")
	selfUpdateCmd.Flags().String("repo", "", "Override the configured release repository (owner/repo)")
	selfUpdateCmd.Flags().Bool("prerelease", false, "Include prereleases when checking for the latest release")
}
