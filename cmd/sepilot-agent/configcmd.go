package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create agent configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to " + config.WorkspaceFile,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(repoFlag)
		if err != nil {
			return err
		}
		path := filepath.Join(root, config.WorkspaceFile)
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(repoFlag)
		if err != nil {
			return err
		}
		cfg, _, err := loadConfig(root)
		if err != nil {
			return err
		}
		if cfg.Provider.APIKey != "" {
			cfg.Provider.APIKey = "********"
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
