package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"mediadl/pkg/auth"
	"mediadl/pkg/config"
	"mediadl/pkg/ui"
)

var forceInit bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage mediadl configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (MEDIADL_*)
  - A .env file
  - Configuration file
  - Default values (lowest priority)`,
	// Config subcommands load the file themselves so that a broken file can
	// still be inspected or replaced.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetNoColor(noColor)
		ui.SetQuietMode(quiet)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default",
	Long: `Write the default configuration to the path given by --config, or to
$XDG_CONFIG_HOME/mediadl/config.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("configuration file %s already exists, use --force to overwrite", path)
		}

		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		ui.PrintSuccess("Configuration file created: " + path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. Session values are
masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configFile, flagValues(cmd.Flags()))
		if err != nil {
			return err
		}
		data, err := marshalMasked(c)
		if err != nil {
			return err
		}

		ui.PrintHighlight("Current Configuration")
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for invalid values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configFile, flagValues(cmd.Flags()))
		if err != nil {
			var problems []string
			for _, line := range strings.Split(err.Error(), "\n") {
				problems = append(problems, "  - "+line)
			}
			ui.PrintError("Configuration is invalid")
			fmt.Fprintln(os.Stderr, strings.Join(problems, "\n"))
			return errors.New("configuration validation failed")
		}

		if _, err := os.Stat(c.Download.Directory); err != nil {
			ui.PrintWarning("Download directory does not exist yet", c.Download.Directory)
		}
		for _, w := range c.Warnings() {
			ui.PrintWarning("Check configuration", w)
		}
		ui.PrintSuccess("Configuration is valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
}

// marshalMasked renders c as YAML with every session value masked
func marshalMasked(c *config.Config) ([]byte, error) {
	display := *c
	if len(c.Auth.Sessions) > 0 {
		display.Auth.Sessions = make(map[string]string, len(c.Auth.Sessions))
		for site, value := range c.Auth.Sessions {
			display.Auth.Sessions[site] = auth.SanitizeSession(&auth.Session{Site: site, Value: value}).Value
		}
	}
	data, err := yaml.Marshal(&display)
	if err != nil {
		return nil, fmt.Errorf("failed to format configuration: %w", err)
	}
	return data, nil
}
