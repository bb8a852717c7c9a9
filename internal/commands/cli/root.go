// Package cli provides the CLI command structure for keydeck.
package cli

import (
	"fmt"
	"os"

	"github.com/andrei-cloud/keydeck/internal/config"
	"github.com/andrei-cloud/keydeck/internal/logging"
	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCommand creates and returns the root command with all subcommands.
func NewRootCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "keydeck",
		Short: "Plugin-driven macro key engine",
		Long: `keydeck binds messages, commands and plugin actions to the keys
of a macro pad, runs them on key press and draws each key's label.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Initialize configuration before running any command.
			if err := config.Initialize(cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg := config.Get()
			logging.Configure(os.Stderr, cfg.Log.Level, cfg.Log.Format)

			return nil
		},
	}

	// Add persistent flags that affect all commands.
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default is $HOME/.keydeck/config.yaml)")

	// Add global flags that can override config file settings.
	rootCmd.PersistentFlags().
		String("log-level", "info", "logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "human", "logging format (human, json)")
	rootCmd.PersistentFlags().String("plugin-path", "plugins", "path to plugin directory")

	// Bind flags to viper.
	v := config.GetViper()
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("plugin.path", rootCmd.PersistentFlags().Lookup("plugin-path"))

	// Register all commands.
	if err := RegisterCommands(rootCmd); err != nil {
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	return rootCmd, nil
}
