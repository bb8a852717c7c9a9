// Package plugin provides plugin listing commands.
package plugin

import (
	"fmt"
	"text/tabwriter"

	"github.com/andrei-cloud/keydeck/internal/app"
	"github.com/andrei-cloud/keydeck/internal/config"
	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/internal/plugins"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available actions",
		Long: `Discover the plugin directory and list every action it offers,
along with modules that failed to load.`,
		RunE: runListPlugins,
	}

	cmd.Flags().StringP("filter", "f", "", "fuzzy filter on action names")
	cmd.Flags().Bool("journal", false, "print the discovery journal")

	return cmd
}

func runListPlugins(cmd *cobra.Command, _ []string) error {
	// Disable logging for CLI commands.
	log.Logger = log.Logger.Level(zerolog.Disabled)

	filter, _ := cmd.Flags().GetString("filter")
	showJournal, _ := cmd.Flags().GetBool("journal")

	ctx := cmd.Context()
	j := journal.New(nil)
	registry := plugins.NewRegistry(config.Get().Plugin.Path, j, app.DefaultLoaders()...)
	defer func() {
		_ = registry.Close(ctx)
	}()

	report := registry.Discover(ctx)
	if report.Missing {
		return fmt.Errorf("%w: %s", plugins.ErrDirectoryMissing, report.Dir)
	}

	// Create tabwriter for aligned output.
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "Action\tID\tType\tStatus")
	_, _ = fmt.Fprintln(w, "------\t--\t----\t------")

	for _, d := range plugins.FilterCatalog(registry.Catalog(), filter) {
		status := "ok"
		if err := d.Validate(); err != nil {
			status = "invalid: " + err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ActionName, d.ActionID, d.ActionType, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, f := range report.Failures {
		cmd.PrintErrf("warning: %v\n", f)
	}
	if showJournal {
		for _, line := range j.Lines() {
			cmd.Println(line)
		}
	}

	return nil
}
