// Package cli provides centralized command registration.
package cli

import (
	"github.com/andrei-cloud/keydeck/internal/commands/cli/plugin"
	"github.com/andrei-cloud/keydeck/internal/commands/cli/render"
	"github.com/andrei-cloud/keydeck/internal/commands/cli/run"
	"github.com/spf13/cobra"
)

// RegisterCommands registers all root commands.
func RegisterCommands(root *cobra.Command) error {
	root.AddCommand(run.NewRunCommand())
	root.AddCommand(plugin.NewPluginCommand())
	root.AddCommand(render.NewRenderCommand())

	return nil
}
