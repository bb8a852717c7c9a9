// Package plugin provides plugin creation commands.
package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andrei-cloud/keydeck/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var validName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// NewCreateCommand creates the create command.
func NewCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new Lua plugin",
		Long: `Create a Lua action plugin in the plugin directory. The script declares
one action with a generated id; edit its execute function and run
'keydeck plugin list' to check it loads.`,
		Args: cobra.ExactArgs(1),
		RunE: runCreatePlugin,
	}

	// Add flags.
	cmd.Flags().StringP("label", "l", "", "key label (defaults to NAME)")
	cmd.Flags().Bool("force", false, "overwrite an existing plugin")

	return cmd
}

func runCreatePlugin(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid plugin name %q", name)
	}

	label, _ := cmd.Flags().GetString("label")
	if label == "" {
		label = name
	}
	force, _ := cmd.Flags().GetBool("force")

	dir := config.Get().Plugin.Path
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plugin directory: %w", err)
	}

	path := filepath.Join(dir, strings.ToLower(name)+".lua")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("plugin %s already exists", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.WriteFile(path, []byte(luaTemplate(name, label)), 0o644); err != nil {
		return fmt.Errorf("failed to create plugin file: %w", err)
	}

	cmd.Printf("Created plugin %s\n", path)

	return nil
}

func luaTemplate(name, label string) string {
	id := strings.ToLower(name) + "-" + uuid.NewString()[:8]

	return fmt.Sprintf(`-- %s action plugin.
--
-- execute runs on key press. Return false and a message to report failure.
-- deck.log(msg) writes to the keydeck log.

return {
  {
    id = %q,
    name = %q,
    config = {},
    execute = function()
      deck.log(%q)
    end,
  },
}
`, name, id, label, name+" pressed")
}
