package deck

import "context"

// Plugin is the capability set every plugin-supplied action implements.
// Native plugins built with -buildmode=plugin export a `Plugins` variable of
// type []func() Plugin.
type Plugin interface {
	// Name is the human-readable plugin name used in logs.
	Name() string

	// ActionID joins a key binding to this plugin.
	ActionID() string

	// ActionDetails returns the descriptor offered in the action catalog.
	ActionDetails() Descriptor

	// ConfigurationControl returns an opaque configuration handle, or nil.
	ConfigurationControl() any

	// Execute runs the action. The context carries the execution deadline.
	Execute(ctx context.Context) error
}

// Factory creates a plugin instance.
type Factory func() Plugin
