// Package plugins discovers, loads and instantiates plugin actions from a
// plugin directory.
package plugins

import (
	"context"

	"github.com/andrei-cloud/keydeck/pkg/deck"
)

// Loader loads modules of one fixed file extension.
type Loader interface {
	// Ext returns the module file extension including the dot, e.g. ".wasm".
	Ext() string

	// Load opens the module at path.
	Load(ctx context.Context, path string) (Module, error)
}

// Module is a loaded plugin module.
type Module interface {
	// Candidates lists the plugin types the module exports.
	Candidates() []Candidate

	// Close releases the module.
	Close(ctx context.Context) error
}

// Candidate is one plugin type exported by a module.
type Candidate struct {
	Name string
	New  func() (deck.Plugin, error)
}

// closer is implemented by loaders that hold shared resources.
type closer interface {
	Close(ctx context.Context) error
}
