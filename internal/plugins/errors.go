package plugins

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryMissing reports that the plugin directory does not exist.
	ErrDirectoryMissing = errors.New("plugin directory does not exist")

	// ErrPluginPanic wraps a panic raised by plugin code.
	ErrPluginPanic = errors.New("plugin panicked")

	// ErrNilPlugin is returned when a factory produces no plugin.
	ErrNilPlugin = errors.New("factory returned nil plugin")
)

// DiscoveryError records a module that failed to load or a plugin type that
// failed to instantiate.
type DiscoveryError struct {
	Path      string
	Candidate string
	Err       error
}

func (e *DiscoveryError) Error() string {
	if e.Candidate != "" {
		return fmt.Sprintf("plugin %s in %s: %v", e.Candidate, e.Path, e.Err)
	}

	return fmt.Sprintf("plugin module %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Protect runs fn and converts a panic into an error wrapping ErrPluginPanic.
func Protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPluginPanic, r)
		}
	}()

	return fn()
}
