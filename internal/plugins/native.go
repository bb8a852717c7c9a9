package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"plugin"

	"github.com/andrei-cloud/keydeck/pkg/deck"
)

// NativeSymbol is the variable a native plugin exports. Its type must be
// []func() deck.Plugin or []deck.Factory.
const NativeSymbol = "Plugins"

// NativeLoader loads Go plugins built with -buildmode=plugin.
type NativeLoader struct {
	open func(path string) (*plugin.Plugin, error)
}

// NewNativeLoader returns a loader backed by the plugin package.
func NewNativeLoader() *NativeLoader {
	return &NativeLoader{open: plugin.Open}
}

// Ext implements Loader.
func (l *NativeLoader) Ext() string {
	return ".so"
}

// Load opens the shared object and looks up its factory list.
func (l *NativeLoader) Load(_ context.Context, path string) (Module, error) {
	p, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin: %w", err)
	}

	sym, err := p.Lookup(NativeSymbol)
	if err != nil {
		// a shared object without the symbol exports no plugin types.
		return &nativeModule{path: path}, nil //nolint:nilerr // not a load failure.
	}

	factories, err := nativeFactories(sym)
	if err != nil {
		return nil, err
	}

	return &nativeModule{path: path, factories: factories}, nil
}

func nativeFactories(sym plugin.Symbol) ([]deck.Factory, error) {
	switch v := sym.(type) {
	case *[]deck.Factory:
		return *v, nil
	case *[]func() deck.Plugin:
		out := make([]deck.Factory, 0, len(*v))
		for _, f := range *v {
			out = append(out, f)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("symbol %s has unsupported type %T", NativeSymbol, sym)
	}
}

// nativeModule holds the factories of one shared object. Go plugins cannot be
// unloaded, so Close is a no-op.
type nativeModule struct {
	path      string
	factories []deck.Factory
}

func (m *nativeModule) Candidates() []Candidate {
	base := filepath.Base(m.path)

	out := make([]Candidate, 0, len(m.factories))
	for i, f := range m.factories {
		if f == nil {
			continue
		}
		out = append(out, Candidate{
			Name: fmt.Sprintf("%s[%d]", base, i),
			New: func() (deck.Plugin, error) {
				return f(), nil
			},
		})
	}

	return out
}

func (m *nativeModule) Close(context.Context) error {
	return nil
}
