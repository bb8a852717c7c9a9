// Package app owns the engine components and wires them to a device.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrei-cloud/keydeck/internal/bindings"
	"github.com/andrei-cloud/keydeck/internal/device"
	"github.com/andrei-cloud/keydeck/internal/dispatch"
	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/internal/plugins"
	"github.com/andrei-cloud/keydeck/internal/render"
	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/rs/zerolog/log"
)

// Options configure an App.
type Options struct {
	PluginDir   string
	Timeout     time.Duration
	Brightness  int
	KeySize     int
	ImageFormat render.Format
	Queue       int
	Builtins    bool
}

// App is the application context: registry, binding table, renderer,
// dispatcher and device bridge.
type App struct {
	opts       Options
	dev        device.Device
	journal    *journal.Journal
	registry   *plugins.Registry
	table      *bindings.Table
	renderer   *render.Renderer
	dispatcher *dispatch.Dispatcher
	bridge     *device.Bridge
}

// DefaultLoaders returns a loader for every supported plugin format.
func DefaultLoaders() []plugins.Loader {
	return []plugins.Loader{
		plugins.NewWasmLoader(),
		plugins.NewLuaLoader(),
		plugins.NewNativeLoader(),
	}
}

// New wires the engine for dev. Nothing touches the device until Start.
func New(dev device.Device, j *journal.Journal, opts Options, loaders ...plugins.Loader) (*App, error) {
	if len(loaders) == 0 {
		loaders = DefaultLoaders()
	}

	renderer, err := render.New(dev, render.WithSize(opts.KeySize), render.WithFormat(opts.ImageFormat))
	if err != nil {
		return nil, err
	}

	a := &App{
		opts:     opts,
		dev:      dev,
		journal:  j,
		registry: plugins.NewRegistry(opts.PluginDir, j, loaders...),
		renderer: renderer,
	}
	a.table = bindings.NewTable(dev.Keys(), a.registry, renderer, j)

	dopts := []dispatch.Option{dispatch.WithTimeout(opts.Timeout)}
	if opts.Builtins {
		dopts = append(dopts,
			dispatch.WithMessageSink(dispatch.LogSink{}),
			dispatch.WithCommandRunner(dispatch.ExecRunner{}),
		)
	}
	a.dispatcher = dispatch.New(a.table, a.registry, j, dopts...)
	a.bridge = device.NewBridge(dev, func(ctx context.Context, k int) {
		a.dispatcher.OnKeyPressed(ctx, k)
	}, device.BridgeOptions{Queue: opts.Queue})

	return a, nil
}

// Start discovers plugins, attaches the device and paints every key.
func (a *App) Start(ctx context.Context) error {
	a.registry.Discover(ctx)

	if err := a.bridge.Open(a.opts.Brightness); err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	a.table.RenderAll()

	log.Info().
		Str("event", "app_started").
		Str("plugin_dir", a.registry.Dir()).
		Int("keys", a.table.Len()).
		Int("actions", len(a.registry.Catalog())).
		Msg("keydeck started")

	return nil
}

// Catalog returns the actions offered by the loaded plugins.
func (a *App) Catalog() []deck.Descriptor {
	return a.registry.Catalog()
}

// Assign binds d to key k.
func (a *App) Assign(k int, d deck.Descriptor) error {
	return a.table.Assign(k, d)
}

// Descriptor returns the action bound to key k.
func (a *App) Descriptor(k int) (deck.Descriptor, error) {
	b, err := a.table.Binding(k)
	if err != nil {
		return deck.Descriptor{}, err
	}

	return b.Descriptor, nil
}

// Configuration returns the configuration handle cached for key k, or nil.
func (a *App) Configuration(k int) (any, error) {
	return a.table.Configuration(k)
}

// SetMessage updates the text of the message bound to key k.
func (a *App) SetMessage(k int, text string) error {
	return a.table.SetMessage(k, text)
}

// SetCommand updates the command line bound to key k.
func (a *App) SetCommand(k int, cmdline string) error {
	return a.table.SetCommand(k, cmdline)
}

// Rescan rediscovers the plugin directory. Bindings are kept and resolve
// against the new plugin set on their next press.
func (a *App) Rescan(ctx context.Context) error {
	report := a.registry.Discover(ctx)
	if report.Missing {
		return fmt.Errorf("%w: %s", plugins.ErrDirectoryMissing, report.Dir)
	}

	return nil
}

// Press dispatches a key press directly, bypassing the device.
func (a *App) Press(ctx context.Context, k int) dispatch.Result {
	return a.dispatcher.OnKeyPressed(ctx, k)
}

// Table returns the key binding table.
func (a *App) Table() *bindings.Table {
	return a.table
}

// Registry returns the plugin registry.
func (a *App) Registry() *plugins.Registry {
	return a.registry
}

// Journal returns the diagnostics journal.
func (a *App) Journal() *journal.Journal {
	return a.journal
}

// Close detaches and closes the device, then releases the plugins.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.bridge.Close(), a.registry.Close(ctx))
}
