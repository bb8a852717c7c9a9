package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/rs/zerolog/log"
)

// Report is the result of one discovery pass.
type Report struct {
	Dir      string
	Plugins  []deck.Plugin
	Failures []*DiscoveryError
	Missing  bool
}

// entry caches the identity of a loaded plugin.
type entry struct {
	plugin deck.Plugin
	name   string
	id     string
	path   string
}

// Registry owns the loaded plugins. It is rebuilt only by Discover.
type Registry struct {
	dir     string
	loaders map[string]Loader
	journal *journal.Journal

	discoverMu sync.Mutex // Discover is not re-entrant.

	mu      sync.RWMutex
	entries []entry
	modules []Module
}

// NewRegistry returns a registry scanning dir with the given loaders.
func NewRegistry(dir string, j *journal.Journal, loaders ...Loader) *Registry {
	r := &Registry{
		dir:     dir,
		loaders: make(map[string]Loader, len(loaders)),
		journal: j,
	}
	for _, l := range loaders {
		r.loaders[strings.ToLower(l.Ext())] = l
	}

	return r
}

// Dir returns the plugin directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Discover scans the plugin directory, loads every module and instantiates
// every plugin type it exports. A failing module or plugin type is recorded
// and skipped. The previous plugin set is replaced and its modules closed.
func (r *Registry) Discover(ctx context.Context) *Report {
	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()

	report := &Report{Dir: r.dir}
	r.journal.Logf("Checking for plugins in: %s", r.dir)

	info, err := os.Stat(r.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && !info.IsDir():
		report.Missing = true
		r.journal.Logf("Plugin directory does not exist: %s", r.dir)
		log.Warn().Str("event", "plugin_dir_missing").Str("dir", r.dir).Msg("plugin directory does not exist")
		r.swap(ctx, nil, nil)

		return report
	case err != nil:
		report.Failures = append(report.Failures, &DiscoveryError{Path: r.dir, Err: err})
		r.journal.Logf("Failed to read plugin directory %s: %s", r.dir, err)
		r.swap(ctx, nil, nil)

		return report
	}

	files := r.scan()
	r.journal.Logf("Found %d module(s) in plugin directory.", len(files))

	var (
		entries []entry
		modules []Module
	)
	for _, path := range files {
		loaded, mod, failures := r.loadModule(ctx, path)
		report.Failures = append(report.Failures, failures...)
		if mod == nil {
			continue
		}
		if len(loaded) == 0 {
			r.journal.Logf("No valid plugins found in %s.", path)
			r.closeModule(ctx, path, mod)

			continue
		}
		entries = append(entries, loaded...)
		modules = append(modules, mod)
	}

	for _, e := range entries {
		report.Plugins = append(report.Plugins, e.plugin)
	}
	r.swap(ctx, entries, modules)

	for _, d := range r.Catalog() {
		r.journal.Logf("Adding plugin action: %s", d.ActionName)
		if err := d.Validate(); err != nil {
			r.journal.Logf("Invalid action details for %s: %s", d.ActionName, err)
			log.Warn().Err(err).
				Str("event", "invalid_action").
				Str("action", d.ActionName).
				Str("action_id", d.ActionID).
				Msg("plugin reported invalid action details")
		}
	}

	log.Info().
		Str("event", "plugins_discovered").
		Str("dir", r.dir).
		Int("modules", len(files)).
		Int("plugins", len(report.Plugins)).
		Int("failures", len(report.Failures)).
		Msg("plugin discovery complete")

	return report
}

// scan walks the plugin directory and returns loadable module paths in
// lexical order.
func (r *Registry) scan() []string {
	var files []string
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable plugin path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := r.loaders[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("dir", r.dir).Msg("plugin directory walk failed")
	}

	return files
}

// loadModule loads one module and instantiates its candidates. A nil module
// means the load itself failed.
func (r *Registry) loadModule(ctx context.Context, path string) ([]entry, Module, []*DiscoveryError) {
	r.journal.Logf("Loading plugin from %s", path)

	loader := r.loaders[strings.ToLower(filepath.Ext(path))]

	var mod Module
	err := Protect(func() error {
		var err error
		mod, err = loader.Load(ctx, path)
		return err
	})
	if err == nil && mod == nil {
		err = errors.New("loader returned no module")
	}
	if err != nil {
		r.journal.Logf("Failed to load plugin from %s: %s", path, err)
		log.Error().Err(err).Str("event", "plugin_load_failed").Str("path", path).Msg("failed to load plugin module")

		return nil, nil, []*DiscoveryError{{Path: path, Err: err}}
	}

	var (
		loaded   []entry
		failures []*DiscoveryError
	)
	for _, c := range mod.Candidates() {
		e, err := instantiate(c)
		if err != nil {
			failures = append(failures, &DiscoveryError{Path: path, Candidate: c.Name, Err: err})
			r.journal.Logf("Failed to instantiate plugin %s from %s: %s", c.Name, path, err)
			log.Error().Err(err).
				Str("event", "plugin_instantiate_failed").
				Str("path", path).
				Str("candidate", c.Name).
				Msg("failed to instantiate plugin")

			continue
		}
		e.path = path
		loaded = append(loaded, e)

		r.journal.Logf("Loaded plugin: %s", e.name)
		log.Info().
			Str("event", "plugin_loaded").
			Str("plugin", e.name).
			Str("action_id", e.id).
			Str("path", path).
			Msg("loaded plugin")
	}

	return loaded, mod, failures
}

// instantiate creates a plugin from a candidate and caches its identity.
func instantiate(c Candidate) (entry, error) {
	var e entry
	err := Protect(func() error {
		p, err := c.New()
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNilPlugin
		}
		e = entry{plugin: p, name: p.Name(), id: p.ActionID()}

		return nil
	})

	return e, err
}

func (r *Registry) swap(ctx context.Context, entries []entry, modules []Module) {
	r.mu.Lock()
	oldModules := r.modules
	r.entries = entries
	r.modules = modules
	r.mu.Unlock()

	for _, m := range oldModules {
		r.closeModule(ctx, "", m)
	}
}

func (r *Registry) closeModule(ctx context.Context, path string, m Module) {
	if err := Protect(func() error { return m.Close(ctx) }); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to close plugin module")
	}
}

// Plugins returns the loaded plugins in load order.
func (r *Registry) Plugins() []deck.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]deck.Plugin, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.plugin)
	}

	return out
}

// Lookup returns the first plugin whose action id matches. Duplicate ids are
// not rejected; later plugins with the same id are unreachable.
func (r *Registry) Lookup(actionID string) (deck.Plugin, bool) {
	if actionID == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.id == actionID {
			return e.plugin, true
		}
	}

	return nil, false
}

// Catalog returns the descriptors of every loaded plugin in load order,
// without de-duplication.
func (r *Registry) Catalog() []deck.Descriptor {
	r.mu.RLock()
	entries := append([]entry(nil), r.entries...)
	r.mu.RUnlock()

	out := make([]deck.Descriptor, 0, len(entries))
	for _, e := range entries {
		var d deck.Descriptor
		err := Protect(func() error {
			d = e.plugin.ActionDetails()
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("plugin", e.name).Msg("failed to read action details")
			continue
		}
		out = append(out, d)
	}

	return out
}

// Close releases every loaded module and the loaders' shared resources.
func (r *Registry) Close(ctx context.Context) error {
	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()

	r.swap(ctx, nil, nil)

	var errs []error
	for ext, l := range r.loaders {
		c, ok := l.(closer)
		if !ok {
			continue
		}
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s loader: %w", ext, err))
		}
	}

	return errors.Join(errs...)
}
