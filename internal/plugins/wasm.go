package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASM module exports.
const (
	wasmAllocExport   = "Alloc"
	wasmFreeExport    = "Free"
	wasmActionsExport = "Actions"
	wasmExecuteExport = "Execute"
)

var errModuleClosed = errors.New("plugin module closed")

// wasmAction is one entry of the JSON array returned by the Actions export.
type wasmAction struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config,omitempty"`
}

// wasmResult is the JSON document returned by the Execute export.
type wasmResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// WasmLoader loads `.wasm` plugin modules into a shared wazero runtime.
type WasmLoader struct {
	mu      sync.Mutex
	runtime wazero.Runtime
}

// NewWasmLoader returns a loader; the runtime is created on first use.
func NewWasmLoader() *WasmLoader {
	return &WasmLoader{}
}

// Ext implements Loader.
func (l *WasmLoader) Ext() string {
	return ".wasm"
}

func (l *WasmLoader) ensureRuntime(ctx context.Context) (wazero.Runtime, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runtime != nil {
		return l.runtime, nil
	}

	// closing on context done lets the execution deadline stop a runaway plugin.
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasi: %w", err)
	}
	if err := NewHostFunctions(rt).Register(ctx); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	l.runtime = rt

	return rt, nil
}

// Load compiles and instantiates the module at path and reads its action list.
func (l *WasmLoader) Load(ctx context.Context, path string) (Module, error) {
	rt, err := l.ensureRuntime(ctx)
	if err != nil {
		return nil, err
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin file: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plugin module: %w", err)
	}

	wm := &wasmModule{
		path:     path,
		base:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		rt:       rt,
		compiled: compiled,
	}
	if err := wm.instantiate(ctx); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	mod := wm.mod

	actionsFn := mod.ExportedFunction(wasmActionsExport)
	switch {
	case actionsFn == nil:
		log.Warn().Str("file", path).Msg("plugin does not export Actions function")
		return wm, nil
	case wm.execute == nil:
		log.Warn().Str("file", path).Msg("plugin does not export Execute function")
		return wm, nil
	case wm.alloc == nil:
		log.Warn().Str("file", path).Msg("plugin does not export Alloc function")
		return wm, nil
	}

	packed, err := CallPacked(ctx, actionsFn)
	if err == nil {
		var raw []byte
		if raw, err = ReadBuffer(mod, packed); err == nil {
			err = json.Unmarshal(raw, &wm.actions)
		}
	}
	if err != nil {
		_ = wm.Close(ctx)
		return nil, fmt.Errorf("failed to read plugin actions: %w", err)
	}

	return wm, nil
}

// Close releases the shared runtime and every module instantiated in it.
func (l *WasmLoader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runtime == nil {
		return nil
	}
	err := l.runtime.Close(ctx)
	l.runtime = nil

	return err
}

// wasmModule is one instantiated plugin module. Guest memory is not safe for
// concurrent use, so calls into the module are serialized.
type wasmModule struct {
	path     string
	base     string
	rt       wazero.Runtime
	compiled wazero.CompiledModule
	actions  []wasmAction

	mu      sync.Mutex
	closed  bool
	mod     api.Module
	alloc   api.Function
	free    api.Function
	execute api.Function
}

// instantiate creates a fresh instance of the compiled module. Module names
// must be unique within the runtime and base names may repeat across
// subdirectories.
func (m *wasmModule) instantiate(ctx context.Context) error {
	cfg := wazero.NewModuleConfig().
		WithName(m.base + "-" + uuid.NewString()).
		WithStartFunctions("_initialize")

	mod, err := m.rt.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return fmt.Errorf("failed to instantiate plugin module: %w", err)
	}

	m.mod = mod
	m.alloc = mod.ExportedFunction(wasmAllocExport)
	m.free = mod.ExportedFunction(wasmFreeExport)
	m.execute = mod.ExportedFunction(wasmExecuteExport)

	return nil
}

func (m *wasmModule) Candidates() []Candidate {
	out := make([]Candidate, 0, len(m.actions))
	for i, a := range m.actions {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("action[%d]", i)
		}
		out = append(out, Candidate{
			Name: name,
			New: func() (deck.Plugin, error) {
				if a.ID == "" {
					return nil, errors.New("action has no id")
				}
				if a.Name == "" {
					return nil, errors.New("action has no name")
				}

				return &wasmPlugin{module: m, action: a}, nil
			},
		})
	}

	return out
}

func (m *wasmModule) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	err := m.mod.Close(ctx)
	if cerr := m.compiled.Close(ctx); err == nil {
		err = cerr
	}

	return err
}

func (m *wasmModule) run(ctx context.Context, actionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errModuleClosed
	}
	// a call that overran its deadline closes the instance; the other actions
	// of the module continue on a fresh one.
	if m.mod.IsClosed() {
		log.Warn().
			Str("event", "plugin_reinstantiate").
			Str("file", m.path).
			Msg("plugin module was closed, instantiating a fresh copy")
		if err := m.instantiate(ctx); err != nil {
			return err
		}
	}

	input := []byte(actionID)
	ptr, err := AllocBuffer(ctx, m.mod, m.alloc, input)
	if err != nil {
		return err
	}
	if m.free != nil {
		defer func() {
			if _, err := m.free.Call(ctx, uint64(ptr)); err != nil {
				log.Debug().Err(err).Str("file", m.path).Msg("plugin Free failed")
			}
		}()
	}

	packed, err := CallPacked(ctx, m.execute, uint64(ptr), uint64(len(input)))
	if err != nil {
		return fmt.Errorf("plugin execution error: %w", err)
	}

	out, err := ReadBuffer(m.mod, packed)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}

	var res wasmResult
	if err := json.Unmarshal(out, &res); err != nil {
		return fmt.Errorf("invalid plugin result: %w", err)
	}
	if !res.Success {
		if res.Error == "" {
			return errors.New("plugin reported failure")
		}

		return errors.New(res.Error)
	}

	return nil
}

// wasmPlugin is one action exported by a WASM module.
type wasmPlugin struct {
	module *wasmModule
	action wasmAction
}

func (p *wasmPlugin) Name() string     { return p.action.Name }
func (p *wasmPlugin) ActionID() string { return p.action.ID }

func (p *wasmPlugin) ActionDetails() deck.Descriptor {
	return deck.Descriptor{
		ActionID:   p.action.ID,
		ActionName: p.action.Name,
		ActionType: deck.TypePlugin,
	}
}

// ConfigurationControl returns the raw JSON configuration the module declared.
func (p *wasmPlugin) ConfigurationControl() any {
	if len(p.action.Config) == 0 {
		return nil
	}

	return append(json.RawMessage(nil), p.action.Config...)
}

func (p *wasmPlugin) Execute(ctx context.Context) error {
	return p.module.run(ctx, p.action.ID)
}
