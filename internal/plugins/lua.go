package plugins

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// LuaLoader loads `.lua` plugin scripts. A script returns, or assigns to the
// global `actions`, an array of tables:
//
//	return {
//	  { id = "ping-1", name = "Ping", execute = function() deck.log("pong") end },
//	}
//
// execute may return false and a message to report failure.
type LuaLoader struct{}

// NewLuaLoader returns a Lua script loader.
func NewLuaLoader() *LuaLoader {
	return &LuaLoader{}
}

// Ext implements Loader.
func (l *LuaLoader) Ext() string {
	return ".lua"
}

// Load runs the script in a fresh state with only the safe standard libraries
// and collects its action tables.
func (l *LuaLoader) Load(ctx context.Context, path string) (Module, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	m := &luaModule{path: path, L: L}
	m.installHostAPI()

	L.SetContext(ctx)
	err := L.DoFile(path)
	L.RemoveContext()
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to run plugin script: %w", err)
	}

	var exported lua.LValue = lua.LNil
	if top := L.GetTop(); top > 0 {
		exported = L.Get(-1)
		L.Pop(top)
	}
	if exported == lua.LNil {
		exported = L.GetGlobal("actions")
	}
	if tbl, ok := exported.(*lua.LTable); ok {
		m.actions = tbl
	}

	return m, nil
}

// openSafeLibraries opens only the libraries without file system or process
// access.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	// the openers leave their module tables on the stack.
	L.SetTop(0)
}

// luaModule is one loaded script. LState is not goroutine-safe, so every call
// into it holds mu.
type luaModule struct {
	path    string
	L       *lua.LState
	actions *lua.LTable
	mu      sync.Mutex
}

func (m *luaModule) installHostAPI() {
	api := m.L.NewTable()
	m.L.SetField(api, "log", m.L.NewFunction(func(L *lua.LState) int {
		log.Info().
			Str("source", "lua").
			Str("module", filepath.Base(m.path)).
			Msg(L.CheckString(1))

		return 0
	}))
	m.L.SetGlobal("deck", api)
}

func (m *luaModule) Candidates() []Candidate {
	if m.actions == nil {
		return nil
	}

	var out []Candidate
	for i := 1; i <= m.actions.Len(); i++ {
		tbl, ok := m.actions.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue
		}
		fn, ok := tbl.RawGetString("execute").(*lua.LFunction)
		if !ok {
			// tables without execute are not plugin types.
			continue
		}

		id := luaString(tbl.RawGetString("id"))
		name := luaString(tbl.RawGetString("name"))
		config := luaToGo(tbl.RawGetString("config"))
		label := name
		if label == "" {
			label = fmt.Sprintf("actions[%d]", i)
		}

		out = append(out, Candidate{
			Name: label,
			New: func() (deck.Plugin, error) {
				if id == "" {
					return nil, errors.New("action has no id")
				}
				if name == "" {
					return nil, errors.New("action has no name")
				}

				return &luaPlugin{module: m, id: id, name: name, fn: fn, config: config}, nil
			},
		})
	}

	return out
}

func (m *luaModule) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.L.Close()

	return nil
}

func (m *luaModule) call(ctx context.Context, fn *lua.LFunction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.L.SetContext(ctx)
	defer m.L.RemoveContext()

	if err := m.L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}); err != nil {
		return err
	}

	ok, msg := m.L.Get(-2), m.L.Get(-1)
	m.L.Pop(2)

	if ok == lua.LFalse {
		if s := luaString(msg); s != "" {
			return errors.New(s)
		}

		return errors.New("plugin reported failure")
	}

	return nil
}

// luaPlugin is one action table of a Lua script.
type luaPlugin struct {
	module *luaModule
	id     string
	name   string
	fn     *lua.LFunction
	config any
}

func (p *luaPlugin) Name() string     { return p.name }
func (p *luaPlugin) ActionID() string { return p.id }

func (p *luaPlugin) ActionDetails() deck.Descriptor {
	return deck.Descriptor{ActionID: p.id, ActionName: p.name, ActionType: deck.TypePlugin}
}

// ConfigurationControl returns the script's config table converted to Go
// values, or nil.
func (p *luaPlugin) ConfigurationControl() any {
	return p.config
}

func (p *luaPlugin) Execute(ctx context.Context) error {
	return p.module.call(ctx, p.fn)
}

func luaString(v lua.LValue) string {
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}

	return ""
}

// luaToGo converts plain Lua data to Go values. Tables with a non-zero array
// length become slices, other tables become maps keyed by string.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}

			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) {
			out[k.String()] = luaToGo(v)
		})

		return out
	default:
		return nil
	}
}
