package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pingScript = `
count = 0
return {
  {
    id = "ping-1",
    name = "Ping",
    config = { target = "localhost", retries = 3 },
    execute = function()
      count = count + 1
      deck.log("pong " .. count)
    end,
  },
  { id = "fail-1", name = "Fail", execute = function() return false, "host unreachable" end },
  { id = "boom-1", name = "Boom", execute = function() error("kaboom") end },
  { id = "noname" , execute = function() end },
  { name = "not a plugin" },
}
`

func loadScript(t *testing.T, script string) *Registry {
	t.Helper()

	dir := t.TempDir()
	writeFile(t, dir, "script.lua", script)

	r := NewRegistry(dir, journal.New(nil), NewLuaLoader())
	r.Discover(context.Background())
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	return r
}

func TestLuaLoaderCandidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "script.lua", pingScript)

	j := journal.New(nil)
	r := NewRegistry(dir, j, NewLuaLoader())
	report := r.Discover(context.Background())
	defer r.Close(context.Background())

	require.Len(t, report.Plugins, 3)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "actions[4]", report.Failures[0].Candidate)
	assert.Equal(t, []deck.Descriptor{
		{ActionID: "ping-1", ActionName: "Ping", ActionType: deck.TypePlugin},
		{ActionID: "fail-1", ActionName: "Fail", ActionType: deck.TypePlugin},
		{ActionID: "boom-1", ActionName: "Boom", ActionType: deck.TypePlugin},
	}, r.Catalog())

	p, ok := r.Lookup("ping-1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"target": "localhost", "retries": float64(3)}, p.ConfigurationControl())
}

func TestLuaPluginExecute(t *testing.T) {
	r := loadScript(t, pingScript)
	ctx := context.Background()

	ping, ok := r.Lookup("ping-1")
	require.True(t, ok)
	require.NoError(t, ping.Execute(ctx))
	require.NoError(t, ping.Execute(ctx))

	fail, ok := r.Lookup("fail-1")
	require.True(t, ok)
	assert.EqualError(t, fail.Execute(ctx), "host unreachable")

	boom, ok := r.Lookup("boom-1")
	require.True(t, ok)
	err := boom.Execute(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// the state survives a failing action.
	assert.NoError(t, ping.Execute(ctx))
}

func TestLuaGlobalActions(t *testing.T) {
	r := loadScript(t, `actions = { { id = "g-1", name = "Global", execute = function() end } }`)

	assert.Equal(t, []deck.Descriptor{
		{ActionID: "g-1", ActionName: "Global", ActionType: deck.TypePlugin},
	}, r.Catalog())
}

func TestLuaScriptWithoutActions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.lua", `local x = 1`)

	j := journal.New(nil)
	r := NewRegistry(dir, j, NewLuaLoader())
	report := r.Discover(context.Background())

	assert.Empty(t, report.Plugins)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, j.Count("No valid plugins found in "+path+"."))
}

func TestLuaSyntaxErrorIsLoadFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.lua", `return {`)

	j := journal.New(nil)
	r := NewRegistry(dir, j, NewLuaLoader())
	report := r.Discover(context.Background())

	require.Len(t, report.Failures, 1)
	assert.Equal(t, path, report.Failures[0].Path)
	assert.Equal(t, 1, j.Count("Failed to load plugin from "+path))
}

func TestLuaSandboxHasNoOS(t *testing.T) {
	r := loadScript(t, `return { { id = "os-1", name = "OS", execute = function() os.exit(1) end } }`)

	p, ok := r.Lookup("os-1")
	require.True(t, ok)
	assert.Error(t, p.Execute(context.Background()))
}

func TestLuaExecuteHonorsDeadline(t *testing.T) {
	r := loadScript(t, `return { { id = "spin", name = "Spin", execute = function() while true do end end } }`)

	p, ok := r.Lookup("spin")
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Error(t, p.Execute(ctx))
}

func TestLuaExampleCounter(t *testing.T) {
	r := NewRegistry("../../plugins/examples", journal.New(nil), NewLuaLoader())
	r.Discover(context.Background())
	defer r.Close(context.Background())

	p, ok := r.Lookup("example-counter")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"fail_every": float64(5)}, p.ConfigurationControl())

	for i := 1; i <= 4; i++ {
		require.NoError(t, p.Execute(context.Background()))
	}
	assert.EqualError(t, p.Execute(context.Background()), "press 5 rejected")
}
