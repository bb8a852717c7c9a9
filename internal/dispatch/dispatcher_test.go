package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrei-cloud/keydeck/internal/bindings"
	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcPlugin struct {
	id, name string
	exec     func(ctx context.Context) error
	calls    atomic.Int32
}

func (p *funcPlugin) Name() string     { return p.name }
func (p *funcPlugin) ActionID() string { return p.id }
func (p *funcPlugin) ActionDetails() deck.Descriptor {
	return deck.Descriptor{ActionID: p.id, ActionName: p.name, ActionType: deck.TypePlugin}
}
func (p *funcPlugin) ConfigurationControl() any { return nil }
func (p *funcPlugin) Execute(ctx context.Context) error {
	p.calls.Add(1)
	if p.exec == nil {
		return nil
	}

	return p.exec(ctx)
}

type mapResolver map[string]deck.Plugin

func (m mapResolver) Lookup(id string) (deck.Plugin, bool) {
	p, ok := m[id]
	return p, ok
}

type recordingSink struct {
	mu   sync.Mutex
	seen []string
}

func (s *recordingSink) Show(name, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, name+"="+text)

	return nil
}

type fakeRunner struct {
	err error
	got []string
}

func (r *fakeRunner) Run(_ context.Context, cmdline string) error {
	r.got = append(r.got, cmdline)
	return r.err
}

func setup(t *testing.T, ps ...*funcPlugin) (*Dispatcher, *bindings.Table, *journal.Journal, mapResolver) {
	t.Helper()

	res := mapResolver{}
	for _, p := range ps {
		res[p.id] = p
	}
	j := journal.New(nil)
	table := bindings.NewTable(6, res, nil, j)

	return New(table, res, j), table, j, res
}

func bind(t *testing.T, table *bindings.Table, k int, p *funcPlugin) {
	t.Helper()
	require.NoError(t, table.Assign(k, p.ActionDetails()))
}

func TestOnKeyPressedExecutes(t *testing.T) {
	ping := &funcPlugin{id: "ping-1", name: "Ping"}
	d, table, j, _ := setup(t, ping)
	bind(t, table, 0, ping)
	before := j.Len()

	res := d.OnKeyPressed(context.Background(), 0)

	assert.Equal(t, Result{Key: 0, Action: "Ping", Outcome: OutcomeExecuted}, res)
	assert.Equal(t, int32(1), ping.calls.Load())
	assert.Equal(t, before+1, j.Len())
	assert.Equal(t, 1, j.Count("Executed plugin action: Ping"))
}

func TestOnKeyPressedContainsFailures(t *testing.T) {
	failing := &funcPlugin{id: "fail-1", name: "Boom", exec: func(context.Context) error {
		return errors.New("nope")
	}}
	panicky := &funcPlugin{id: "panic-1", name: "Panicky", exec: func(context.Context) error {
		panic("exploded")
	}}
	ping := &funcPlugin{id: "ping-1", name: "Ping"}
	d, table, j, _ := setup(t, failing, panicky, ping)
	bind(t, table, 0, failing)
	bind(t, table, 1, panicky)
	bind(t, table, 2, ping)

	res := d.OnKeyPressed(context.Background(), 0)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	var execErr *ExecutionError
	require.ErrorAs(t, res.Err, &execErr)
	assert.Equal(t, "Boom", execErr.Plugin)
	assert.Equal(t, 0, execErr.Key)
	assert.Equal(t, 1, j.Count("Plugin action Boom failed: nope"))

	res = d.OnKeyPressed(context.Background(), 1)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPluginPanic)
	assert.Equal(t, 1, j.Count("Plugin action Panicky failed: "))

	// the engine keeps serving presses after a fault.
	res = d.OnKeyPressed(context.Background(), 2)
	assert.Equal(t, OutcomeExecuted, res.Outcome)
}

func TestOnKeyPressedUnassignedAndUnknown(t *testing.T) {
	d, _, j, _ := setup(t)

	res := d.OnKeyPressed(context.Background(), 2)
	assert.Equal(t, OutcomeNoAction, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, j.Count("No action assigned to Key 3"))

	before := j.Len()
	res = d.OnKeyPressed(context.Background(), 9)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.ErrorIs(t, res.Err, bindings.ErrKeyOutOfRange)
	assert.Equal(t, before+1, j.Len())

	res = d.OnKeyPressed(context.Background(), -1)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestOnKeyPressedUnresolvedPlugin(t *testing.T) {
	d, table, j, _ := setup(t)
	require.NoError(t, table.Assign(0, deck.Descriptor{
		ActionID:   "gone-1",
		ActionName: "Gone",
		ActionType: deck.TypePlugin,
	}))

	res := d.OnKeyPressed(context.Background(), 0)

	assert.Equal(t, OutcomeInert, res.Outcome)
	assert.Equal(t, 1, j.Count("No executable action for Key 1: Gone"))
}

func TestBuiltinsInertByDefault(t *testing.T) {
	d, table, j, _ := setup(t)
	require.NoError(t, table.Assign(0, deck.Message("Hello", "world")))
	require.NoError(t, table.Assign(1, deck.Command("List", "ls -l")))

	assert.Equal(t, OutcomeInert, d.OnKeyPressed(context.Background(), 0).Outcome)
	assert.Equal(t, OutcomeInert, d.OnKeyPressed(context.Background(), 1).Outcome)
	assert.Equal(t, 1, j.Count("No executable action for Key 1: Hello"))
	assert.Equal(t, 1, j.Count("No executable action for Key 2: List"))
}

func TestBuiltinsEnabled(t *testing.T) {
	sink := &recordingSink{}
	runner := &fakeRunner{}
	j := journal.New(nil)
	table := bindings.NewTable(3, nil, nil, j)
	d := New(table, nil, j, WithMessageSink(sink), WithCommandRunner(runner))

	require.NoError(t, table.Assign(0, deck.Message("Hello", "world")))
	require.NoError(t, table.Assign(1, deck.Command("List", "ls -l")))

	before := j.Len()
	assert.Equal(t, OutcomeExecuted, d.OnKeyPressed(context.Background(), 0).Outcome)
	assert.Equal(t, OutcomeExecuted, d.OnKeyPressed(context.Background(), 1).Outcome)
	assert.Equal(t, before+2, j.Len())

	assert.Equal(t, []string{"Hello=world"}, sink.seen)
	assert.Equal(t, []string{"ls -l"}, runner.got)
	assert.Equal(t, 1, j.Count("Executed message action: Hello"))
	assert.Equal(t, 1, j.Count("Executed command action: List"))

	runner.err = errors.New("exit status 1")
	res := d.OnKeyPressed(context.Background(), 1)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, j.Count("command action List failed: exit status 1"))
}

func TestOnKeyPressedTimeout(t *testing.T) {
	slow := &funcPlugin{id: "slow-1", name: "Slow", exec: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	res := mapResolver{slow.id: slow}
	j := journal.New(nil)
	table := bindings.NewTable(2, res, nil, j)
	d := New(table, res, j, WithTimeout(20*time.Millisecond))
	bind(t, table, 0, slow)

	out := d.OnKeyPressed(context.Background(), 0)

	assert.Equal(t, OutcomeFailed, out.Outcome)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestSameKeyIsSerialized(t *testing.T) {
	var active, peak atomic.Int32
	counter := &funcPlugin{id: "count-1", name: "Count", exec: func(context.Context) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)

		return nil
	}}
	d, table, _, _ := setup(t, counter)
	bind(t, table, 0, counter)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.OnKeyPressed(context.Background(), 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), counter.calls.Load())
	assert.Equal(t, int32(1), peak.Load())
}

func TestDifferentKeysDoNotWait(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocker := &funcPlugin{id: "block-1", name: "Block", exec: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	ping := &funcPlugin{id: "ping-1", name: "Ping"}
	d, table, _, _ := setup(t, blocker, ping)
	bind(t, table, 0, blocker)
	bind(t, table, 1, ping)

	done := make(chan Result, 1)
	go func() { done <- d.OnKeyPressed(context.Background(), 0) }()
	<-started

	assert.Equal(t, OutcomeExecuted, d.OnKeyPressed(context.Background(), 1).Outcome)

	close(release)
	assert.Equal(t, OutcomeExecuted, (<-done).Outcome)
}

func TestExecRunnerErrors(t *testing.T) {
	r := ExecRunner{}

	require.Error(t, r.Run(context.Background(), "   "))
	require.Error(t, r.Run(context.Background(), "keydeck-no-such-binary --flag"))
}

func TestQueuedPressRunsCurrentBinding(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	slow := &funcPlugin{id: "slow-1", name: "Slow", exec: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	ping := &funcPlugin{id: "ping-1", name: "Ping"}
	d, table, _, _ := setup(t, slow, ping)
	bind(t, table, 0, slow)

	first := make(chan Result, 1)
	go func() { first <- d.OnKeyPressed(context.Background(), 0) }()
	<-started

	second := make(chan Result, 1)
	go func() { second <- d.OnKeyPressed(context.Background(), 0) }()
	// let the second press reach the key lock before rebinding.
	time.Sleep(50 * time.Millisecond)

	bind(t, table, 0, ping)
	close(release)

	assert.Equal(t, "Slow", (<-first).Action)
	res := <-second
	assert.Equal(t, "Ping", res.Action)
	assert.Equal(t, OutcomeExecuted, res.Outcome)
	assert.Equal(t, int32(1), slow.calls.Load())
	assert.Equal(t, int32(1), ping.calls.Load())
}
