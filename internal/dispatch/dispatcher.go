// Package dispatch turns key-down events into action executions.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andrei-cloud/keydeck/internal/bindings"
	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/internal/logging"
	"github.com/andrei-cloud/keydeck/internal/plugins"
	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/google/uuid"
)

// DefaultTimeout bounds a single action execution.
const DefaultTimeout = 5 * time.Second

// ErrPluginPanic wraps a panic recovered from an action.
var ErrPluginPanic = plugins.ErrPluginPanic

// Outcome classifies a key press.
type Outcome int

const (
	// OutcomeExecuted means the bound action ran successfully.
	OutcomeExecuted Outcome = iota
	// OutcomeFailed means the bound action ran and failed.
	OutcomeFailed
	// OutcomeNoAction means the key is unassigned.
	OutcomeNoAction
	// OutcomeInert means the key holds a built-in action with no sink wired.
	OutcomeInert
	// OutcomeIgnored means the key index is unknown.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeFailed:
		return "failed"
	case OutcomeNoAction:
		return "no_action"
	case OutcomeInert:
		return "inert"
	case OutcomeIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes how one key press was handled.
type Result struct {
	Key     int
	Action  string
	Outcome Outcome
	Err     error
}

// ExecutionError reports a failed action execution.
type ExecutionError struct {
	Plugin string
	Key    int
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("action %s on key %d: %v", e.Plugin, e.Key+1, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Table is the read side of the key binding table.
type Table interface {
	Len() int
	Binding(k int) (bindings.Binding, error)
}

// Resolver finds the plugin owning an action id.
type Resolver interface {
	Lookup(actionID string) (deck.Plugin, bool)
}

// Dispatcher executes the action bound to a pressed key.
type Dispatcher struct {
	table    Table
	resolver Resolver
	journal  *journal.Journal
	timeout  time.Duration
	messages MessageSink
	commands CommandRunner

	// keyLocks serialize presses per key; different keys never contend.
	keyLocks []sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-execution deadline.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithMessageSink wires a sink for built-in message actions.
func WithMessageSink(s MessageSink) Option {
	return func(x *Dispatcher) {
		x.messages = s
	}
}

// WithCommandRunner wires a runner for built-in command actions.
func WithCommandRunner(r CommandRunner) Option {
	return func(x *Dispatcher) {
		x.commands = r
	}
}

// New returns a dispatcher reading bindings from table.
func New(table Table, resolver Resolver, j *journal.Journal, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:    table,
		resolver: resolver,
		journal:  j,
		timeout:  DefaultTimeout,
		keyLocks: make([]sync.Mutex, table.Len()),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// OnKeyPressed handles a key-down on key k. It never panics and never returns
// an error; the outcome is journaled with exactly one line and returned.
func (d *Dispatcher) OnKeyPressed(ctx context.Context, k int) Result {
	pressID := uuid.NewString()
	start := time.Now()

	if k < 0 || k >= len(d.keyLocks) {
		_, err := d.table.Binding(k)
		return d.ignore(pressID, k, err, start)
	}

	d.keyLocks[k].Lock()
	defer d.keyLocks[k].Unlock()

	// a press queued behind another on the same key runs the binding current
	// when it acquires the key.
	b, err := d.table.Binding(k)
	if err != nil {
		return d.ignore(pressID, k, err, start)
	}

	desc := b.Descriptor
	logging.LogPress(pressID, k, desc.ActionID, desc.ActionName)

	var res Result
	if p, ok := d.lookup(desc.ActionID); ok {
		res = d.runPlugin(ctx, k, p)
	} else {
		res = d.runBuiltin(ctx, k, desc)
	}

	logging.LogOutcome(pressID, k, res.Action, res.Outcome.String(), res.Err, time.Since(start))

	return res
}

func (d *Dispatcher) ignore(pressID string, k int, err error, start time.Time) Result {
	d.journal.Logf("Ignored press on unknown Key %d", k+1)
	res := Result{Key: k, Outcome: OutcomeIgnored, Err: err}
	logging.LogOutcome(pressID, k, "", res.Outcome.String(), err, time.Since(start))

	return res
}

func (d *Dispatcher) lookup(actionID string) (deck.Plugin, bool) {
	if d.resolver == nil {
		return nil, false
	}

	return d.resolver.Lookup(actionID)
}

func (d *Dispatcher) runPlugin(ctx context.Context, k int, p deck.Plugin) Result {
	var name string
	if err := plugins.Protect(func() error {
		name = p.Name()
		return nil
	}); err != nil {
		name = "<unnamed>"
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := plugins.Protect(func() error {
		return p.Execute(ctx)
	})
	if err != nil {
		d.journal.Logf("Plugin action %s failed: %s", name, err)
		return Result{
			Key:     k,
			Action:  name,
			Outcome: OutcomeFailed,
			Err:     &ExecutionError{Plugin: name, Key: k, Err: err},
		}
	}

	d.journal.Logf("Executed plugin action: %s", name)

	return Result{Key: k, Action: name, Outcome: OutcomeExecuted}
}

func (d *Dispatcher) runBuiltin(ctx context.Context, k int, desc deck.Descriptor) Result {
	var run func(context.Context) error
	switch desc.ActionType {
	case deck.TypeNone:
		d.journal.Logf("No action assigned to Key %d", k+1)
		return Result{Key: k, Outcome: OutcomeNoAction}
	case deck.TypeMessage:
		if d.messages != nil {
			run = func(context.Context) error { return d.messages.Show(desc.ActionName, desc.MessageToPrint) }
		}
	case deck.TypeCommand:
		if d.commands != nil {
			run = func(ctx context.Context) error { return d.commands.Run(ctx, desc.CommandToRun) }
		}
	}

	if run == nil {
		d.journal.Logf("No executable action for Key %d: %s", k+1, desc.ActionName)
		return Result{Key: k, Action: desc.ActionName, Outcome: OutcomeInert}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := plugins.Protect(func() error { return run(ctx) }); err != nil {
		d.journal.Logf("%s action %s failed: %s", desc.ActionType, desc.ActionName, err)
		return Result{
			Key:     k,
			Action:  desc.ActionName,
			Outcome: OutcomeFailed,
			Err:     &ExecutionError{Plugin: desc.ActionName, Key: k, Err: err},
		}
	}

	d.journal.Logf("Executed %s action: %s", desc.ActionType, desc.ActionName)

	return Result{Key: k, Action: desc.ActionName, Outcome: OutcomeExecuted}
}
