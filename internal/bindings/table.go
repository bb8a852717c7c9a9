// Package bindings holds the fixed-size table mapping physical keys to their
// assigned actions.
package bindings

import (
	"errors"
	"fmt"
	"sync"

	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/internal/plugins"
	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/rs/zerolog/log"
)

// ErrKeyOutOfRange is returned for a key index outside the table.
var ErrKeyOutOfRange = errors.New("key index out of range")

// Resolver finds the plugin owning an action id.
type Resolver interface {
	Lookup(actionID string) (deck.Plugin, bool)
}

// Renderer paints a key's label onto the device.
type Renderer interface {
	Render(index int, label string) error
}

// Binding is a snapshot of one key slot.
type Binding struct {
	Key        int
	Descriptor deck.Descriptor
	// Control is the configuration handle cached from the owning plugin at
	// assignment time, or nil.
	Control any
}

// Table maps each key index to its binding.
type Table struct {
	resolver Resolver
	renderer Renderer
	journal  *journal.Journal

	assignMu sync.Mutex // serializes assignment and its render.

	mu    sync.RWMutex
	slots []Binding
}

// NewTable returns a table of n unassigned slots.
func NewTable(n int, resolver Resolver, renderer Renderer, j *journal.Journal) *Table {
	slots := make([]Binding, n)
	for i := range slots {
		slots[i].Key = i
	}

	return &Table{resolver: resolver, renderer: renderer, journal: j, slots: slots}
}

// Len returns the number of keys.
func (t *Table) Len() int {
	return len(t.slots)
}

func (t *Table) check(k int) error {
	if k < 0 || k >= len(t.slots) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrKeyOutOfRange, k, len(t.slots))
	}

	return nil
}

// Assign binds a copy of d to key k, caches the owning plugin's
// configuration handle and re-renders the key before returning.
func (t *Table) Assign(k int, d deck.Descriptor) error {
	if err := t.check(k); err != nil {
		return err
	}

	t.assignMu.Lock()
	defer t.assignMu.Unlock()

	b := Binding{Key: k, Descriptor: d}
	if p, ok := t.lookup(d.ActionID); ok {
		err := plugins.Protect(func() error {
			b.Control = p.ConfigurationControl()
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("action_id", d.ActionID).Msg("failed to read configuration control")
		}
	}

	t.mu.Lock()
	t.slots[k] = b
	t.mu.Unlock()

	t.render(k, d.Label())
	t.journal.Logf("Assigned %s to Key %d", d.ActionName, k+1)
	log.Debug().
		Str("event", "key_assigned").
		Int("key", k).
		Str("action_id", d.ActionID).
		Str("action_type", d.ActionType.String()).
		Msg("assigned action to key")

	return nil
}

// SetMessage replaces the message payload of a message binding and
// re-renders the key.
func (t *Table) SetMessage(k int, text string) error {
	return t.setPayload(k, deck.TypeMessage, func(d *deck.Descriptor) {
		d.MessageToPrint = text
	})
}

// SetCommand replaces the command line of a command binding and re-renders
// the key.
func (t *Table) SetCommand(k int, cmdline string) error {
	return t.setPayload(k, deck.TypeCommand, func(d *deck.Descriptor) {
		d.CommandToRun = cmdline
	})
}

func (t *Table) setPayload(k int, typ deck.Type, update func(*deck.Descriptor)) error {
	if err := t.check(k); err != nil {
		return err
	}

	t.assignMu.Lock()
	defer t.assignMu.Unlock()

	t.mu.Lock()
	d := t.slots[k].Descriptor
	if d.ActionType != typ {
		t.mu.Unlock()
		return fmt.Errorf("key %d is bound to a %s action", k+1, d.ActionType)
	}
	update(&d)
	t.slots[k].Descriptor = d
	t.mu.Unlock()

	t.render(k, d.Label())
	t.journal.Logf("Updated Key %d to %s", k+1, d.Payload())

	return nil
}

// RenderAll paints every key with its current label.
func (t *Table) RenderAll() {
	t.assignMu.Lock()
	defer t.assignMu.Unlock()

	for _, b := range t.Bindings() {
		t.render(b.Key, b.Descriptor.Label())
	}
}

func (t *Table) lookup(actionID string) (deck.Plugin, bool) {
	if t.resolver == nil {
		return nil, false
	}

	return t.resolver.Lookup(actionID)
}

func (t *Table) render(k int, label string) {
	if t.renderer == nil {
		return
	}
	if err := t.renderer.Render(k, label); err != nil {
		t.journal.Logf("Failed to update Key %d: %s", k+1, err)
		log.Error().Err(err).Int("key", k).Msg("failed to render key")
	}
}

// Binding returns a snapshot of key k.
func (t *Table) Binding(k int) (Binding, error) {
	if err := t.check(k); err != nil {
		return Binding{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.slots[k], nil
}

// Configuration returns the cached configuration handle of key k.
func (t *Table) Configuration(k int) (any, error) {
	b, err := t.Binding(k)
	if err != nil {
		return nil, err
	}

	return b.Control, nil
}

// Bindings returns a snapshot of every slot.
func (t *Table) Bindings() []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]Binding(nil), t.slots...)
}
