// Package simdeck is a terminal key deck simulator.
package simdeck

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/andrei-cloud/keydeck/internal/device"
	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/pkg/deck"
	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the engine surface the simulator drives.
type Controller interface {
	Catalog() []deck.Descriptor
	Assign(k int, d deck.Descriptor) error
	Rescan(ctx context.Context) error
	Descriptor(k int) (deck.Descriptor, error)
	Configuration(k int) (any, error)
	SetMessage(k int, text string) error
	SetCommand(k int, cmdline string) error
}

// Deck is a simulated device. Images are kept only by size; the terminal
// shows the label instead.
type Deck struct {
	device.Notifier

	keys int

	mu         sync.RWMutex
	brightness int
	labels     []string
	imageSizes []int
	closed     bool
}

// New returns a simulated deck with n keys.
func New(n int) *Deck {
	return &Deck{
		keys:       n,
		labels:     make([]string, n),
		imageSizes: make([]int, n),
	}
}

// Keys implements device.Device.
func (d *Deck) Keys() int {
	return d.keys
}

// SetBrightness implements device.Device.
func (d *Deck) SetBrightness(percent int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return device.ErrClosed
	}
	d.brightness = percent

	return nil
}

// SetKeyImage implements device.Device.
func (d *Deck) SetKeyImage(index int, img []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return device.ErrClosed
	}
	if index < 0 || index >= d.keys {
		return fmt.Errorf("%w: %d", device.ErrKeyIndex, index)
	}
	d.imageSizes[index] = len(img)

	return nil
}

// SetKeyLabel implements device.LabelSink.
func (d *Deck) SetKeyLabel(index int, label string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if index >= 0 && index < d.keys {
		d.labels[index] = label
	}
}

// Press simulates a full press and release of key k.
func (d *Deck) Press(k int) {
	d.Notify(device.KeyEvent{Key: k, Down: true})
	d.Notify(device.KeyEvent{Key: k, Down: false})
}

// Close implements device.Device.
func (d *Deck) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	return nil
}

type keyState struct {
	label     string
	imageSize int
}

func (d *Deck) snapshot() (int, []keyState) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]keyState, d.keys)
	for i := range out {
		out[i] = keyState{label: d.labels[i], imageSize: d.imageSizes[i]}
	}

	return d.brightness, out
}

// Run shows the simulator until the user quits or ctx is done.
func (d *Deck) Run(ctx context.Context, ctrl Controller, j *journal.Journal) error {
	p := tea.NewProgram(newModel(ctx, d, ctrl, j), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("simulator failed: %w", err)
	}

	return nil
}
