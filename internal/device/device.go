// Package device defines the key deck transport contract and the bridge
// feeding its key events to the dispatcher.
package device

import (
	"errors"
	"sync"
)

var (
	// ErrAlreadyAttached is returned when a bridge is opened twice.
	ErrAlreadyAttached = errors.New("device already attached")

	// ErrClosed is returned by operations on a closed device or bridge.
	ErrClosed = errors.New("device closed")

	// ErrKeyIndex is returned by transports for a key index they do not have.
	ErrKeyIndex = errors.New("invalid key index")
)

// KeyEvent is a key state transition reported by a device.
type KeyEvent struct {
	Key  int
	Down bool
}

// Device is a physical or simulated key deck.
type Device interface {
	Keys() int
	SetBrightness(percent int) error
	SetKeyImage(index int, img []byte) error
	// Subscribe registers fn for key events and returns a function removing it.
	// fn is called on the transport's own goroutine.
	Subscribe(fn func(KeyEvent)) (unsubscribe func())
	Close() error
}

// LabelSink is implemented by devices that can show the text label as well
// as the key image.
type LabelSink interface {
	SetKeyLabel(index int, label string)
}

// Notifier fans key events out to subscribers. The zero value is ready to use.
type Notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(KeyEvent)
}

// Subscribe implements Device.Subscribe.
func (n *Notifier) Subscribe(fn func(KeyEvent)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs == nil {
		n.subs = make(map[int]func(KeyEvent))
	}
	id := n.next
	n.next++
	n.subs[id] = fn

	var once sync.Once

	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Notify delivers ev to every subscriber.
func (n *Notifier) Notify(ev KeyEvent) {
	n.mu.RLock()
	fns := make([]func(KeyEvent), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribers returns the number of active subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.subs)
}
