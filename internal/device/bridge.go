package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultQueue is the per-key press queue length.
const DefaultQueue = 16

// Handler receives key-down presses, one key at a time per key.
type Handler func(ctx context.Context, key int)

// BridgeOptions tune a Bridge.
type BridgeOptions struct {
	// Queue is the number of pending presses buffered per key.
	Queue int
}

// Bridge connects a device's key events to a press handler. Each key has its
// own queue and worker so the device callback never blocks on plugin code.
type Bridge struct {
	dev     Device
	handler Handler
	queue   int

	mu          sync.Mutex
	attached    bool
	closed      bool
	unsubscribe func()
	queues      []chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewBridge returns a bridge for dev. Nothing is attached until Open.
func NewBridge(dev Device, handler Handler, opts BridgeOptions) *Bridge {
	if opts.Queue <= 0 {
		opts.Queue = DefaultQueue
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		dev:     dev,
		handler: handler,
		queue:   opts.Queue,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Open sets the device brightness, clamped to 0..100, and subscribes to key
// events.
func (b *Bridge) Open(brightness int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return ErrClosed
	case b.attached:
		return ErrAlreadyAttached
	}

	brightness = min(max(brightness, 0), 100)
	if err := b.dev.SetBrightness(brightness); err != nil {
		return fmt.Errorf("failed to set brightness: %w", err)
	}

	n := b.dev.Keys()
	b.queues = make([]chan struct{}, n)
	for k := range b.queues {
		b.queues[k] = make(chan struct{}, b.queue)
		b.wg.Add(1)
		go b.work(k, b.queues[k])
	}

	b.unsubscribe = b.dev.Subscribe(b.onEvent)
	b.attached = true

	log.Info().
		Str("event", "device_attached").
		Int("keys", n).
		Int("brightness", brightness).
		Msg("device attached")

	return nil
}

func (b *Bridge) onEvent(ev KeyEvent) {
	if !ev.Down {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || ev.Key < 0 || ev.Key >= len(b.queues) {
		log.Debug().Int("key", ev.Key).Msg("ignoring key event")
		return
	}

	select {
	case b.queues[ev.Key] <- struct{}{}:
	default:
		log.Warn().
			Str("event", "press_dropped").
			Int("key", ev.Key).
			Msg("key queue full, dropping press")
	}
}

func (b *Bridge) work(k int, q <-chan struct{}) {
	defer b.wg.Done()

	for range q {
		b.handler(b.ctx, k)
	}
}

// Close unsubscribes, drains the pending presses, stops the workers and
// closes the device. It is safe to call more than once.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		unsubscribe := b.unsubscribe
		b.mu.Unlock()

		// unsubscribe outside mu; an in-flight callback may be waiting for it.
		if unsubscribe != nil {
			unsubscribe()
		}

		b.mu.Lock()
		b.closed = true
		for _, q := range b.queues {
			close(q)
		}
		b.mu.Unlock()

		b.wg.Wait()
		b.cancel()

		if err := b.dev.Close(); err != nil {
			b.closeErr = fmt.Errorf("failed to close device: %w", err)
			return
		}
		log.Info().Str("event", "device_detached").Msg("device detached")
	})

	return b.closeErr
}
