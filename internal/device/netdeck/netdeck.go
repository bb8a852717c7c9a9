// Package netdeck exposes a key deck over TCP using anet framing.
//
// Frames (key indexes are two zero-based decimal digits):
//
//	K<idx><D|U>  key event          -> KA00
//	I<idx>       read key image     -> IA<image bytes>
//	B            read brightness    -> BA<3 digits>
//
// Unknown or malformed frames are answered with <cmd>Z15.
package netdeck

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	anetserver "github.com/andrei-cloud/anet/server"
	"github.com/andrei-cloud/keydeck/internal/device"
	"github.com/rs/zerolog/log"
)

// ErrInvalidFrame is the error code returned for malformed frames.
const ErrInvalidFrame = "15"

// logAdapter implements anet.Logger using zerolog.
type logAdapter struct{}

func (l logAdapter) Print(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func (l logAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func (l logAdapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// Deck is a device whose key events arrive from network clients.
type Deck struct {
	device.Notifier

	address     string
	keys        int
	srv         *anetserver.Server
	activeConns int32

	mu         sync.RWMutex
	brightness int
	images     [][]byte
	closed     bool
	stopOnce   sync.Once
	stopErr    error
}

// New configures a deck with n keys listening on address. Call Start to
// accept connections.
func New(address string, n int) (*Deck, error) {
	cfg := &anetserver.ServerConfig{
		MaxConns:        16,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     0 * time.Second, // disable idle connection closure.
		ShutdownTimeout: 5 * time.Second,
		Logger:          logAdapter{},
	}

	d := &Deck{
		address: address,
		keys:    n,
		images:  make([][]byte, n),
	}
	srv, err := anetserver.NewServer(address, anetserver.HandlerFunc(d.handle), cfg)
	if err != nil {
		return nil, fmt.Errorf("server setup failed: %w", err)
	}
	d.srv = srv

	return d, nil
}

// Start begins listening in the background. Errors raised while binding are
// returned; later ones are logged.
func (d *Deck) Start() error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start device server: %w", err)
		}
	case <-time.After(100 * time.Millisecond):
		go func() {
			if err := <-errCh; err != nil {
				log.Error().Err(err).Msg("device server stopped")
			}
		}()
	}
	log.Info().Str("address", d.address).Msg("device server started")

	return nil
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
	d.images[index] = append([]byte(nil), img...)

	return nil
}

// Close stops the server.
func (d *Deck) Close() error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		d.stopErr = d.srv.Stop()
	})

	return d.stopErr
}

func (d *Deck) handle(conn *anetserver.ServerConn, data []byte) ([]byte, error) {
	client := conn.Conn.RemoteAddr().String()
	atomic.AddInt32(&d.activeConns, 1)
	defer atomic.AddInt32(&d.activeConns, -1)

	if len(data) == 0 {
		log.Error().Str("client_ip", client).Msg("malformed request")
		return nil, errors.New("malformed request")
	}

	cmd := data[0]
	resp, err := d.dispatch(cmd, data[1:])
	if err != nil {
		log.Warn().
			Str("event", "invalid_frame").
			Str("client_ip", client).
			Str("command", string(cmd)).
			Err(err).
			Msg("rejecting frame")
		resp = []byte{cmd, 'Z'}
		resp = append(resp, ErrInvalidFrame...)
	}

	log.Debug().
		Str("event", "frame_handled").
		Str("client_ip", client).
		Str("command", string(cmd)).
		Int("response_len", len(resp)).
		Int("active_connections", int(atomic.LoadInt32(&d.activeConns))).
		Msg("handled frame")

	return resp, nil
}

func (d *Deck) dispatch(cmd byte, payload []byte) ([]byte, error) {
	switch cmd {
	case 'K':
		if len(payload) != 3 {
			return nil, errors.New("key frame must be K<idx><D|U>")
		}
		k, err := d.index(payload[:2])
		if err != nil {
			return nil, err
		}
		var down bool
		switch payload[2] {
		case 'D':
			down = true
		case 'U':
		default:
			return nil, fmt.Errorf("unknown key state %q", payload[2])
		}
		d.Notify(device.KeyEvent{Key: k, Down: down})

		return []byte("KA00"), nil
	case 'I':
		if len(payload) != 2 {
			return nil, errors.New("image frame must be I<idx>")
		}
		k, err := d.index(payload)
		if err != nil {
			return nil, err
		}
		d.mu.RLock()
		img := d.images[k]
		d.mu.RUnlock()

		return append([]byte("IA"), img...), nil
	case 'B':
		d.mu.RLock()
		b := d.brightness
		d.mu.RUnlock()

		return fmt.Appendf([]byte("BA"), "%03d", b), nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func (d *Deck) index(b []byte) (int, error) {
	k, err := strconv.Atoi(string(b))
	if err != nil || k < 0 || k >= d.keys {
		return 0, fmt.Errorf("%w: %q", device.ErrKeyIndex, b)
	}

	return k, nil
}
