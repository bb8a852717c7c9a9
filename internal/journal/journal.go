// Package journal provides the append-only diagnostics trail of discovery,
// assignment and execution events.
package journal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TimeLayout is the timestamp layout of every journal line.
const TimeLayout = "2006-01-02 15:04:05"

// Journal appends "<timestamp>: <message>" lines to a writer and keeps them
// in memory for viewers.
type Journal struct {
	mu    sync.Mutex
	out   io.Writer
	lines []string
	now   func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// New returns a journal writing to out. A nil writer keeps lines in memory only.
func New(out io.Writer, opts ...Option) *Journal {
	j := &Journal{out: out, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Open opens path for appending and returns a journal backed by it along with
// the file to close on shutdown.
func Open(path string, opts ...Option) (*Journal, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return New(f, opts...), f, nil
}

// Logf formats a message and appends it as one line.
func (j *Journal) Logf(format string, args ...any) {
	j.Log(fmt.Sprintf(format, args...))
}

// Log appends message as one line.
func (j *Journal) Log(message string) {
	// a line per call, embedded newlines would break the audit format.
	message = strings.ReplaceAll(message, "\n", " ")

	j.mu.Lock()
	line := fmt.Sprintf("%s: %s", j.now().Format(TimeLayout), message)
	j.lines = append(j.lines, line)
	if j.out != nil {
		if _, err := io.WriteString(j.out, line+"\n"); err != nil {
			log.Error().Err(err).Msg("failed to write journal line")
		}
	}
	j.mu.Unlock()

	log.Info().Str("event", "journal").Msg(message)
}

// Lines returns a copy of every line written so far.
func (j *Journal) Lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]string(nil), j.lines...)
}

// Tail returns up to n most recent lines.
func (j *Journal) Tail(n int) []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n <= 0 {
		return nil
	}
	if n > len(j.lines) {
		n = len(j.lines)
	}

	return append([]string(nil), j.lines[len(j.lines)-n:]...)
}

// Count returns the number of lines containing substr.
func (j *Journal) Count(substr string) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := 0
	for _, l := range j.lines {
		if strings.Contains(l, substr) {
			n++
		}
	}

	return n
}

// Len returns the number of lines written.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return len(j.lines)
}
