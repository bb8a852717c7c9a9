package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2026, 10, 19, 14, 3, 7, 0, time.UTC)
}

func TestJournalLineFormat(t *testing.T) {
	var buf bytes.Buffer
	j := New(&buf, WithClock(fixedClock))

	j.Logf("Loaded plugin: %s", "Ping")
	j.Log("two\nlines")

	assert.Equal(t,
		"2026-10-19 14:03:07: Loaded plugin: Ping\n2026-10-19 14:03:07: two lines\n",
		buf.String(),
	)
	assert.Equal(t, []string{
		"2026-10-19 14:03:07: Loaded plugin: Ping",
		"2026-10-19 14:03:07: two lines",
	}, j.Lines())
}

func TestJournalTailAndCount(t *testing.T) {
	j := New(nil)
	for _, m := range []string{"a", "b", "c"} {
		j.Log(m)
	}

	assert.Len(t, j.Tail(2), 2)
	assert.Contains(t, j.Tail(2)[1], ": c")
	assert.Len(t, j.Tail(10), 3)
	assert.Nil(t, j.Tail(0))
	assert.Equal(t, 1, j.Count(": b"))
	assert.Equal(t, 3, j.Len())
}

func TestJournalOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o644))

	j, closer, err := Open(path, WithClock(fixedClock))
	require.NoError(t, err)
	j.Log("first")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing\n2026-10-19 14:03:07: first\n", string(data))
}

func TestJournalConcurrentWriters(t *testing.T) {
	j := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				j.Log("tick")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, j.Count("tick"))
}
