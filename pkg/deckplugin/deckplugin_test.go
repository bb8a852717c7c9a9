package deckplugin

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	actions = nil
	mu.Lock()
	pinned = map[uint32][]byte{}
	output = 0
	mu.Unlock()
}

func TestPackResult(t *testing.T) {
	ptr, length := UnpackResult(PackResult(0xDEADBEEF, 0xFEEDFACE))

	assert.Equal(t, uint32(0xDEADBEEF), ptr)
	assert.Equal(t, uint32(0xFEEDFACE), length)
}

func TestAllocReadFree(t *testing.T) {
	reset()

	ptr := Alloc(4)
	require.NotZero(t, ptr)
	copy(ReadBytes(ptr, 4), "ping")

	assert.Equal(t, []byte("pi"), ReadBytes(ptr, 2))
	assert.Nil(t, ReadBytes(ptr, 8))
	assert.Equal(t, 1, Pinned())

	Free(ptr)
	assert.Nil(t, ReadBytes(ptr, 4))
	assert.Equal(t, 0, Pinned())
}

func TestReturnReleasesPreviousOutput(t *testing.T) {
	reset()

	first := Return([]byte("one"))
	second := Return([]byte("two"))

	p1, _ := UnpackResult(first)
	p2, l2 := UnpackResult(second)
	assert.Nil(t, ReadBytes(p1, 3))
	assert.Equal(t, []byte("two"), ReadBytes(p2, l2))
	assert.Equal(t, 1, Pinned())
	assert.Zero(t, Return(nil))
}

func TestActionsJSON(t *testing.T) {
	reset()
	Register(
		Action{ID: "ping-1", Name: "Ping", Run: func() error { return nil }},
		Action{ID: "vol-1", Name: "Volume", Config: map[string]int{"step": 5}},
	)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(ActionsJSON(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "ping-1", got[0]["id"])
	assert.NotContains(t, got[0], "config")
	assert.Equal(t, map[string]any{"step": float64(5)}, got[1]["config"])
}

func TestRun(t *testing.T) {
	reset()
	Register(
		Action{ID: "ok", Name: "Ok", Run: func() error { return nil }},
		Action{ID: "fail", Name: "Fail", Run: func() error { return errors.New("nope") }},
		Action{ID: "panic", Name: "Panic", Run: func() error { panic("boom") }},
	)

	tests := []struct {
		id      string
		success bool
		errText string
	}{
		{"ok", true, ""},
		{"fail", false, "nope"},
		{"panic", false, "action panic panicked: boom"},
		{"missing", false, "unknown action missing"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			var res result
			require.NoError(t, json.Unmarshal(Run(tt.id), &res))
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.errText, res.Error)
		})
	}
}

func TestExecuteReadsInput(t *testing.T) {
	reset()
	var ran bool
	Register(Action{ID: "ping-1", Name: "Ping", Run: func() error {
		ran = true
		return nil
	}})

	in := Alloc(6)
	copy(ReadBytes(in, 6), "ping-1")

	ptr, length := UnpackResult(Execute(in, 6))

	assert.True(t, ran)
	assert.JSONEq(t, `{"success":true}`, string(ReadBytes(ptr, length)))
}

func TestLogStubRecords(t *testing.T) {
	LogInfo("hello")
	assert.Contains(t, Logs(), "info: hello")
}
