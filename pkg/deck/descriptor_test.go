package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		desc    Descriptor
		wantErr error
	}{
		{name: "unassigned", desc: Descriptor{}},
		{name: "message", desc: Message("Hi", "hello")},
		{name: "command", desc: Command("Ls", "ls -la")},
		{
			name: "plugin",
			desc: Descriptor{ActionID: "ping-1", ActionName: "Ping", ActionType: TypePlugin},
		},
		{
			name:    "plugin without id",
			desc:    Descriptor{ActionName: "Ping", ActionType: TypePlugin},
			wantErr: ErrMissingActionID,
		},
		{
			name:    "message with id",
			desc:    Descriptor{ActionID: "x", ActionName: "Hi", ActionType: TypeMessage},
			wantErr: ErrUnexpectedID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDescriptorPayload(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello", Message("Hi", "hello").Payload())
	assert.Equal(t, "ls", Command("Ls", "ls").Payload())
	assert.Empty(t, Descriptor{}.Payload())
	assert.True(t, Descriptor{}.IsZero())
	assert.False(t, Message("Hi", "").IsZero())
}

func TestTypeText(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{TypeNone, TypeMessage, TypeCommand, TypePlugin} {
		text, err := typ.MarshalText()
		require.NoError(t, err)

		var back Type
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, typ, back)
	}

	var typ Type
	assert.Error(t, typ.UnmarshalText([]byte("macro")))
	assert.Equal(t, "type(9)", Type(9).String())
}

func TestBuiltins(t *testing.T) {
	t.Parallel()

	got := Builtins()

	require.Len(t, got, 2)
	assert.Equal(t, TypeMessage, got[0].ActionType)
	assert.Equal(t, TypeCommand, got[1].ActionType)
	for _, d := range got {
		assert.NoError(t, d.Validate())
		assert.Empty(t, d.Payload())
	}
}
