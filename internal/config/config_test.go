package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	Reset()

	require.NoError(t, Initialize(""))

	cfg := Get()
	assert.Equal(t, "plugins", cfg.Plugin.Path)
	assert.Equal(t, 5*time.Second, cfg.Plugin.Timeout)
	assert.Equal(t, "sim", cfg.Device.Kind)
	assert.Equal(t, 6, cfg.Device.Keys)
	assert.Equal(t, 100, cfg.Device.Brightness)
	assert.Equal(t, 72, cfg.Device.KeySize)
	assert.Equal(t, "png", cfg.Device.ImageFormat)
	assert.Equal(t, 16, cfg.Device.Queue)
	assert.False(t, cfg.Builtins.Enabled)
	assert.Equal(t, "human", cfg.Log.Format)

	assert.FileExists(t, filepath.Join(home, dirName, "config.yaml"))
}

func TestInitializeExplicitFileAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KEYDECK_DEVICE_KEYS", "4")
	Reset()

	path := filepath.Join(t.TempDir(), "deck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plugin:
  path: /opt/plugins
  timeout: 250ms
device:
  kind: net
  image_format: jpeg
builtins:
  enabled: true
`), 0o644))

	require.NoError(t, Initialize(path))

	cfg := Get()
	assert.Equal(t, "/opt/plugins", cfg.Plugin.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Plugin.Timeout)
	assert.Equal(t, "net", cfg.Device.Kind)
	assert.Equal(t, "jpeg", cfg.Device.ImageFormat)
	assert.Equal(t, 4, cfg.Device.Keys)
	assert.True(t, cfg.Builtins.Enabled)
}

func TestInitializeRejectsInvalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		yaml string
	}{
		{"kind", "device:\n  kind: usb\n"},
		{"keys", "device:\n  keys: 0\n"},
		{"timeout", "plugin:\n  timeout: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Reset()
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			assert.Error(t, Initialize(path))
		})
	}
}
