package native

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/guseggert/hostbridge/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

const testConfig = `{
	// shared defaults
	"__default__": {"title": "Root", "opacity": 1},
	"main": {
		"title": "Main",
		"opacity": 0.8,
		"__default__": {"title": "Main default"},
	},
	"other.page": {"title": "Dotted"}
}`

func writeConfig(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))
	return path
}

func TestConfigStoreLoad(t *testing.T) {
	path := writeConfig(t)
	store := NewConfigStore(zaptest.NewLogger(t).Sugar(), path, "main")
	require.NoError(t, store.Load())

	v, ok := store.Get("title")
	require.True(t, ok)
	assert.Equal(t, "Main", v)

	dotted := NewConfigStore(nil, path, "other.page")
	require.NoError(t, dotted.Load())
	v, ok = dotted.Get("title")
	require.True(t, ok)
	assert.Equal(t, "Dotted", v)

	missing := NewConfigStore(nil, filepath.Join(t.TempDir(), "none.json"), "main")
	require.NoError(t, missing.Load())
	assert.Empty(t, missing.Page())
}

func TestConfigStoreLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2]`), 0644))
	require.Error(t, NewConfigStore(nil, path, "main").Load())
}

func TestConfigStoreResetToDefaults(t *testing.T) {
	path := writeConfig(t)

	store := NewConfigStore(nil, path, "main")
	require.NoError(t, store.Load())
	require.NoError(t, store.ResetToDefaults())
	v, _ := store.Get("title")
	assert.Equal(t, "Main default", v)

	other := NewConfigStore(nil, path, "fresh")
	require.NoError(t, other.Load())
	require.NoError(t, other.ResetToDefaults())
	v, _ = other.Get("title")
	assert.Equal(t, "Root", v)

	empty := NewConfigStore(nil, filepath.Join(t.TempDir(), "none.json"), "main")
	require.ErrorIs(t, empty.ResetToDefaults(), ErrNoDefaults)
}

func TestConfigBindings(t *testing.T) {
	path := writeConfig(t)
	store := NewConfigStore(zaptest.NewLogger(t).Sugar(), path, "main")
	require.NoError(t, store.Load())
	w := NewHeadless("Main", "main")
	table := NewTable(nil)
	RegisterConfig(table, store, w)

	cfg, ok := call(t, table, "get_config").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Main", cfg["title"])

	// load_config applies window properties and skips everything else
	call(t, table, "load_config")
	opacity, err := w.Property(PropOpacity)
	require.NoError(t, err)
	assert.Equal(t, 0.8, opacity)

	call(t, table, "set_config_property", envelope.Encode("theme"), "dark")
	v, ok := store.Get("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, w.SetProperty(PropSize, map[string]any{"width": 640, "height": 480}))
	call(t, table, "save_config")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(640), gjson.GetBytes(b, "main.size.width").Int())
	assert.Equal(t, "dark", gjson.GetBytes(b, "main.theme").String())
	assert.Equal(t, "Root", gjson.GetBytes(b, "__default__.title").String())

	reloaded := NewConfigStore(nil, path, "main")
	require.NoError(t, reloaded.Load())
	v, _ = reloaded.Get("theme")
	assert.Equal(t, "dark", v)

	call(t, table, "reset_to_defaults")
	v, _ = store.Get("title")
	assert.Equal(t, "Main default", v)
}
