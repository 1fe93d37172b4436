package bridge_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/guseggert/hostbridge/bridge"
	"github.com/guseggert/hostbridge/native"
	"github.com/guseggert/hostbridge/signals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// usr1 is only used as a registry key; nothing is sent to the process.
const usr1 = 10

type nativeHost struct {
	window    *native.Headless
	callbacks *bridge.Callbacks
	client    *bridge.Client
	dir       string
}

// newNativeHost binds the native calls in process, with no transport in between.
func newNativeHost(t *testing.T) *nativeHost {
	log := zaptest.NewLogger(t).Sugar()
	dir := t.TempDir()
	table := native.NewTable(log)
	window := native.NewHeadless("app", "index.html")
	callbacks := bridge.NewCallbacks(log)

	reg := signals.New(func(callback string, sig int) {
		callbacks.Invoke(callback, []any{sig})
	}, signals.WithoutOSDelivery())
	t.Cleanup(reg.Close)

	store := native.NewConfigStore(log, filepath.Join(dir, "config.json"), "index.html")
	native.RegisterFS(table, native.FSConfig{Log: log, AppDir: dir})
	native.RegisterWindow(table, window, native.WindowConfig{Log: log, DefaultTitle: func() string { return "app" }})
	native.RegisterSystem(table)
	native.RegisterConfig(table, store, window)
	native.RegisterSignal(table, reg)
	native.RegisterLog(table, log)

	exec := bridge.ExecutorFunc(func(ctx context.Context, name string, args ...any) (any, error) {
		return table.Call(ctx, name, native.Args(args))
	})
	return &nativeHost{
		window:    window,
		callbacks: callbacks,
		client:    bridge.New(exec, bridge.WithLogger(log), bridge.WithCallbacks(callbacks)),
		dir:       dir,
	}
}

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newNativeHost(t)
	fs := h.client.FS
	path := filepath.Join(h.dir, "notes.txt")

	_, ok, err := fs.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = fs.WriteFile(ctx, path, []byte("one"), bridge.WriteOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = fs.WriteFile(ctx, path, []byte(" two"), bridge.WriteOptions{Append: true})
	require.NoError(t, err)
	require.True(t, ok)

	contents, ok, err := fs.ReadFile(ctx, path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one two", contents)

	ok, err = fs.Copy(ctx, path, filepath.Join(h.dir, "copy.txt"), bridge.CopyOptions{})
	require.NoError(t, err)
	assert.True(t, ok)

	paths, ok, err := fs.Ls(ctx, h.dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{path, filepath.Join(h.dir, "copy.txt")}, paths)

	appDir, err := fs.ApplicationDirPath(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.dir, appDir)
}

func TestWindowAndProperties(t *testing.T) {
	ctx := context.Background()
	h := newNativeHost(t)
	c := h.client

	require.NoError(t, c.Window.ChangeTitle(ctx, "renamed"))
	title, ok, err := c.Window.CurrentTitle(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "renamed", title)
	require.NoError(t, c.Window.ResetTitle(ctx))
	assert.Equal(t, "app", h.window.Title())

	require.NoError(t, c.Properties.SetSize(ctx, bridge.Size{Width: 1024, Height: 768}))
	size, err := c.Properties.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, bridge.Size{Width: 1024, Height: 768}, size)

	require.NoError(t, c.Properties.SetMaximize(ctx, true))
	require.NoError(t, c.Properties.SetFullscreen(ctx, true))
	maximized, err := c.Properties.Maximize(ctx)
	require.NoError(t, err)
	assert.False(t, maximized)

	err = c.Properties.SetOpacity(ctx, 2)
	require.ErrorIs(t, err, native.ErrBadArgument)

	require.NoError(t, c.Window.ZoomIn(ctx))
	level, err := c.Window.ZoomLevel(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, level, 1e-9)

	require.NoError(t, c.Window.NavigatePage(ctx, "about.html"))
	back, err := c.Navigate.CanGoBack(ctx)
	require.NoError(t, err)
	assert.True(t, back)
	require.NoError(t, c.Navigate.Back(ctx))
	assert.Equal(t, "index.html", h.window.Page())
}

func TestConfigThroughBridge(t *testing.T) {
	ctx := context.Background()
	h := newNativeHost(t)
	c := h.client

	require.NoError(t, c.Config.SetProperty(ctx, "theme", "dark"))
	cfg, err := c.Config.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg["theme"])

	require.NoError(t, c.Properties.SetOpacity(ctx, 0.5))
	require.NoError(t, c.Config.Save(ctx))
	_, err = os.Stat(filepath.Join(h.dir, "config.json"))
	require.NoError(t, err)

	require.NoError(t, c.Properties.SetOpacity(ctx, 1))
	require.NoError(t, c.Config.Load(ctx))
	opacity, err := c.Properties.Opacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, opacity)
}

func TestSignalsReachCallbacks(t *testing.T) {
	ctx := context.Background()
	h := newNativeHost(t)
	c := h.client

	got := make(chan []any, 1)
	require.NoError(t, c.Signal.Handle(ctx, usr1, "onUsr1", func(args []any) { got <- args }))

	n, err := c.Signal.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Signal.Trigger(ctx, usr1))
	assert.Equal(t, []any{usr1}, <-got)

	require.NoError(t, c.Signal.Remove(ctx, usr1))
	has, err := c.Signal.Has(ctx, usr1)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSystem(t *testing.T) {
	ctx := context.Background()
	c := newNativeHost(t).client

	pid, err := c.System.PID(ctx)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	name, err := c.System.OS(ctx)
	require.NoError(t, err)
	assert.Equal(t, native.OSName(), name)

	require.NoError(t, c.Log.Info(ctx, "hello from the page"))
}
