package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/guseggert/hostbridge/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordedCall struct {
	name string
	args []any
}

type fakeExecutor struct {
	mut     sync.Mutex
	calls   []recordedCall
	results map[string]any
	errs    map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{results: map[string]any{}, errs: map[string]error{}}
}

func (f *fakeExecutor) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.calls = append(f.calls, recordedCall{name: name, args: args})
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return f.results[name], nil
}

func (f *fakeExecutor) last(t *testing.T) recordedCall {
	f.mut.Lock()
	defer f.mut.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func text(t *testing.T, v any) string {
	e, ok := envelope.FromValue(v)
	require.True(t, ok, "expected an envelope, got %T", v)
	s, ok := envelope.Decode(e)
	require.True(t, ok)
	return s
}

func newTestClient(t *testing.T) (*Client, *fakeExecutor) {
	exec := newFakeExecutor()
	return New(exec, WithLogger(zaptest.NewLogger(t).Sugar())), exec
}

func TestNoArgumentsSendsNull(t *testing.T) {
	client, exec := newTestClient(t)
	require.NoError(t, client.Window.ReloadPage(context.Background()))

	call := exec.last(t)
	assert.Equal(t, "BIND_reload_page", call.name)
	assert.Equal(t, []any{nil}, call.args)
}

func TestRejectionIsWrapped(t *testing.T) {
	client, exec := newTestClient(t)
	boom := errors.New("boom")
	exec.errs["BIND_process_kill"] = boom

	_, err := client.Process.Kill(context.Background(), "svc", "a")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "BIND_process_kill")

	exec.mut.Lock()
	defer exec.mut.Unlock()
	assert.Len(t, exec.calls, 1, "rejected calls are not retried")
}

func TestProcessArguments(t *testing.T) {
	ctx := context.Background()
	client, exec := newTestClient(t)
	exec.results["BIND_process_start"] = float64(4242)

	pid, err := client.Process.Start(ctx, "svc", "a", []string{"sleep", "1"})
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	call := exec.last(t)
	require.Len(t, call.args, 3)
	assert.Equal(t, "svc", text(t, call.args[0]))
	assert.Equal(t, "a", text(t, call.args[1]))
	argv, ok := call.args[2].([]any)
	require.True(t, ok)
	require.Len(t, argv, 2)
	assert.Equal(t, "sleep", text(t, argv[0]))

	_, _, err = client.Process.PipeRead(ctx, "out", PipeReadOptions{})
	require.NoError(t, err)
	assert.Len(t, exec.last(t).args, 1, "zero limit leaves the default to the host")

	_, _, err = client.Process.PipeReadPID(ctx, 7, PipeReadOptions{ByteLimit: 16})
	require.NoError(t, err)
	assert.Equal(t, []any{7, 16}, exec.last(t).args)

	require.NoError(t, client.Process.OpenWindow(ctx, "index.html", OpenWindowOptions{Single: true}))
	call = exec.last(t)
	assert.Equal(t, "index.html", text(t, call.args[0]))
	assert.Equal(t, true, call.args[1])
}

func TestPipeReadResults(t *testing.T) {
	ctx := context.Background()
	client, exec := newTestClient(t)

	cases := []struct {
		name     string
		result   any
		wantData []byte
		wantOK   bool
	}{
		{name: "closed pipe", result: nil},
		{name: "nothing new", result: envelope.EncodeBytes(nil), wantData: []byte{}, wantOK: true},
		{name: "data", result: map[string]any{"__encoding_type__": "base64", "__val__": []any{float64('h'), float64('i')}}, wantData: []byte("hi"), wantOK: true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			exec.results["BIND_pipe_read"] = c.result
			data, ok, err := client.Process.PipeRead(ctx, "out", PipeReadOptions{})
			require.NoError(t, err)
			assert.Equal(t, c.wantOK, ok)
			assert.Equal(t, c.wantData, data)
		})
	}
}

func TestLogMessages(t *testing.T) {
	ctx := context.Background()
	client, exec := newTestClient(t)

	require.NoError(t, client.Log.Warn(ctx, "plain"))
	assert.Equal(t, "BIND_log_warn", exec.last(t).name)
	assert.Equal(t, "plain", text(t, exec.last(t).args[0]))

	require.NoError(t, client.Log.Critical(ctx, map[string]int{"a": 1}))
	assert.Equal(t, `{"a":1}`, text(t, exec.last(t).args[0]))
}

func TestFSOptions(t *testing.T) {
	ctx := context.Background()
	client, exec := newTestClient(t)
	exec.results["BIND_write_file"] = true

	ok, err := client.FS.WriteFile(ctx, "/tmp/x", []byte("data"), WriteOptions{Append: true})
	require.NoError(t, err)
	assert.True(t, ok)
	call := exec.last(t)
	assert.Equal(t, WriteOptions{Append: true}, call.args[2])

	_, ok, err = client.FS.Ls(ctx, "/nope")
	require.NoError(t, err)
	assert.False(t, ok)

	exec.results["BIND_exists"] = "yes"
	_, err = client.FS.Exists(ctx, "/tmp")
	require.ErrorIs(t, err, ErrUnexpectedResult)
}

func TestSignalHandleUnregistersOnRejection(t *testing.T) {
	client, exec := newTestClient(t)
	exec.errs["BIND_signal_add"] = errors.New("nope")

	err := client.Signal.Handle(context.Background(), 10, "onUsr1", func([]any) {})
	require.Error(t, err)
	assert.False(t, client.Callbacks.Invoke("onUsr1", nil))
}
