package native

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/guseggert/hostbridge/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newFSTable(t *testing.T) *Table {
	table := NewTable(nil)
	RegisterFS(table, FSConfig{Log: zaptest.NewLogger(t).Sugar(), AppDir: "/opt/app"})
	return table
}

func call(t *testing.T, table *Table, suffix string, args ...any) any {
	t.Helper()
	res, err := table.Call(context.Background(), Name(suffix), Args(args))
	require.NoError(t, err)
	return res
}

func decoded(t *testing.T, v any) (string, bool) {
	t.Helper()
	if v == nil {
		return "", false
	}
	e, ok := envelope.FromValue(v)
	require.True(t, ok, "expected an envelope, got %T", v)
	return envelope.Decode(e)
}

func TestFSReadWrite(t *testing.T) {
	table := newFSTable(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")

	assert.Nil(t, call(t, table, "read_file", envelope.Encode(path)))
	assert.Equal(t, false, call(t, table, "exists", envelope.Encode(path)))

	assert.Equal(t, true, call(t, table, "write_file", envelope.Encode(path), envelope.Encode("hello"), map[string]any{"append": false}))
	assert.Equal(t, true, call(t, table, "write_file", envelope.Encode(path), envelope.Encode(" world"), map[string]any{"append": true}))

	s, ok := decoded(t, call(t, table, "read_file", envelope.Encode(path)))
	require.True(t, ok)
	assert.Equal(t, "hello world", s)

	assert.Equal(t, true, call(t, table, "write_file", envelope.Encode(path), envelope.Encode(""), nil))
	s, ok = decoded(t, call(t, table, "read_file", envelope.Encode(path)))
	require.True(t, ok, "an empty file is present, not absent")
	assert.Equal(t, "", s)

	// a directory can't be read or written as a file
	assert.Nil(t, call(t, table, "read_file", envelope.Encode(dir)))
	assert.Equal(t, false, call(t, table, "write_file", envelope.Encode(dir), envelope.Encode("x"), nil))
	assert.Equal(t, false, call(t, table, "write_file", envelope.Encode(filepath.Join(dir, "missing", "f")), envelope.Encode("x"), nil))
}

func TestFSDirectories(t *testing.T) {
	table := newFSTable(t)
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")

	assert.Equal(t, true, call(t, table, "mk_dir", envelope.Encode(sub)))
	assert.Equal(t, false, call(t, table, "mk_dir", envelope.Encode(sub)))
	assert.Equal(t, true, call(t, table, "is_dir", envelope.Encode(sub)))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a"), []byte("a"), 0644))

	listing, ok := call(t, table, "ls", envelope.Encode(sub)).([]any)
	require.True(t, ok)
	require.Len(t, listing, 1)
	name, ok := decoded(t, listing[0])
	require.True(t, ok)
	assert.Equal(t, filepath.Join(sub, "a"), name)

	assert.Nil(t, call(t, table, "ls", envelope.Encode(filepath.Join(sub, "a"))))

	assert.Equal(t, false, call(t, table, "rm", envelope.Encode(sub), map[string]any{"recursive": false}))
	assert.Equal(t, true, call(t, table, "rm", envelope.Encode(sub), map[string]any{"recursive": true}))
	assert.Equal(t, false, call(t, table, "exists", envelope.Encode(sub)))
	assert.Equal(t, false, call(t, table, "rm", envelope.Encode(sub), nil))
}

func TestFSRenameCopy(t *testing.T) {
	table := newFSTable(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "f"), []byte("data"), 0644))

	assert.Equal(t, true, call(t, table, "copy", envelope.Encode(src), envelope.Encode(dst), nil))
	b, err := os.ReadFile(filepath.Join(dst, "nested", "f"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	assert.Equal(t, false, call(t, table, "copy", envelope.Encode(src), envelope.Encode(dst), map[string]any{"overwrite": false}))
	assert.Equal(t, true, call(t, table, "copy", envelope.Encode(src), envelope.Encode(dst), map[string]any{"overwrite": true}))

	moved := filepath.Join(dir, "moved")
	assert.Equal(t, true, call(t, table, "rename", envelope.Encode(src), envelope.Encode(moved), nil))
	assert.Equal(t, false, call(t, table, "exists", envelope.Encode(src)))
	assert.Equal(t, false, call(t, table, "rename", envelope.Encode(src), envelope.Encode(moved), nil))
}

func TestFSOverwriteOverlapping(t *testing.T) {
	table := newFSTable(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "keep.txt")
	tree := filepath.Join(dir, "tree")
	require.NoError(t, os.WriteFile(file, []byte("keep"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "sub", "f"), []byte("f"), 0644))
	overwrite := map[string]any{"overwrite": true}

	cases := []struct {
		name     string
		op       string
		src, dst string
	}{
		{name: "rename onto itself", op: "rename", src: file, dst: file},
		{name: "rename onto itself through another spelling", op: "rename", src: file, dst: filepath.Join(dir, ".", "keep.txt")},
		{name: "copy onto itself", op: "copy", src: file, dst: file},
		{name: "copy a tree into its own subtree", op: "copy", src: tree, dst: filepath.Join(tree, "sub")},
		{name: "rename a tree into its own subtree", op: "rename", src: tree, dst: filepath.Join(tree, "sub")},
		{name: "rename onto a parent of the source", op: "rename", src: filepath.Join(tree, "sub", "f"), dst: tree},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, false, call(t, table, c.op, envelope.Encode(c.src), envelope.Encode(c.dst), overwrite))

			b, err := os.ReadFile(file)
			require.NoError(t, err)
			assert.Equal(t, "keep", string(b))
			b, err = os.ReadFile(filepath.Join(tree, "sub", "f"))
			require.NoError(t, err)
			assert.Equal(t, "f", string(b))
		})
	}
}

func TestFSAppDir(t *testing.T) {
	table := newFSTable(t)
	s, ok := decoded(t, call(t, table, "get_application_dir_path"))
	require.True(t, ok)
	assert.Equal(t, "/opt/app", s)
}

func TestFSDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("payload"))
	}))
	t.Cleanup(server.Close)

	table := NewTable(nil)
	RegisterFS(table, FSConfig{Log: zaptest.NewLogger(t).Sugar(), HTTPClient: server.Client()})
	path := filepath.Join(t.TempDir(), "out")

	assert.Equal(t, true, call(t, table, "download_uri", envelope.Encode(server.URL+"/file"), envelope.Encode(path)))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	assert.Equal(t, false, call(t, table, "download_uri", envelope.Encode(server.URL+"/missing"), envelope.Encode(path+"2")))
	_, err = os.Stat(path + "2")
	assert.True(t, os.IsNotExist(err))
}
