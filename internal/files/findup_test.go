package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "marker"), nil, 0644))
	// a directory with the same name is skipped
	require.NoError(t, os.Mkdir(filepath.Join(root, "a", "b", "marker"), 0755))

	found, err := FindUp("marker", deep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "marker"), found)

	_, err = FindUp("no-such-file-anywhere", deep)
	require.ErrorIs(t, err, ErrNotFound)
}
