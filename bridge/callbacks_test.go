package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbacks(t *testing.T) {
	cb := NewCallbacks(nil)
	var got []any
	cb.Register("onEvent", func(args []any) { got = args })

	assert.True(t, cb.Invoke("onEvent", []any{1.0}))
	assert.Equal(t, []any{1.0}, got)

	cb.Register("onEvent", func(args []any) { got = []any{"replaced"} })
	cb.Handle("onEvent", nil)
	assert.Equal(t, []any{"replaced"}, got)

	cb.Unregister("onEvent")
	assert.False(t, cb.Invoke("onEvent", nil))
}
