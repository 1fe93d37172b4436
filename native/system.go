package native

import (
	"context"
	"os"
	"runtime"

	"github.com/guseggert/hostbridge/envelope"
)

// OSName is the platform name reported to pages.
func OSName() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "darwin":
		return "Apple"
	case "linux":
		return "Linux"
	default:
		return runtime.GOOS
	}
}

func RegisterSystem(t *Table) {
	t.Bind(Name("get_pid"), func(context.Context, Args) (any, error) {
		return os.Getpid(), nil
	})
	t.Bind(Name("get_OS"), func(context.Context, Args) (any, error) {
		return envelope.Encode(OSName()), nil
	})
}
