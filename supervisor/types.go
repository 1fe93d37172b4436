package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// Process types with host-defined behavior. Any other type string is an application-chosen namespace.
const (
	// DaemonType processes inherit the host's stdio and are left running when the supervisor shuts down.
	DaemonType = "daemon"
	// PipeType is the namespace addressed by PipeRead.
	PipeType = "pipe"
	// DuplicateType processes are clones of the host started by Duplicate.
	DuplicateType = "duplicate"
	// URIType processes are platform openers started by OpenURI.
	URIType = "uri"
	// WindowType processes are host instances started by OpenWindow.
	WindowType = "window"
)

var (
	ErrAlreadyTracked = errors.New("identity is already tracked")
	ErrNotTracked     = errors.New("identity is not tracked")
	ErrEmptyCommand   = errors.New("empty command")
	ErrClosed         = errors.New("supervisor is shut down")
)

// Identity is the application-level alias of a tracked process.
type Identity struct {
	Type string
	Key  string
}

func (i Identity) String() string {
	return fmt.Sprintf("%s/%s", i.Type, i.Key)
}

type State int

const (
	Running State = iota
	Exited
	Killed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Killed:
		return "killed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Info is a snapshot of a tracked process.
type Info struct {
	Identity  Identity
	PID       int
	Args      []string
	State     State
	ExitCode  int
	StartedAt time.Time
	ExitedAt  time.Time
}
