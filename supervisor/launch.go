package supervisor

import (
	"context"
	"runtime"

	"github.com/google/uuid"
)

func defaultURIOpener(uri string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"cmd", "/c", "start", "", uri}
	case "darwin":
		return []string{"open", uri}
	default:
		return []string{"xdg-open", uri}
	}
}

// Duplicate starts another instance of the host with the host's own command line and returns its PID.
// The clone is tracked as a DuplicateType process and reaped automatically when it exits.
func (s *Supervisor) Duplicate(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id := Identity{Type: DuplicateType, Key: uuid.NewString()}
	unlock := s.lockID(id)
	defer unlock()
	e, err := s.startLocked(id, s.selfCommand)
	if err != nil {
		return 0, err
	}
	s.reapWhenDone(e)
	return e.pid, nil
}

// OpenURI hands uri to the platform opener. The opener process is reaped automatically.
func (s *Supervisor) OpenURI(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := Identity{Type: URIType, Key: uuid.NewString()}
	unlock := s.lockID(id)
	defer unlock()
	e, err := s.startLocked(id, s.uriOpener(uri))
	if err != nil {
		return err
	}
	s.reapWhenDone(e)
	return nil
}

// OpenWindow starts a host instance showing page.
// With single set, at most one instance per page runs: if one is already running this is a no-op.
func (s *Supervisor) OpenWindow(ctx context.Context, page string, single bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	argv := append(append([]string(nil), s.selfCommand...), "--page", page)

	if !single {
		id := Identity{Type: WindowType, Key: page + "#" + uuid.NewString()}
		unlock := s.lockID(id)
		defer unlock()
		e, err := s.startLocked(id, argv)
		if err != nil {
			return err
		}
		s.reapWhenDone(e)
		return nil
	}

	id := Identity{Type: WindowType, Key: page}
	unlock := s.lockID(id)
	defer unlock()
	if e := s.lookup(id); e != nil {
		if !e.terminated() {
			// raising an existing window is up to the window manager
			s.log.Infow("single window already open", "Page", page, "PID", e.pid)
			return nil
		}
		s.reap(e)
	}
	_, err := s.startLocked(id, argv)
	return err
}
