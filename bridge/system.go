package bridge

import "context"

type System struct {
	c *caller
}

// PID returns the host's process ID.
func (s *System) PID(ctx context.Context) (int, error) {
	res, err := s.c.query(ctx, "get_pid")
	if err != nil {
		return 0, err
	}
	return res.Int()
}

// OS returns "Windows", "Apple" or "Linux", or the platform name elsewhere.
func (s *System) OS(ctx context.Context) (string, error) {
	res, err := s.c.query(ctx, "get_OS")
	if err != nil {
		return "", err
	}
	name, ok := res.String()
	if !ok {
		return "", res.unexpected("OS name")
	}
	return name, nil
}
