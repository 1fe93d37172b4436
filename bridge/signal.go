package bridge

import "context"

// Signal binds OS signals to page callbacks.
type Signal struct {
	c         *caller
	callbacks *Callbacks
}

// Add binds sig to the callback registered under name. A later Add for the same signal replaces it.
func (s *Signal) Add(ctx context.Context, sig int, name string) error {
	return s.c.command(ctx, "signal_add", sig, enc(name))
}

// Handle registers fn under name and binds sig to it.
func (s *Signal) Handle(ctx context.Context, sig int, name string, fn func(args []any)) error {
	s.callbacks.Register(name, fn)
	if err := s.Add(ctx, sig, name); err != nil {
		s.callbacks.Unregister(name)
		return err
	}
	return nil
}

func (s *Signal) Remove(ctx context.Context, sig int) error {
	return s.c.command(ctx, "signal_remove", sig)
}

func (s *Signal) Has(ctx context.Context, sig int) (bool, error) {
	return s.c.boolQuery(ctx, "signal_has", sig)
}

func (s *Signal) Clear(ctx context.Context) error {
	return s.c.command(ctx, "signal_clear")
}

// Count returns how many signals are bound to page callbacks.
func (s *Signal) Count(ctx context.Context) (int, error) {
	res, err := s.c.query(ctx, "signal_count")
	if err != nil {
		return 0, err
	}
	return res.Int()
}

// Trigger delivers sig as if the OS had sent it.
func (s *Signal) Trigger(ctx context.Context, sig int) error {
	return s.c.command(ctx, "signal_trigger", sig)
}
