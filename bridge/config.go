package bridge

import "context"

// Config reads and writes the page's saved configuration.
type Config struct {
	c *caller
}

// Get returns the page's configuration object with every envelope decoded.
func (c *Config) Get(ctx context.Context) (map[string]any, error) {
	res, err := c.c.query(ctx, "get_config")
	if err != nil {
		return nil, err
	}
	if res.IsAbsent() {
		return map[string]any{}, nil
	}
	m, ok := res.Value().(map[string]any)
	if !ok {
		return nil, res.unexpected("object")
	}
	return m, nil
}

// Save stores the current window state in the configuration and writes it out.
func (c *Config) Save(ctx context.Context) error {
	return c.c.command(ctx, "save_config")
}

// Load applies the saved configuration to the window.
func (c *Config) Load(ctx context.Context) error {
	return c.c.command(ctx, "load_config")
}

func (c *Config) SetProperty(ctx context.Context, key string, value any) error {
	return c.c.command(ctx, "set_config_property", enc(key), value)
}

func (c *Config) ResetToDefaults(ctx context.Context) error {
	return c.c.command(ctx, "reset_to_defaults")
}
