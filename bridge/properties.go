package bridge

import "context"

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Properties reads and writes window properties.
type Properties struct {
	c *caller
}

func (p *Properties) get(ctx context.Context, name string, into any) error {
	res, err := p.c.query(ctx, "get_"+name)
	if err != nil {
		return err
	}
	return res.Decode(into)
}

func (p *Properties) getBool(ctx context.Context, name string) (bool, error) {
	var b bool
	err := p.get(ctx, name, &b)
	return b, err
}

func (p *Properties) set(ctx context.Context, name string, v any) error {
	return p.c.command(ctx, "set_"+name, v)
}

func (p *Properties) Size(ctx context.Context) (Size, error) {
	var s Size
	err := p.get(ctx, "size", &s)
	return s, err
}

func (p *Properties) SetSize(ctx context.Context, s Size) error { return p.set(ctx, "size", s) }

func (p *Properties) Position(ctx context.Context) (Position, error) {
	var pos Position
	err := p.get(ctx, "position", &pos)
	return pos, err
}

func (p *Properties) SetPosition(ctx context.Context, pos Position) error {
	return p.set(ctx, "position", pos)
}

func (p *Properties) Decorated(ctx context.Context) (bool, error) { return p.getBool(ctx, "decorated") }
func (p *Properties) SetDecorated(ctx context.Context, v bool) error {
	return p.set(ctx, "decorated", v)
}

func (p *Properties) Resizable(ctx context.Context) (bool, error) { return p.getBool(ctx, "resizable") }
func (p *Properties) SetResizable(ctx context.Context, v bool) error {
	return p.set(ctx, "resizable", v)
}

func (p *Properties) KeepAbove(ctx context.Context) (bool, error) { return p.getBool(ctx, "keepabove") }
func (p *Properties) SetKeepAbove(ctx context.Context, v bool) error {
	return p.set(ctx, "keepabove", v)
}

func (p *Properties) Minimize(ctx context.Context) (bool, error) { return p.getBool(ctx, "minimize") }
func (p *Properties) SetMinimize(ctx context.Context, v bool) error {
	return p.set(ctx, "minimize", v)
}

func (p *Properties) Maximize(ctx context.Context) (bool, error) { return p.getBool(ctx, "maximize") }
func (p *Properties) SetMaximize(ctx context.Context, v bool) error {
	return p.set(ctx, "maximize", v)
}

func (p *Properties) Fullscreen(ctx context.Context) (bool, error) {
	return p.getBool(ctx, "fullscreen")
}
func (p *Properties) SetFullscreen(ctx context.Context, v bool) error {
	return p.set(ctx, "fullscreen", v)
}

func (p *Properties) TaskbarShow(ctx context.Context) (bool, error) {
	return p.getBool(ctx, "taskbar_show")
}
func (p *Properties) SetTaskbarShow(ctx context.Context, v bool) error {
	return p.set(ctx, "taskbar_show", v)
}

// Opacity is between 0 (transparent) and 1.
func (p *Properties) Opacity(ctx context.Context) (float64, error) {
	var o float64
	err := p.get(ctx, "opacity", &o)
	return o, err
}
func (p *Properties) SetOpacity(ctx context.Context, v float64) error {
	return p.set(ctx, "opacity", v)
}
