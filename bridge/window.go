package bridge

import "context"

type ShowOptions struct {
	Hidden bool
}

// Window controls the host window showing the page.
type Window struct {
	c *caller
}

func (w *Window) IsFocus(ctx context.Context) (bool, error) {
	return w.c.boolQuery(ctx, "is_focus")
}

func (w *Window) Show(ctx context.Context, opts ShowOptions) error {
	return w.c.command(ctx, "show", !opts.Hidden)
}

func (w *Window) ChangeTitle(ctx context.Context, title string) error {
	return w.c.command(ctx, "change_title", enc(title))
}

// ResetTitle restores the application's title.
func (w *Window) ResetTitle(ctx context.Context) error {
	return w.c.command(ctx, "reset_title")
}

// CurrentTitle returns the window title. ok is false when the window has none.
func (w *Window) CurrentTitle(ctx context.Context) (title string, ok bool, err error) {
	res, err := w.c.query(ctx, "current_title")
	if err != nil {
		return "", false, err
	}
	title, ok = res.String()
	return title, ok, nil
}

func (w *Window) ReloadPage(ctx context.Context) error {
	return w.c.command(ctx, "reload_page")
}

func (w *Window) NavigatePage(ctx context.Context, page string) error {
	return w.c.command(ctx, "navigate_page", enc(page))
}

func (w *Window) CloseWindow(ctx context.Context) error {
	return w.c.command(ctx, "close_window")
}

// Terminate ends the host application.
func (w *Window) Terminate(ctx context.Context) error {
	return w.c.command(ctx, "terminate")
}

func (w *Window) StartWindowDrag(ctx context.Context) error {
	return w.c.command(ctx, "start_window_drag")
}

func (w *Window) PrintPage(ctx context.Context) error {
	return w.c.command(ctx, "print_page")
}

func (w *Window) ZoomIn(ctx context.Context) error {
	return w.c.command(ctx, "zoom_in")
}

func (w *Window) ZoomOut(ctx context.Context) error {
	return w.c.command(ctx, "zoom_out")
}

func (w *Window) ZoomReset(ctx context.Context) error {
	return w.c.command(ctx, "zoom_reset")
}

func (w *Window) ZoomLevel(ctx context.Context) (float64, error) {
	return w.c.floatQuery(ctx, "get_zoom_level")
}

func (w *Window) SetZoomLevel(ctx context.Context, level float64) error {
	return w.c.command(ctx, "set_zoom_level", level)
}

func (w *Window) FindInPage(ctx context.Context, text string) error {
	return w.c.command(ctx, "find_in_page", enc(text))
}

func (w *Window) FindNext(ctx context.Context) error {
	return w.c.command(ctx, "find_next")
}

func (w *Window) FindPrevious(ctx context.Context) error {
	return w.c.command(ctx, "find_previous")
}

func (w *Window) ClearFind(ctx context.Context) error {
	return w.c.command(ctx, "clear_find")
}

type Debug struct {
	c *caller
}

func (d *Debug) ClearConsole(ctx context.Context) error {
	return d.c.command(ctx, "clear_console")
}

func (d *Debug) OpenDevtools(ctx context.Context) error {
	return d.c.command(ctx, "open_devtools")
}

func (d *Debug) CloseDevtools(ctx context.Context) error {
	return d.c.command(ctx, "close_devtools")
}

func (d *Debug) RemoveAllCSS(ctx context.Context) error {
	return d.c.command(ctx, "remove_all_css")
}

type Network struct {
	c *caller
}

// LoadProgress returns how much of the page has loaded, between 0 and 1.
func (n *Network) LoadProgress(ctx context.Context) (float64, error) {
	return n.c.floatQuery(ctx, "get_load_progress")
}

func (n *Network) IsLoading(ctx context.Context) (bool, error) {
	return n.c.boolQuery(ctx, "is_loading")
}

type Navigate struct {
	c *caller
}

func (n *Navigate) Back(ctx context.Context) error {
	return n.c.command(ctx, "navigate_back")
}

func (n *Navigate) Forward(ctx context.Context) error {
	return n.c.command(ctx, "navigate_forward")
}

func (n *Navigate) StopLoading(ctx context.Context) error {
	return n.c.command(ctx, "stop_loading")
}

func (n *Navigate) CanGoBack(ctx context.Context) (bool, error) {
	return n.c.boolQuery(ctx, "can_go_back")
}

func (n *Navigate) CanGoForward(ctx context.Context) (bool, error) {
	return n.c.boolQuery(ctx, "can_go_forward")
}
