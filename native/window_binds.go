package native

import (
	"context"

	"github.com/guseggert/hostbridge/envelope"
	"go.uber.org/zap"
)

// windowLane orders every window call after the ones submitted before it.
const windowLane = "window"

type WindowConfig struct {
	Log *zap.SugaredLogger
	// DefaultTitle is applied by reset_title.
	DefaultTitle func() string
}

func laneOf(name string) LaneFunc {
	return func(Args) string { return name }
}

func action(f func()) Func {
	return func(context.Context, Args) (any, error) {
		f()
		return nil, nil
	}
}

func boolQuery(f func() bool) Func {
	return func(context.Context, Args) (any, error) {
		return f(), nil
	}
}

func floatQuery(f func() float64) Func {
	return func(context.Context, Args) (any, error) {
		return f(), nil
	}
}

func stringAction(f func(s string)) Func {
	return func(ctx context.Context, args Args) (any, error) {
		s, err := args.String(0)
		if err != nil {
			return nil, err
		}
		f(s)
		return nil, nil
	}
}

// RegisterWindow binds the Window, Debug, Network, Navigate and Properties namespaces over w.
func RegisterWindow(t *Table, w Window, cfg WindowConfig) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("window")
	lane := laneOf(windowLane)
	bind := func(suffix string, f Func) { t.BindOrdered(Name(suffix), lane, f) }

	bind("is_focus", boolQuery(w.IsFocus))
	bind("show", func(ctx context.Context, args Args) (any, error) {
		shown, err := args.OptBool(0, true)
		if err != nil {
			return nil, err
		}
		w.Show(shown)
		return nil, nil
	})
	bind("change_title", stringAction(w.SetTitle))
	bind("reset_title", action(func() {
		if cfg.DefaultTitle != nil {
			w.SetTitle(cfg.DefaultTitle())
		}
	}))
	bind("current_title", func(context.Context, Args) (any, error) {
		title := w.Title()
		if title == "" {
			return nil, nil
		}
		return envelope.Encode(title), nil
	})
	bind("reload_page", action(w.Reload))
	bind("navigate_page", stringAction(func(page string) {
		log.Debugw("navigating", "Page", page)
		w.Navigate(page)
	}))
	bind("close_window", action(w.Close))
	bind("terminate", action(w.Terminate))
	bind("start_window_drag", action(w.StartDrag))
	bind("print_page", action(w.Print))

	bind("zoom_in", action(func() { w.SetZoomLevel(w.ZoomLevel() + zoomStep) }))
	bind("zoom_out", action(func() {
		if level := w.ZoomLevel() - zoomStep; level > 0 {
			w.SetZoomLevel(level)
		}
	}))
	bind("zoom_reset", action(func() { w.SetZoomLevel(1) }))
	bind("get_zoom_level", floatQuery(w.ZoomLevel))
	bind("set_zoom_level", func(ctx context.Context, args Args) (any, error) {
		level, err := args.Float(0)
		if err != nil {
			return nil, err
		}
		w.SetZoomLevel(level)
		return nil, nil
	})

	bind("find_in_page", stringAction(w.Find))
	bind("find_next", action(w.FindNext))
	bind("find_previous", action(w.FindPrevious))
	bind("clear_find", action(w.ClearFind))

	bind("clear_console", action(w.ClearConsole))
	bind("open_devtools", action(w.OpenDevtools))
	bind("close_devtools", action(w.CloseDevtools))
	bind("remove_all_css", action(w.RemoveAllCSS))

	bind("get_load_progress", floatQuery(w.LoadProgress))
	bind("is_loading", boolQuery(w.IsLoading))

	bind("navigate_back", action(w.Back))
	bind("navigate_forward", action(w.Forward))
	bind("stop_loading", action(w.StopLoading))
	bind("can_go_back", boolQuery(w.CanGoBack))
	bind("can_go_forward", boolQuery(w.CanGoForward))

	for _, prop := range PropertyNames() {
		prop := prop
		bind("get_"+prop, func(context.Context, Args) (any, error) {
			return w.Property(prop)
		})
		bind("set_"+prop, func(ctx context.Context, args Args) (any, error) {
			if err := w.SetProperty(prop, args.get(0)); err != nil {
				return nil, err
			}
			log.Debugw("set window property", "Property", prop)
			return nil, nil
		})
	}
}

// WindowState reads every property of w.
func WindowState(w Window) map[string]any {
	state := map[string]any{}
	for _, prop := range PropertyNames() {
		v, err := w.Property(prop)
		if err != nil {
			continue
		}
		state[prop] = v
	}
	return state
}
