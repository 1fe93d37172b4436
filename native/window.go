package native

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrUnknownProperty = errors.New("unknown window property")

// Window is the webview the host drives. Properties are addressed by name (see PropertyNames).
type Window interface {
	IsFocus() bool
	Show(shown bool)
	SetTitle(title string)
	Title() string
	Reload()
	Navigate(page string)
	// Page is the page the window shows.
	Page() string
	Close()
	Terminate()
	StartDrag()
	Print()

	ZoomLevel() float64
	SetZoomLevel(level float64)

	Find(text string)
	FindNext()
	FindPrevious()
	ClearFind()

	ClearConsole()
	OpenDevtools()
	CloseDevtools()
	RemoveAllCSS()

	LoadProgress() float64
	IsLoading() bool

	Back()
	Forward()
	StopLoading()
	CanGoBack() bool
	CanGoForward() bool

	Property(name string) (any, error)
	SetProperty(name string, value any) error
}

const (
	PropSize        = "size"
	PropPosition    = "position"
	PropDecorated   = "decorated"
	PropResizable   = "resizable"
	PropKeepAbove   = "keepabove"
	PropMinimize    = "minimize"
	PropMaximize    = "maximize"
	PropFullscreen  = "fullscreen"
	PropTaskbarShow = "taskbar_show"
	PropOpacity     = "opacity"
)

// PropertyNames lists every window property with get_ and set_ calls.
func PropertyNames() []string {
	return []string{
		PropSize, PropPosition, PropDecorated, PropResizable, PropKeepAbove,
		PropMinimize, PropMaximize, PropFullscreen, PropTaskbarShow, PropOpacity,
	}
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// minimize, maximize and fullscreen are mutually exclusive
var windowStates = []string{PropMinimize, PropMaximize, PropFullscreen}

func isWindowState(name string) bool {
	for _, s := range windowStates {
		if s == name {
			return true
		}
	}
	return false
}

const zoomStep = 0.1

// Headless is a Window that only records state. It is used when no webview is attached.
type Headless struct {
	log *zap.SugaredLogger

	m          sync.Mutex
	shown      bool
	title      string
	history    []string
	historyPos int
	zoom       float64
	find       string
	devtools   bool
	closed     bool
	props      map[string]any
	onClose    func()
}

type HeadlessOption func(h *Headless)

func WithHeadlessLogger(l *zap.SugaredLogger) HeadlessOption {
	return func(h *Headless) {
		h.log = l.Named("headless")
	}
}

// WithCloseHandler sets the function run by Close and Terminate.
func WithCloseHandler(f func()) HeadlessOption {
	return func(h *Headless) {
		h.onClose = f
	}
}

func NewHeadless(title, page string, opts ...HeadlessOption) *Headless {
	h := &Headless{
		log:        zap.NewNop().Sugar(),
		shown:      true,
		title:      title,
		history:    []string{page},
		historyPos: 0,
		zoom:       1,
		props: map[string]any{
			PropSize:        Size{Width: 800, Height: 600},
			PropPosition:    Position{},
			PropDecorated:   true,
			PropResizable:   true,
			PropKeepAbove:   false,
			PropMinimize:    false,
			PropMaximize:    false,
			PropFullscreen:  false,
			PropTaskbarShow: true,
			PropOpacity:     1.0,
		},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Headless) IsFocus() bool {
	h.m.Lock()
	defer h.m.Unlock()
	return h.shown && !h.closed
}

func (h *Headless) Show(shown bool) {
	h.m.Lock()
	defer h.m.Unlock()
	h.shown = shown
}

func (h *Headless) SetTitle(title string) {
	h.m.Lock()
	defer h.m.Unlock()
	h.title = title
}

func (h *Headless) Title() string {
	h.m.Lock()
	defer h.m.Unlock()
	return h.title
}

func (h *Headless) Reload() { h.log.Debug("reload") }

// Page returns the page currently shown.
func (h *Headless) Page() string {
	h.m.Lock()
	defer h.m.Unlock()
	return h.history[h.historyPos]
}

func (h *Headless) Navigate(page string) {
	h.m.Lock()
	defer h.m.Unlock()
	h.history = append(h.history[:h.historyPos+1], page)
	h.historyPos++
}

func (h *Headless) close() {
	h.m.Lock()
	already := h.closed
	h.closed = true
	onClose := h.onClose
	h.m.Unlock()
	if !already && onClose != nil {
		onClose()
	}
}

func (h *Headless) Close()     { h.close() }
func (h *Headless) Terminate() { h.close() }

func (h *Headless) Closed() bool {
	h.m.Lock()
	defer h.m.Unlock()
	return h.closed
}

func (h *Headless) StartDrag() {}
func (h *Headless) Print()     { h.log.Debug("print") }

func (h *Headless) ZoomLevel() float64 {
	h.m.Lock()
	defer h.m.Unlock()
	return h.zoom
}

func (h *Headless) SetZoomLevel(level float64) {
	h.m.Lock()
	defer h.m.Unlock()
	if level <= 0 {
		return
	}
	h.zoom = level
}

func (h *Headless) Find(text string) {
	h.m.Lock()
	defer h.m.Unlock()
	h.find = text
}

func (h *Headless) FindNext()     {}
func (h *Headless) FindPrevious() {}

func (h *Headless) ClearFind() { h.Find("") }

// FindText returns the active search text.
func (h *Headless) FindText() string {
	h.m.Lock()
	defer h.m.Unlock()
	return h.find
}

func (h *Headless) ClearConsole() {}

func (h *Headless) OpenDevtools() {
	h.m.Lock()
	defer h.m.Unlock()
	h.devtools = true
}

func (h *Headless) CloseDevtools() {
	h.m.Lock()
	defer h.m.Unlock()
	h.devtools = false
}

func (h *Headless) DevtoolsOpen() bool {
	h.m.Lock()
	defer h.m.Unlock()
	return h.devtools
}

func (h *Headless) RemoveAllCSS() {}

func (h *Headless) LoadProgress() float64 { return 1 }
func (h *Headless) IsLoading() bool       { return false }

func (h *Headless) Back() {
	h.m.Lock()
	defer h.m.Unlock()
	if h.historyPos > 0 {
		h.historyPos--
	}
}

func (h *Headless) Forward() {
	h.m.Lock()
	defer h.m.Unlock()
	if h.historyPos < len(h.history)-1 {
		h.historyPos++
	}
}

func (h *Headless) StopLoading() {}

func (h *Headless) CanGoBack() bool {
	h.m.Lock()
	defer h.m.Unlock()
	return h.historyPos > 0
}

func (h *Headless) CanGoForward() bool {
	h.m.Lock()
	defer h.m.Unlock()
	return h.historyPos < len(h.history)-1
}

func (h *Headless) Property(name string) (any, error) {
	h.m.Lock()
	defer h.m.Unlock()
	v, ok := h.props[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownProperty)
	}
	return v, nil
}

func (h *Headless) SetProperty(name string, value any) error {
	v, err := normalizeProperty(name, value)
	if err != nil {
		return err
	}
	h.m.Lock()
	defer h.m.Unlock()
	h.props[name] = v
	if b, ok := v.(bool); ok && b && isWindowState(name) {
		for _, other := range windowStates {
			if other != name {
				h.props[other] = false
			}
		}
	}
	return nil
}

// normalizeProperty checks value against the shape of property name and converts it to its stored type.
func normalizeProperty(name string, value any) (any, error) {
	args := Args{value}
	switch name {
	case PropSize:
		var s Size
		if err := args.Decode(0, &s); err != nil {
			return nil, err
		}
		if s.Width <= 0 || s.Height <= 0 {
			return nil, fmt.Errorf("size %dx%d: %w", s.Width, s.Height, ErrBadArgument)
		}
		return s, nil
	case PropPosition:
		var p Position
		if err := args.Decode(0, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PropDecorated, PropResizable, PropKeepAbove, PropMinimize, PropMaximize, PropFullscreen, PropTaskbarShow:
		return args.Bool(0)
	case PropOpacity:
		f, err := args.Float(0)
		if err != nil {
			return nil, err
		}
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("opacity %v outside [0, 1]: %w", f, ErrBadArgument)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownProperty)
}
