package host

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/guseggert/hostbridge/host/rpc"
	"github.com/guseggert/hostbridge/internal/appinfo"
	"github.com/guseggert/hostbridge/native"
	"github.com/guseggert/hostbridge/signals"
	"github.com/guseggert/hostbridge/supervisor"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TokenHeader carries the session token on every request except heartbeats.
const TokenHeader = "X-Hostbridge-Token"

// Host is the native side of the bridge. It serves bound calls to pages over HTTP and WebSocket sessions.
type Host struct {
	logger *zap.SugaredLogger

	listenAddr string
	token      string
	info       appinfo.Info
	page       string
	configPath string
	osSignals  bool
	supOpts    []supervisor.Option
	window     native.Window

	heartbeatFailureHandler func()
	heartbeatTimeout        time.Duration

	sup       *supervisor.Supervisor
	signals   *signals.Registry
	config    *native.ConfigStore
	table     *native.Table
	rpcServer *rpc.Server

	httpServer *http.Server
	serverMut  sync.Mutex

	logFile      string
	clearLogFile bool
	syncLogFile  func()

	closed        chan struct{}
	stopped       chan struct{}
	stopOnce      sync.Once
	stopErr       error
	heartbeatMut  sync.Mutex
	lastHeartbeat time.Time
}

type Option func(h *Host)

func WithListenAddr(s string) Option {
	return func(h *Host) {
		h.listenAddr = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		h.logger = l.Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(h *Host) {
		h.logger = h.logger.WithOptions(zap.IncreaseLevel(l))
	}
}

// WithToken requires every request except heartbeats to carry token.
func WithToken(token string) Option {
	return func(h *Host) {
		h.token = token
	}
}

func WithAppInfo(info appinfo.Info) Option {
	return func(h *Host) {
		h.info = info
	}
}

// WithPage sets the page the window starts on. The app info's starting page is used otherwise.
func WithPage(page string) Option {
	return func(h *Host) {
		h.page = page
	}
}

// WithConfigPath sets where page configuration is persisted. Defaults to config.json in the app directory.
func WithConfigPath(path string) Option {
	return func(h *Host) {
		h.configPath = path
	}
}

// WithWindow attaches a window backend. A headless window is used otherwise.
func WithWindow(w native.Window) Option {
	return func(h *Host) {
		h.window = w
	}
}

func WithSupervisorOptions(opts ...supervisor.Option) Option {
	return func(h *Host) {
		h.supOpts = append(h.supOpts, opts...)
	}
}

// WithoutOSSignals keeps the host from installing OS signal handlers.
func WithoutOSSignals() Option {
	return func(h *Host) {
		h.osSignals = false
	}
}

// WithLogFile also writes every entry, at debug level and up, to the file at path.
// With clear set the file is emptied first. Otherwise entries are appended.
func WithLogFile(path string, clear bool) Option {
	return func(h *Host) {
		h.logFile = path
		h.clearLogFile = clear
	}
}

// WithHeartbeatTimeout makes the host call the heartbeat failure handler when no heartbeat arrives for d.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.heartbeatTimeout = d
	}
}

func WithHeartbeatFailureHandler(f func()) Option {
	return func(h *Host) {
		h.heartbeatFailureHandler = f
	}
}

// New constructs a host. Nothing is started until Run.
func New(opts ...Option) (*Host, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	h := &Host{
		logger:     logger.Named("host").Sugar(),
		listenAddr: "127.0.0.1:8080",
		info:       appinfo.Default(),
		osSignals:  true,
		closed:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	if h.logFile != "" {
		if err := h.openLogFile(); err != nil {
			return nil, err
		}
	}
	if h.page == "" {
		h.page = h.info.StartingPage
	}
	if h.configPath == "" {
		h.configPath = filepath.Join(h.info.Dir, "config.json")
	}
	if h.window == nil {
		h.window = native.NewHeadless(h.info.Title, h.page,
			native.WithHeadlessLogger(h.logger),
			native.WithCloseHandler(h.stopAsync),
		)
	}

	h.sup = supervisor.New(append([]supervisor.Option{supervisor.WithLogger(h.logger)}, h.supOpts...)...)

	sigOpts := []signals.Option{
		signals.WithLogger(h.logger),
		signals.WithDefault(int(syscall.SIGINT), h.onStopSignal),
		signals.WithDefault(int(syscall.SIGTERM), h.onStopSignal),
	}
	if !h.osSignals {
		sigOpts = append(sigOpts, signals.WithoutOSDelivery())
	}
	h.signals = signals.New(h.dispatchSignal, sigOpts...)

	h.config = native.NewConfigStore(h.logger, h.configPath, h.page)
	if err := h.config.Load(); err != nil {
		h.logger.Warnw("unable to load page config, starting empty", "Path", h.configPath, "Error", err)
	}

	h.table = native.NewTable(h.logger)
	native.RegisterLog(h.table, h.logger)
	native.RegisterFS(h.table, native.FSConfig{Log: h.logger, AppDir: h.info.Dir})
	native.RegisterWindow(h.table, h.window, native.WindowConfig{
		Log:          h.logger,
		DefaultTitle: func() string { return h.info.Title },
	})
	native.RegisterSystem(h.table)
	native.RegisterConfig(h.table, h.config, h.window)
	native.RegisterProcess(h.table, h.sup)
	native.RegisterSignal(h.table, h.signals)

	h.rpcServer = rpc.NewServer(h.logger, h.table)
	return h, nil
}

// dispatchSignal asks every connected page to run the callback bound to sig.
func (h *Host) dispatchSignal(callback string, sig int) {
	h.logger.Debugw("dispatching signal to pages", "Signal", sig, "Callback", callback, "Sessions", h.rpcServer.Sessions())
	h.rpcServer.Broadcast(callback, sig)
}

func (h *Host) onStopSignal(sig int) {
	h.logger.Infow("got signal, stopping", "Signal", sig)
	h.stopAsync()
}

func (h *Host) stopAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Stop(ctx); err != nil {
			h.logger.Errorw("error stopping host", "Error", err)
		}
	}()
}

// Table returns the bound calls the host serves.
func (h *Host) Table() *native.Table { return h.table }

// Supervisor returns the supervisor owning the processes pages start.
func (h *Host) Supervisor() *supervisor.Supervisor { return h.sup }

// startHeartbeatCheck calls the heartbeat failure handler each time no heartbeat arrived within the timeout.
func (h *Host) startHeartbeatCheck() {
	if h.heartbeatTimeout <= 0 {
		return
	}
	h.heartbeatMut.Lock()
	h.lastHeartbeat = time.Now()
	h.heartbeatMut.Unlock()

	go func() {
		ticker := time.NewTicker(h.heartbeatTimeout / 4)
		defer ticker.Stop()
		for {
			select {
			case <-h.closed:
				return
			case <-ticker.C:
			}

			h.heartbeatMut.Lock()
			lastHeartbeat := h.lastHeartbeat
			h.heartbeatMut.Unlock()

			if lastHeartbeat.Add(h.heartbeatTimeout).Before(time.Now()) && h.heartbeatFailureHandler != nil {
				h.heartbeatFailureHandler()
			}
		}
	}()
}

func (h *Host) router() http.Handler {
	router := httprouter.New()
	router.GET("/heartbeat", h.heartbeat)
	router.GET("/bridge", h.authorized(h.bridgeWS))
	router.POST("/call/:name", h.authorized(h.call))
	router.GET("/calls", h.authorized(h.calls))
	router.GET("/content/*path", h.content)
	return router
}

func (h *Host) runHTTPServer() error {
	listener, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}

	server := &http.Server{Handler: h.router()}
	h.serverMut.Lock()
	select {
	case <-h.closed:
		h.serverMut.Unlock()
		listener.Close()
		return nil
	default:
	}
	h.httpServer = server
	h.serverMut.Unlock()

	h.logger.Infow("serving", "Addr", listener.Addr().String(), "App", h.info.AppID)
	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Run runs the host and returns once it has stopped, after every process it started has been stopped too.
func (h *Host) Run() error {
	h.startHeartbeatCheck()
	if err := h.runHTTPServer(); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return multierr.Append(err, h.Stop(ctx))
	}
	<-h.stopped
	return h.stopErr
}

// Stop ends every session and every process the host started. It is safe to call more than once.
func (h *Host) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.serverMut.Lock()
		close(h.closed)
		server := h.httpServer
		h.serverMut.Unlock()

		h.rpcServer.Close()
		var err error
		if server != nil {
			err = multierr.Append(err, server.Shutdown(ctx))
		}
		h.signals.Close()
		err = multierr.Append(err, h.sup.Shutdown(ctx))
		h.stopErr = err
		if h.syncLogFile != nil {
			h.syncLogFile()
		}
		close(h.stopped)
	})
	return h.stopErr
}

// Done is closed once Stop has been called.
func (h *Host) Done() <-chan struct{} {
	return h.closed
}

func (h *Host) authorized(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		if h.token != "" {
			got := r.Header.Get(TokenHeader)
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				http.Error(w, "missing or wrong session token", http.StatusUnauthorized)
				return
			}
		}
		next(w, r, params)
	}
}

func (h *Host) heartbeat(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.heartbeatMut.Lock()
	lastHeartbeat := h.lastHeartbeat
	h.lastHeartbeat = time.Now()
	h.heartbeatMut.Unlock()
	response := HeartbeatResponse{
		LastHeartbeat: lastHeartbeat.UTC().Format(time.RFC3339),
		AppID:         h.info.AppID,
		Version:       h.info.Version,
	}
	writeJSON(h.logger, w, http.StatusOK, response)
}

func (h *Host) bridgeWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.rpcServer.ServeHTTP(w, r)
}

func (h *Host) calls(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	writeJSON(h.logger, w, http.StatusOK, h.table.Names())
}

// call runs one bound call per request. This is easier to curl than a session, but has no ordering between calls and no events.
func (h *Host) call(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := params.ByName("name")
	if !strings.HasPrefix(name, native.Prefix) {
		name = native.Prefix + name
	}

	var args []any
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			http.Error(w, fmt.Sprintf("request body must be a JSON array of arguments: %s", err), http.StatusBadRequest)
			return
		}
	}

	inv, err := h.table.Prepare(name, native.Args(args))
	if err != nil {
		writeJSON(h.logger, w, http.StatusNotFound, CallResponse{Error: rpc.NewErrorBody(err)})
		return
	}
	complete, err := inv.Admit(r.Context())
	if err != nil {
		writeJSON(h.logger, w, http.StatusUnprocessableEntity, CallResponse{Error: rpc.NewErrorBody(err)})
		return
	}
	res, err := complete(r.Context())
	if err != nil {
		writeJSON(h.logger, w, http.StatusUnprocessableEntity, CallResponse{Error: rpc.NewErrorBody(err)})
		return
	}
	writeJSON(h.logger, w, http.StatusOK, CallResponse{Result: res})
}

func writeJSON(log *zap.SugaredLogger, w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Debugf("error marshaling response: %s", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
