package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/guseggert/hostbridge/bridge"
	"github.com/guseggert/hostbridge/host/rpc"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Client talks to a running host. Heartbeats are retried, calls never are.
type Client struct {
	Logger *zap.SugaredLogger
	// HTTPClient retries failed requests and is only used for idempotent requests.
	HTTPClient *http.Client

	callClient               *http.Client
	baseURL                  string
	token                    string
	customizeRetryableClient func(*retryablehttp.Client)

	waitInterval      time.Duration
	heartbeatInterval time.Duration
}

type ClientOption func(c *Client)

func WithClientWaitInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.waitInterval = d
	}
}

// WithClientHeartbeatInterval sets how often a session sends heartbeats. Zero disables them.
func WithClientHeartbeatInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.heartbeatInterval = d
	}
}

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.Logger = l.Named("host_client").Sugar()
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

func WithClientToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// NewClient builds a client for the host listening on addr (host:port).
func NewClient(log *zap.SugaredLogger, addr string, opts ...ClientOption) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("no host address")
	}
	c := &Client{
		Logger:        log.Named("host_client"),
		baseURL:       "http://" + addr,
		callClient:    &http.Client{},
		waitInterval:      100 * time.Millisecond,
		heartbeatInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return 10 * time.Millisecond
	}
	retryClient.RetryMax = 10
	retryClient.Logger = &logAdapter{SugaredLogger: c.Logger}
	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}
	c.HTTPClient = retryClient.StandardClient()
	return c, nil
}

func (c *Client) prepReq(r *http.Request) {
	r.Header.Add("Content-Type", "application/json")
	if c.token != "" {
		r.Header.Set(TokenHeader, c.token)
	}
}

func readErrorBody(resp *http.Response) string {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading body: %w", err).Error()
	}
	return string(b)
}

func (c *Client) SendHeartbeat(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/heartbeat", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.prepReq(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected heartbeat status code %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) WaitForServer(ctx context.Context) error {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := c.SendHeartbeat(ctx)
			if err == nil {
				c.Logger.Debug("heartbeat succeeded, done waiting for server")
				return nil
			}
			c.Logger.Debugf("got heartbeat error: %s", err)
		}
	}
}

// StartHeartbeat sends a heartbeat every interval until the returned function is called.
func (c *Client) StartHeartbeat(interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := c.SendHeartbeat(ctx); err != nil && ctx.Err() == nil {
				c.Logger.Debugf("heartbeat error: %s", err)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Call runs one bound call over HTTP. It satisfies bridge.Executor.
// Envelopes in the result are left as decoded JSON objects; bridge.Result decodes them.
func (c *Client) Call(ctx context.Context, name string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshaling arguments: %w", err)
	}
	u := c.baseURL + "/call/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.prepReq(req)

	resp, err := c.callClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound, http.StatusUnprocessableEntity:
	default:
		return nil, fmt.Errorf("non-200 HTTP status code %d received when calling %s: %s", resp.StatusCode, name, readErrorBody(resp))
	}
	var callResp CallResponse
	if err := json.NewDecoder(resp.Body).Decode(&callResp); err != nil {
		return nil, fmt.Errorf("decoding response to %s: %w", name, err)
	}
	if callResp.Error != nil {
		return nil, callResp.Error.CallError(name)
	}
	return callResp.Result, nil
}

// Invoke is Call, under the name bridge.Executor expects.
func (c *Client) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	return c.Call(ctx, name, args...)
}

// Calls lists the names the host has bound.
func (c *Client) Calls(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/calls", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.prepReq(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 HTTP status code %d received when listing calls: %s", resp.StatusCode, readErrorBody(resp))
	}
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("decoding call list: %w", err)
	}
	return names, nil
}

// Bridge returns a bridge client that sends each call as its own HTTP request.
// Host events can't reach it; use Dial for signal callbacks and ordered calls.
func (c *Client) Bridge() *bridge.Client {
	return bridge.New(bridge.ExecutorFunc(c.Call), bridge.WithLogger(c.Logger))
}

// Session is a bridge client backed by one WebSocket session.
// It keeps the host's heartbeat check satisfied while open.
type Session struct {
	*bridge.Client
	conn          *rpc.Client
	stopHeartbeat func()
	closeOnce     sync.Once
}

func (s *Session) Close() error {
	s.closeOnce.Do(s.stopHeartbeat)
	return s.conn.Close()
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.conn.Done()
}

// Dial opens a session. Host events are delivered to the session's callbacks.
func (c *Client) Dial(ctx context.Context, opts ...rpc.ClientOption) (*Session, error) {
	callbacks := bridge.NewCallbacks(c.Logger)
	header := http.Header{}
	if c.token != "" {
		header.Set(TokenHeader, c.token)
	}
	all := append([]rpc.ClientOption{
		rpc.WithClientLogger(c.Logger),
		rpc.WithHTTPClient(c.callClient),
		rpc.WithHeader(header),
	}, opts...)
	all = append(all, rpc.WithEventHandler(callbacks.Handle))

	conn, err := rpc.Dial(ctx, c.baseURL+"/bridge", all...)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		Client:        bridge.New(conn, bridge.WithLogger(c.Logger), bridge.WithCallbacks(callbacks)),
		conn:          conn,
		stopHeartbeat: func() {},
	}
	if c.heartbeatInterval > 0 {
		sess.stopHeartbeat = c.StartHeartbeat(c.heartbeatInterval)
	}
	go func() {
		<-conn.Done()
		sess.closeOnce.Do(sess.stopHeartbeat)
	}()
	return sess, nil
}

var (
	_ bridge.Executor = (*Client)(nil)
	_ bridge.Executor = (*rpc.Client)(nil)
)
