package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// eventBacklog is how many events may wait for the handler before the reader blocks.
const eventBacklog = 128

type clientOptions struct {
	log         *zap.SugaredLogger
	onEvent     func(callback string, args []any)
	httpClient  *http.Client
	header      http.Header
	subprotocol string
}

type ClientOption func(*clientOptions)

func WithClientLogger(log *zap.SugaredLogger) ClientOption {
	return func(o *clientOptions) { o.log = log }
}

// WithEventHandler sets the function that runs the host's callback events, one at a time in arrival order.
func WithEventHandler(f func(callback string, args []any)) ClientOption {
	return func(o *clientOptions) { o.onEvent = f }
}

func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

func WithHeader(h http.Header) ClientOption {
	return func(o *clientOptions) { o.header = h }
}

// WithCBOR negotiates CBOR frames instead of JSON.
func WithCBOR() ClientOption {
	return func(o *clientOptions) { o.subprotocol = SubprotocolCBOR }
}

// Client is one session against a Server.
type Client struct {
	log     *zap.SugaredLogger
	conn    *websocket.Conn
	codec   codec
	ctx     context.Context
	cancel  func()
	onEvent func(callback string, args []any)

	writeMut sync.Mutex

	mut     sync.Mutex
	pending map[string]chan responseMessage
	closing bool
	err     error

	events     chan eventMessage
	done       chan struct{}
	eventsDone chan struct{}
	closeOnce  sync.Once
}

func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{subprotocol: SubprotocolJSON}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}

	o.log.Debugw("dialing WebSocket for session", "URL", url)
	wsConn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:      o.httpClient,
		HTTPHeader:      o.header,
		Subprotocols:    []string{o.subprotocol},
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		o.log.Debugf("dial error: %s", err)
		return nil, fmt.Errorf("establishing WebSocket conn: %w", err)
	}
	if wsConn.Subprotocol() != o.subprotocol {
		wsConn.Close(websocket.StatusPolicyViolation, "subprotocol not negotiated")
		return nil, fmt.Errorf("server did not accept subprotocol %q", o.subprotocol)
	}
	wsConn.SetReadLimit(readLimit)
	c, err := codecFor(o.subprotocol)
	if err != nil {
		wsConn.Close(websocket.StatusPolicyViolation, err.Error())
		return nil, err
	}

	// the session outlives the dial context
	sessCtx, cancel := context.WithCancel(context.Background())
	client := &Client{
		log:        o.log.Named("rpc_client"),
		conn:       wsConn,
		codec:      c,
		ctx:        sessCtx,
		cancel:     cancel,
		onEvent:    o.onEvent,
		pending:    map[string]chan responseMessage{},
		events:     make(chan eventMessage, eventBacklog),
		done:       make(chan struct{}),
		eventsDone: make(chan struct{}),
	}
	go client.readLoop()
	go client.eventLoop()
	return client, nil
}

// Invoke runs a bound call on the host and returns its result.
// A call the host rejects returns a *CallError.
func (c *Client) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	req := requestMessage{ID: uuid.NewString(), Name: name, Args: args}
	ch := make(chan responseMessage, 1)

	c.mut.Lock()
	if c.err != nil {
		err := c.err
		c.mut.Unlock()
		return nil, err
	}
	c.pending[req.ID] = ch
	c.mut.Unlock()

	if err := c.write(req); err != nil {
		c.forget(req.ID)
		return nil, fmt.Errorf("sending call %s: %w", name, err)
	}

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return nil, resp.Err.CallError(name)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.forget(req.ID)
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.Err()
	}
}

func (c *Client) write(req requestMessage) error {
	c.writeMut.Lock()
	defer c.writeMut.Unlock()
	// writing under the caller's context would tear down the whole connection on cancel
	return c.codec.write(c.ctx, c.conn, req)
}

func (c *Client) forget(id string) {
	c.mut.Lock()
	delete(c.pending, id)
	c.mut.Unlock()
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var msg responseMessage
		err := c.codec.read(c.ctx, c.conn, &msg)
		if err != nil {
			c.fail(err)
			return
		}
		if msg.Event != nil {
			select {
			case c.events <- *msg.Event:
			case <-c.ctx.Done():
				c.fail(c.ctx.Err())
				return
			}
			continue
		}
		c.mut.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mut.Unlock()
		if !ok {
			c.log.Debugw("dropping response to unknown call", "ID", msg.ID)
			continue
		}
		ch <- msg
	}
}

func (c *Client) eventLoop() {
	defer close(c.eventsDone)
	for ev := range c.events {
		if c.onEvent == nil {
			continue
		}
		c.onEvent(ev.Callback, ev.Args)
	}
}

// fail ends the session. Pending and later calls return the recorded error.
func (c *Client) fail(err error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.err != nil {
		return
	}
	switch {
	case c.closing:
		c.err = ErrClosed
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure, websocket.CloseStatus(err) == websocket.StatusGoingAway:
		c.log.Debugw("host closed the session", "Status", websocket.CloseStatus(err))
		c.err = fmt.Errorf("%w: host closed the session", ErrConnectionLost)
	default:
		c.log.Debugf("message reader got error: %s", err)
		c.err = fmt.Errorf("%w: %s", ErrConnectionLost, err)
	}
	c.pending = map[string]chan responseMessage{}
	close(c.done)
}

// Done is closed once the session has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the session ended, or nil while it is still open.
func (c *Client) Err() error {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.err
}

// Close ends the session and waits for queued events to be handled.
// It must not be called from the event handler.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mut.Lock()
		c.closing = true
		c.mut.Unlock()
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
		<-c.eventsDone
		c.fail(ErrClosed)
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
