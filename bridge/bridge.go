package bridge

import (
	"context"
	"fmt"

	"github.com/guseggert/hostbridge/envelope"
	"go.uber.org/zap"
)

// Prefix is prepended to every bound call name.
const Prefix = "BIND_"

// Executor runs one bound call on the host. name is the full bound name.
type Executor interface {
	Invoke(ctx context.Context, name string, args ...any) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, name string, args ...any) (any, error)

func (f ExecutorFunc) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	return f(ctx, name, args...)
}

type Option func(*Client)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// WithCallbacks shares a callback set with the client, typically the one fed by a session's event handler.
func WithCallbacks(cb *Callbacks) Option {
	return func(c *Client) { c.Callbacks = cb }
}

// Client is the set of namespaces bound to one executor.
type Client struct {
	log *zap.SugaredLogger

	Log        *Log
	FS         *FS
	Window     *Window
	System     *System
	Config     *Config
	Process    *Process
	Signal     *Signal
	Debug      *Debug
	Network    *Network
	Navigate   *Navigate
	Properties *Properties

	Callbacks *Callbacks
}

func New(exec Executor, opts ...Option) *Client {
	c := &Client{}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	if c.Callbacks == nil {
		c.Callbacks = NewCallbacks(c.log)
	}
	cl := &caller{exec: exec, log: c.log.Named("bridge")}
	c.Log = &Log{c: cl}
	c.FS = &FS{c: cl}
	c.Window = &Window{c: cl}
	c.System = &System{c: cl}
	c.Config = &Config{c: cl}
	c.Process = &Process{c: cl}
	c.Signal = &Signal{c: cl, callbacks: c.Callbacks}
	c.Debug = &Debug{c: cl}
	c.Network = &Network{c: cl}
	c.Navigate = &Navigate{c: cl}
	c.Properties = &Properties{c: cl}
	return c
}

type caller struct {
	exec Executor
	log  *zap.SugaredLogger
}

// query runs a bound call and wraps its value.
func (c *caller) query(ctx context.Context, suffix string, args ...any) (Result, error) {
	name := Prefix + suffix
	if len(args) == 0 {
		// existing page bundles always pass one argument
		args = []any{nil}
	}
	v, err := c.exec.Invoke(ctx, name, args...)
	if err != nil {
		c.log.Debugw("call rejected", "Name", name, "Error", err)
		return Result{}, fmt.Errorf("%s: %w", name, err)
	}
	return Result{v: v}, nil
}

// command runs a bound call whose result carries no payload.
func (c *caller) command(ctx context.Context, suffix string, args ...any) error {
	_, err := c.query(ctx, suffix, args...)
	return err
}

func (c *caller) boolQuery(ctx context.Context, suffix string, args ...any) (bool, error) {
	res, err := c.query(ctx, suffix, args...)
	if err != nil {
		return false, err
	}
	return res.Bool()
}

func (c *caller) floatQuery(ctx context.Context, suffix string, args ...any) (float64, error) {
	res, err := c.query(ctx, suffix, args...)
	if err != nil {
		return 0, err
	}
	return res.Float()
}

func enc(s string) envelope.Envelope {
	return envelope.Encode(s)
}

func encAll(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = envelope.Encode(s)
	}
	return out
}
