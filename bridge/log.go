package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// Log writes page messages into the host's log.
type Log struct {
	c *caller
}

// logText renders msg. Strings are sent as they are, anything else as JSON.
func logText(msg any) string {
	if s, ok := msg.(string); ok {
		return s
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Sprint(msg)
	}
	return string(b)
}

func (l *Log) write(ctx context.Context, level string, msg any) error {
	return l.c.command(ctx, "log_"+level, enc(logText(msg)))
}

func (l *Log) Trace(ctx context.Context, msg any) error    { return l.write(ctx, "trace", msg) }
func (l *Log) Debug(ctx context.Context, msg any) error    { return l.write(ctx, "debug", msg) }
func (l *Log) Info(ctx context.Context, msg any) error     { return l.write(ctx, "info", msg) }
func (l *Log) Warn(ctx context.Context, msg any) error     { return l.write(ctx, "warn", msg) }
func (l *Log) Error(ctx context.Context, msg any) error    { return l.write(ctx, "error", msg) }
func (l *Log) Critical(ctx context.Context, msg any) error { return l.write(ctx, "critical", msg) }
