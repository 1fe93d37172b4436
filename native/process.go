package native

import (
	"context"
	"fmt"
	"strconv"

	"github.com/guseggert/hostbridge/envelope"
	"github.com/guseggert/hostbridge/supervisor"
)

type processCalls struct {
	sup *supervisor.Supervisor
}

func identityArgs(args Args) (supervisor.Identity, error) {
	typ, err := args.String(0)
	if err != nil {
		return supervisor.Identity{}, err
	}
	key, err := args.String(1)
	if err != nil {
		return supervisor.Identity{}, err
	}
	return supervisor.Identity{Type: typ, Key: key}, nil
}

// identityLane orders calls on one (type, key). Calls with unreadable arguments fail without ordering.
func identityLane(args Args) string {
	id, err := identityArgs(args)
	if err != nil {
		return ""
	}
	return "process:" + id.String()
}

func pidLane(i int) LaneFunc {
	return func(args Args) string {
		pid, err := args.Int(i)
		if err != nil {
			return ""
		}
		return "pid:" + strconv.Itoa(pid)
	}
}

// RegisterProcess binds the Process namespace over sup.
// Calls on the same identity are ordered. process_wait and process_wait_pid are admitted in order and then
// block outside the lane, so a kill submitted after a wait can still end it.
func RegisterProcess(t *Table, sup *supervisor.Supervisor) {
	p := &processCalls{sup: sup}

	t.BindOrdered(Name("process_start"), identityLane, p.start)
	t.BindOrdered(Name("process_kill"), identityLane, p.identityQuery(sup.Kill))
	t.BindOrdered(Name("process_has"), identityLane, p.identityQuery(sup.Has))
	t.BindOrdered(Name("process_has_running"), identityLane, p.identityQuery(sup.HasRunning))
	t.BindOrdered(Name("process_has_pid"), pidLane(1), p.hasPid)
	t.BindDeferred(Name("process_wait"), identityLane, p.wait)
	t.BindDeferred(Name("process_wait_pid"), pidLane(1), p.waitPid)
	t.Bind(Name("duplicate_process"), p.duplicate)
	t.BindOrdered(Name("pipe_read"), func(args Args) string {
		key, err := args.String(0)
		if err != nil {
			return ""
		}
		return "process:" + supervisor.Identity{Type: supervisor.PipeType, Key: key}.String()
	}, p.pipeRead)
	t.BindOrdered(Name("pipe_read_pid"), pidLane(0), p.pipeReadPid)
	t.Bind(Name("open_uri"), p.openURI)
	t.Bind(Name("open_window"), p.openWindow)
	t.Bind(Name("process_clean"), func(context.Context, Args) (any, error) {
		return sup.Clean(), nil
	})
}

func (p *processCalls) start(ctx context.Context, args Args) (any, error) {
	id, err := identityArgs(args)
	if err != nil {
		return nil, err
	}
	argv, err := args.Strings(2)
	if err != nil {
		return nil, err
	}
	return p.sup.Start(ctx, id, argv)
}

func (p *processCalls) identityQuery(f func(supervisor.Identity) bool) Func {
	return func(ctx context.Context, args Args) (any, error) {
		id, err := identityArgs(args)
		if err != nil {
			return nil, err
		}
		return f(id), nil
	}
}

func (p *processCalls) hasPid(ctx context.Context, args Args) (any, error) {
	typ, err := args.String(0)
	if err != nil {
		return nil, err
	}
	pid, err := args.Int(1)
	if err != nil {
		return nil, err
	}
	return p.sup.HasPid(typ, pid), nil
}

func waitCompletion(w *supervisor.Waiter) Completion {
	return func(ctx context.Context) (any, error) {
		return w.Wait(ctx)
	}
}

func (p *processCalls) wait(ctx context.Context, args Args) (Completion, error) {
	id, err := identityArgs(args)
	if err != nil {
		return nil, err
	}
	w, err := p.sup.Watch(id)
	if err != nil {
		return nil, err
	}
	return waitCompletion(w), nil
}

func (p *processCalls) waitPid(ctx context.Context, args Args) (Completion, error) {
	typ, err := args.String(0)
	if err != nil {
		return nil, err
	}
	pid, err := args.Int(1)
	if err != nil {
		return nil, err
	}
	if !p.sup.HasPid(typ, pid) {
		return nil, fmt.Errorf("waiting on %s PID %d: %w", typ, pid, supervisor.ErrNotTracked)
	}
	w, err := p.sup.WatchPid(pid)
	if err != nil {
		return nil, err
	}
	return waitCompletion(w), nil
}

func (p *processCalls) duplicate(ctx context.Context, args Args) (any, error) {
	return p.sup.Duplicate(ctx)
}

func pipeResult(b []byte, ok bool) any {
	if !ok {
		return nil
	}
	return envelope.EncodeBytes(b)
}

func (p *processCalls) pipeRead(ctx context.Context, args Args) (any, error) {
	key, err := args.String(0)
	if err != nil {
		return nil, err
	}
	limit, err := args.OptInt(1, supervisor.DefaultPipeReadLimit)
	if err != nil {
		return nil, err
	}
	return pipeResult(p.sup.PipeRead(key, limit)), nil
}

func (p *processCalls) pipeReadPid(ctx context.Context, args Args) (any, error) {
	pid, err := args.Int(0)
	if err != nil {
		return nil, err
	}
	limit, err := args.OptInt(1, supervisor.DefaultPipeReadLimit)
	if err != nil {
		return nil, err
	}
	return pipeResult(p.sup.PipeReadPid(pid, limit)), nil
}

func (p *processCalls) openURI(ctx context.Context, args Args) (any, error) {
	uri, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return nil, p.sup.OpenURI(ctx, uri)
}

func (p *processCalls) openWindow(ctx context.Context, args Args) (any, error) {
	page, err := args.String(0)
	if err != nil {
		return nil, err
	}
	single, err := args.OptBool(1, false)
	if err != nil {
		return nil, err
	}
	return nil, p.sup.OpenWindow(ctx, page, single)
}
