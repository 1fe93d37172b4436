package native

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Prefix starts every bound call name.
const Prefix = "BIND_"

// Name returns the bound name for a call suffix, e.g. Name("process_start") is "BIND_process_start".
func Name(suffix string) string { return Prefix + suffix }

// Func executes a bound call.
type Func func(ctx context.Context, args Args) (any, error)

// Completion finishes a call that was admitted. It runs outside the call's lane.
type Completion func(ctx context.Context) (any, error)

// Admit is the part of a call that runs in lane order.
// It returns the Completion that produces the result, which may block for a long time without holding up the lane.
type Admit func(ctx context.Context, args Args) (Completion, error)

// LaneFunc derives a call's ordering lane from its arguments.
// Calls in the same lane are admitted in submission order. An empty lane means no ordering.
type LaneFunc func(args Args) string

type binding struct {
	lane  LaneFunc
	admit Admit
}

// Table maps bound call names to their implementations.
type Table struct {
	log *zap.SugaredLogger

	mut      sync.RWMutex
	bindings map[string]binding
}

func NewTable(log *zap.SugaredLogger) *Table {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Table{
		log:      log.Named("table"),
		bindings: map[string]binding{},
	}
}

func completed(v any, err error) (Completion, error) {
	if err != nil {
		return nil, err
	}
	return func(context.Context) (any, error) { return v, nil }, nil
}

// Bind binds an unordered call.
func (t *Table) Bind(name string, f Func) {
	t.BindOrdered(name, nil, f)
}

// BindOrdered binds a call that runs to completion inside its lane.
func (t *Table) BindOrdered(name string, lane LaneFunc, f Func) {
	t.BindDeferred(name, lane, func(ctx context.Context, args Args) (Completion, error) {
		return completed(f(ctx, args))
	})
}

// BindDeferred binds a call whose admission runs in lane order and whose completion does not.
func (t *Table) BindDeferred(name string, lane LaneFunc, admit Admit) {
	t.mut.Lock()
	defer t.mut.Unlock()
	if _, ok := t.bindings[name]; ok {
		t.log.Debugw("rebinding call", "Name", name)
	}
	t.bindings[name] = binding{lane: lane, admit: admit}
}

// Names returns the sorted bound names.
func (t *Table) Names() []string {
	t.mut.RLock()
	defer t.mut.RUnlock()
	names := make([]string, 0, len(t.bindings))
	for name := range t.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invocation is a resolved call waiting to be admitted.
type Invocation struct {
	Name string
	Lane string

	args  Args
	admit Admit
}

// Prepare resolves name and computes the call's lane.
func (t *Table) Prepare(name string, args Args) (*Invocation, error) {
	t.mut.RLock()
	b, ok := t.bindings[name]
	t.mut.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownCall)
	}
	inv := &Invocation{Name: name, args: args, admit: b.admit}
	if b.lane != nil {
		inv.Lane = b.lane(args)
	}
	return inv, nil
}

func (inv *Invocation) Admit(ctx context.Context) (Completion, error) {
	c, err := inv.admit(ctx, inv.args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inv.Name, err)
	}
	return c, nil
}

// Call prepares, admits and completes one call without lane ordering against other calls.
func (t *Table) Call(ctx context.Context, name string, args Args) (any, error) {
	inv, err := t.Prepare(name, args)
	if err != nil {
		return nil, err
	}
	c, err := inv.Admit(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}
