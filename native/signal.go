package native

import (
	"context"

	"github.com/guseggert/hostbridge/signals"
)

// RegisterSignal binds the Signal namespace over reg. All signal calls share one lane.
func RegisterSignal(t *Table, reg *signals.Registry) {
	lane := laneOf("signal")
	sigNum := func(args Args) (int, error) { return args.Int(0) }

	t.BindOrdered(Name("signal_add"), lane, func(ctx context.Context, args Args) (any, error) {
		sig, err := sigNum(args)
		if err != nil {
			return nil, err
		}
		callback, err := args.String(1)
		if err != nil {
			return nil, err
		}
		reg.Add(sig, callback)
		return nil, nil
	})
	t.BindOrdered(Name("signal_remove"), lane, func(ctx context.Context, args Args) (any, error) {
		sig, err := sigNum(args)
		if err != nil {
			return nil, err
		}
		reg.Remove(sig)
		return nil, nil
	})
	t.BindOrdered(Name("signal_has"), lane, func(ctx context.Context, args Args) (any, error) {
		sig, err := sigNum(args)
		if err != nil {
			return nil, err
		}
		return reg.Has(sig), nil
	})
	t.BindOrdered(Name("signal_clear"), lane, func(context.Context, Args) (any, error) {
		reg.Clear()
		return nil, nil
	})
	t.BindOrdered(Name("signal_count"), lane, func(context.Context, Args) (any, error) {
		return reg.Count(), nil
	})
	t.BindOrdered(Name("signal_trigger"), lane, func(ctx context.Context, args Args) (any, error) {
		sig, err := sigNum(args)
		if err != nil {
			return nil, err
		}
		reg.Trigger(sig)
		return nil, nil
	})
}
