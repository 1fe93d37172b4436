// Package signals binds OS signal numbers to named page callbacks.
package signals

import (
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Dispatcher delivers a signal to the page callback bound to it.
type Dispatcher func(callback string, sig int)

// Registry holds at most one callback binding per signal number.
//
// Bindings are delivered synthetically through Trigger or by the OS through Deliver.
// Defaults are host handlers for OS delivery of a signal no page has bound. They are not bindings.
type Registry struct {
	log        *zap.SugaredLogger
	dispatch   Dispatcher
	osDelivery bool

	mut      sync.Mutex
	closed   bool
	bindings map[int]string
	defaults map[int][]func(sig int)

	notifyCh chan os.Signal
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type Option func(r *Registry)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Registry) {
		r.log = l.Named("signals")
	}
}

// WithDefault installs a host handler for sig. A page binding on sig replaces it.
func WithDefault(sig int, f func(sig int)) Option {
	return func(r *Registry) {
		r.defaults[sig] = append(r.defaults[sig], f)
	}
}

// WithoutOSDelivery disables os/signal notification. Only Trigger delivers.
func WithoutOSDelivery() Option {
	return func(r *Registry) {
		r.osDelivery = false
	}
}

func New(dispatch Dispatcher, opts ...Option) *Registry {
	r := &Registry{
		log:        zap.NewNop().Sugar(),
		dispatch:   dispatch,
		osDelivery: true,
		bindings:   map[int]string{},
		defaults:   map[int][]func(int){},
	}
	for _, o := range opts {
		o(r)
	}
	if r.osDelivery {
		r.notifyCh = make(chan os.Signal, 8)
		r.stopCh = make(chan struct{})
		r.doneCh = make(chan struct{})
		r.mut.Lock()
		r.refreshLocked()
		r.mut.Unlock()
		go r.deliverLoop()
	}
	return r
}

func (r *Registry) deliverLoop() {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			return
		case s := <-r.notifyCh:
			sig, ok := s.(syscall.Signal)
			if !ok {
				continue
			}
			r.log.Debugw("received OS signal", "Signal", int(sig))
			r.Deliver(int(sig))
		}
	}
}

// refreshLocked points OS notification at exactly the bound and defaulted signals.
func (r *Registry) refreshLocked() {
	if !r.osDelivery || r.closed {
		return
	}
	signal.Stop(r.notifyCh)
	var sigs []os.Signal
	for _, n := range r.numbersLocked() {
		sigs = append(sigs, syscall.Signal(n))
	}
	if len(sigs) > 0 {
		signal.Notify(r.notifyCh, sigs...)
	}
}

func (r *Registry) numbersLocked() []int {
	seen := map[int]bool{}
	var nums []int
	for n := range r.bindings {
		seen[n] = true
		nums = append(nums, n)
	}
	for n := range r.defaults {
		if !seen[n] {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	return nums
}

// Add binds callback to sig, replacing any existing binding.
func (r *Registry) Add(sig int, callback string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if prev, ok := r.bindings[sig]; ok && prev != callback {
		r.log.Debugw("replacing signal binding", "Signal", sig, "Previous", prev, "Callback", callback)
	}
	r.bindings[sig] = callback
	r.refreshLocked()
}

// Remove unbinds sig. It is a no-op when sig is unbound.
func (r *Registry) Remove(sig int) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if _, ok := r.bindings[sig]; !ok {
		return
	}
	delete(r.bindings, sig)
	r.refreshLocked()
}

func (r *Registry) Has(sig int) bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	_, ok := r.bindings[sig]
	return ok
}

// Count returns the number of bound signals. Defaults are not counted.
func (r *Registry) Count() int {
	r.mut.Lock()
	defer r.mut.Unlock()
	return len(r.bindings)
}

func (r *Registry) Clear() {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.bindings = map[int]string{}
	r.refreshLocked()
}

// Callback returns the callback bound to sig.
func (r *Registry) Callback(sig int) (string, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	cb, ok := r.bindings[sig]
	return cb, ok
}

// Trigger delivers sig as if a page had raised it.
// The bound callback, if any, is dispatched exactly once. Host defaults never run.
func (r *Registry) Trigger(sig int) {
	r.mut.Lock()
	callback, bound := r.bindings[sig]
	r.mut.Unlock()

	if !bound {
		r.log.Debugw("no binding for signal", "Signal", sig)
		return
	}
	r.dispatchBinding(callback, sig)
}

// Deliver handles sig as raised by the OS.
// A page binding takes the signal; otherwise the host defaults for sig run.
func (r *Registry) Deliver(sig int) {
	r.mut.Lock()
	callback, bound := r.bindings[sig]
	defaults := append([]func(int){}, r.defaults[sig]...)
	r.mut.Unlock()

	if bound {
		r.dispatchBinding(callback, sig)
		return
	}
	if len(defaults) == 0 {
		r.log.Debugw("no binding for signal", "Signal", sig)
		return
	}
	for _, f := range defaults {
		f(sig)
	}
}

func (r *Registry) dispatchBinding(callback string, sig int) {
	if r.dispatch != nil {
		r.dispatch(callback, sig)
	}
}

// Close stops OS delivery. Bindings stay queryable.
func (r *Registry) Close() {
	r.mut.Lock()
	if r.closed {
		r.mut.Unlock()
		return
	}
	r.closed = true
	r.mut.Unlock()

	if r.osDelivery {
		signal.Stop(r.notifyCh)
		close(r.stopCh)
		<-r.doneCh
	}
}
