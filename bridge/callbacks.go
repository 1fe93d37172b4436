package bridge

import (
	"sync"

	"go.uber.org/zap"
)

// Callbacks holds page functions the host can ask to run by name.
type Callbacks struct {
	log *zap.SugaredLogger

	mut sync.RWMutex
	fns map[string]func(args []any)
}

func NewCallbacks(log *zap.SugaredLogger) *Callbacks {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Callbacks{log: log.Named("callbacks"), fns: map[string]func(args []any){}}
}

// Register sets the function run for name, replacing any earlier one.
func (c *Callbacks) Register(name string, fn func(args []any)) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.fns[name] = fn
}

func (c *Callbacks) Unregister(name string) {
	c.mut.Lock()
	defer c.mut.Unlock()
	delete(c.fns, name)
}

// Invoke runs the function registered for name, and reports whether there was one.
func (c *Callbacks) Invoke(name string, args []any) bool {
	c.mut.RLock()
	fn, ok := c.fns[name]
	c.mut.RUnlock()
	if !ok {
		c.log.Debugw("no callback registered", "Callback", name)
		return false
	}
	fn(args)
	return true
}

// Handle has the signature of a session event handler.
func (c *Callbacks) Handle(callback string, args []any) {
	c.Invoke(callback, args)
}
