package power

import "sync"

// Context holds the last observed power mode.
//
// A Monitor owns exactly one active Context; callers may build their own
// (e.g. to start in Suspend, or to let StatusChange through) and install it
// with Monitor.Configure.
type Context struct {
	mu     sync.Mutex
	mode   Mode
	ignore bool

	// hook is the single change listener, attached by the owning Monitor.
	hook func(Mode)
}

// NewContext returns a context in the given mode that ignores StatusChange.
func NewContext(mode Mode) *Context {
	return &Context{mode: mode, ignore: true}
}

func (c *Context) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Context) IgnoreStatusChange() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ignore
}

func (c *Context) SetIgnoreStatusChange(v bool) {
	c.mu.Lock()
	c.ignore = v
	c.mu.Unlock()
}

// SetMode stores mode and reports whether it is a distinct transition.
//
// A transition is distinct when mode differs from the stored one, or when it
// is StatusChange and StatusChange is not ignored. An ignored StatusChange
// leaves the stored mode untouched. The attached hook is invoked for distinct
// transitions after the lock is released.
func (c *Context) SetMode(mode Mode) bool {
	c.mu.Lock()
	if mode == StatusChange && c.ignore {
		c.mu.Unlock()
		return false
	}
	changed := mode != c.mode || mode == StatusChange
	c.mode = mode
	hook := c.hook
	c.mu.Unlock()

	if changed && hook != nil {
		hook(mode)
	}
	return changed
}

func (c *Context) attach(hook func(Mode)) {
	c.mu.Lock()
	c.hook = hook
	c.mu.Unlock()
}

func (c *Context) detach() {
	c.mu.Lock()
	c.hook = nil
	c.mu.Unlock()
}
