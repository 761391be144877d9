package focus

// Channel is one named focus resource with a fixed priority. Name and
// priority are immutable after construction; the holder, its activity id,
// and the focus state change under the owning [Manager]'s lock.
//
// Channel performs no locking of its own. A standalone Channel (no manager)
// notifies observers synchronously; the Manager injects an asynchronous
// notify function instead.
type Channel struct {
	name     string
	priority int

	observer   Observer
	state      State
	activityID string

	notify func(Observer, State)
}

// NewChannel creates a free channel. Lower priority values outrank higher
// ones.
func NewChannel(name string, priority int) *Channel {
	c := &Channel{name: name, priority: priority, state: StateNone}
	c.notify = func(o Observer, s State) { o.OnFocusChanged(s) }
	return c
}

// Name returns the channel's immutable name.
func (c *Channel) Name() string { return c.name }

// Priority returns the channel's immutable priority.
func (c *Channel) Priority() int { return c.priority }

// State returns the channel's current focus state.
func (c *Channel) State() State { return c.state }

// ActivityID returns the activity recorded by the last SetObserver call.
func (c *Channel) ActivityID() string { return c.activityID }

// Holder returns the current observer, or nil when the channel is free.
func (c *Channel) Holder() Observer { return c.observer }

// SetObserver installs a new holder. A displaced previous holder is
// notified StateNone; the new holder inherits the channel's current state
// without an immediate notification.
func (c *Channel) SetObserver(o Observer) {
	if c.observer != nil && c.observer != o {
		c.notify(c.observer, StateNone)
	}
	c.observer = o
}

// SetActivityID records the activity the holder is performing.
func (c *Channel) SetActivityID(id string) {
	c.activityID = id
}

// SetFocus moves the channel to state and notifies the holder when the
// state actually changed.
func (c *Channel) SetFocus(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.observer != nil {
		c.notify(c.observer, state)
	}
}

// StopActivity releases the channel if the given activity id matches the
// recorded one, notifying the holder StateNone. A mismatched id is ignored.
func (c *Channel) StopActivity(activityID string) bool {
	if c.observer == nil || c.activityID != activityID {
		return false
	}
	c.SetFocus(StateNone)
	c.observer = nil
	c.activityID = ""
	return true
}

// clearHolder drops the holder without notification. Used by the manager
// after it has already queued the final StateNone transition.
func (c *Channel) clearHolder() {
	c.observer = nil
	c.activityID = ""
}
