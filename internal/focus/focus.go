// Package focus implements channel focus arbitration: a fixed,
// priority-ordered set of named resource channels with at most one holder
// each, where the highest-priority held channel owns foreground attention
// and every other held channel sits in the background.
//
// The [Manager] is the single source of truth for "who may currently act".
// Arbitration itself is synchronous and deterministic; observer
// notifications are delivered in order on a dedicated goroutine so that an
// observer callback can never reenter the arbitration lock.
package focus

// State is the focus a channel holder currently has.
type State int

const (
	// StateNone means the observer does not hold the channel.
	StateNone State = iota

	// StateBackground means the observer holds the channel but a
	// higher-priority channel owns the foreground.
	StateBackground

	// StateForeground means the observer holds the channel and owns the
	// foreground.
	StateForeground
)

// String returns the human-readable name of the focus state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateBackground:
		return "BACKGROUND"
	case StateForeground:
		return "FOREGROUND"
	default:
		return "UNKNOWN"
	}
}

// Observer receives focus transitions for a channel it acquired.
//
// Callbacks run on the manager's notifier goroutine, in the exact order the
// transitions occurred. They must return promptly and must not call back
// into the [Manager] synchronously; observers needing further work hand it
// off to their own task queue.
type Observer interface {
	OnFocusChanged(state State)
}
