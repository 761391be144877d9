package focus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/04116/avs-device-sdk/internal/executor"
	"github.com/04116/avs-device-sdk/internal/observe"
)

// ChannelConfig declares one focus channel at manager construction time.
type ChannelConfig struct {
	// Name identifies the channel (e.g., "Dialog", "Alerts", "Content").
	Name string

	// Priority orders channels; lower values outrank higher ones.
	Priority int
}

// Manager arbitrates focus across a fixed set of channels.
//
// Among channels that currently have a holder, the highest-priority one is
// granted StateForeground and every other held channel StateBackground.
// Acquiring a channel that already has a holder displaces that holder (it
// is notified StateNone). Every successful acquire delivers at least one
// notification to the new holder carrying its granted state, even when the
// channel's state did not change.
//
// All methods are safe for concurrent use. Arbitration happens under a
// single lock; notifications are queued and delivered in order on a
// dedicated goroutine.
type Manager struct {
	mu       sync.Mutex
	channels map[string]*Channel

	// byPriority is the fixed arbitration order, best first.
	byPriority []*Channel

	// notifier serializes observer callbacks off the arbitration lock.
	notifier *executor.Executor

	met *observe.Metrics
}

// Option customizes a [Manager] at construction time.
type Option func(*Manager)

// WithMetrics overrides the metric instruments the manager records on.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.met = met }
}

// NewManager creates a manager with the given channels. Channel names must
// be non-empty and unique.
func NewManager(configs []ChannelConfig, opts ...Option) (*Manager, error) {
	if len(configs) == 0 {
		return nil, errors.New("focus: at least one channel is required")
	}

	m := &Manager{
		channels: make(map[string]*Channel, len(configs)),
		notifier: executor.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.met == nil {
		m.met = observe.DefaultMetrics()
	}
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, errors.New("focus: channel name must not be empty")
		}
		if _, dup := m.channels[cfg.Name]; dup {
			return nil, fmt.Errorf("focus: duplicate channel name %q", cfg.Name)
		}
		ch := NewChannel(cfg.Name, cfg.Priority)
		ch.notify = m.enqueueNotification
		m.channels[cfg.Name] = ch
		m.byPriority = append(m.byPriority, ch)
	}
	sort.SliceStable(m.byPriority, func(i, j int) bool {
		return m.byPriority[i].Priority() < m.byPriority[j].Priority()
	})
	return m, nil
}

// AcquireChannel requests the named channel for observer. It returns false
// only when the channel name is unknown. The granted state (foreground or
// background) is delivered asynchronously through the observer.
func (m *Manager) AcquireChannel(name string, observer Observer, activityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[name]
	if !ok {
		slog.Warn("focus: acquire on unknown channel", "channel", name)
		return false
	}

	if h := ch.Holder(); h != nil && h != observer {
		m.met.FocusPreemptions.Add(context.Background(), 1,
			metric.WithAttributes(observe.Attr("channel", name)))
	}
	ch.SetObserver(observer)
	ch.SetActivityID(activityID)

	before := ch.State()
	m.rearbitrate()
	if ch.State() == before {
		// No transition fired for the new holder; deliver the grant
		// explicitly so every acquire produces a notification.
		m.enqueueNotification(observer, ch.State())
	}

	slog.Debug("focus: channel acquired",
		"channel", name, "activity", activityID, "state", ch.State().String())
	return true
}

// ReleaseChannel gives up the named channel. It returns false when the
// channel is unknown or observer is not the current holder. The released
// holder is notified StateNone and the next-highest held channel (if any)
// is promoted to foreground.
func (m *Manager) ReleaseChannel(name string, observer Observer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[name]
	if !ok {
		slog.Warn("focus: release on unknown channel", "channel", name)
		return false
	}
	if ch.Holder() != observer {
		slog.Warn("focus: release by non-holder", "channel", name)
		return false
	}

	ch.SetFocus(StateNone)
	ch.clearHolder()
	m.rearbitrate()

	slog.Debug("focus: channel released", "channel", name)
	return true
}

// StopForegroundActivity releases whatever channel currently owns the
// foreground, regardless of holder. Its observer is notified StateNone and
// the next-highest held channel is promoted. A no-op when nothing holds
// foreground.
func (m *Manager) StopForegroundActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fg := m.foreground()
	if fg == nil {
		return
	}
	activity := fg.ActivityID()
	fg.SetFocus(StateNone)
	fg.clearHolder()
	m.rearbitrate()

	slog.Debug("focus: foreground activity stopped", "channel", fg.Name(), "activity", activity)
}

// ForegroundActivityID returns the activity id on the channel currently in
// foreground, or "" when no channel is held.
func (m *Manager) ForegroundActivityID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fg := m.foreground(); fg != nil {
		return fg.ActivityID()
	}
	return ""
}

// Close stops the notification goroutine after all queued notifications
// have been delivered.
func (m *Manager) Close() {
	m.notifier.Close()
}

// enqueueNotification hands an observer callback to the notifier goroutine.
func (m *Manager) enqueueNotification(o Observer, s State) {
	m.notifier.Submit(func() { o.OnFocusChanged(s) })
}

// foreground returns the highest-priority held channel. Caller holds m.mu.
func (m *Manager) foreground() *Channel {
	for _, ch := range m.byPriority {
		if ch.Holder() != nil {
			return ch
		}
	}
	return nil
}

// rearbitrate recomputes every held channel's state: the best held channel
// gets foreground, the rest background. Transitions queue notifications.
// Caller holds m.mu.
func (m *Manager) rearbitrate() {
	fg := m.foreground()
	for _, ch := range m.byPriority {
		if ch.Holder() == nil {
			continue
		}
		if ch == fg {
			ch.SetFocus(StateForeground)
		} else {
			ch.SetFocus(StateBackground)
		}
	}
}
