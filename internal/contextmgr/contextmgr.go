// Package contextmgr aggregates component states into the context snapshot
// that accompanies outbound events. Components publish their state with
// SetState; event producers call GetContext and receive the snapshot JSON
// asynchronously.
package contextmgr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/04116/avs-device-sdk/pkg/avs"
)

type entry struct {
	payload json.RawMessage
	policy  avs.StateRefreshPolicy
}

// stateJSON is the wire shape of one snapshot element.
type stateJSON struct {
	Header struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	} `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

// Manager is an in-process [avs.ContextManager]. It is safe for concurrent
// use. Snapshot delivery happens on a fresh goroutine per request, so
// requesters never block a publisher.
type Manager struct {
	log *slog.Logger

	mu     sync.Mutex
	states map[avs.NamespaceAndName]entry
}

var _ avs.ContextManager = (*Manager)(nil)

// New creates an empty context manager. logger may be nil.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		log:    logger,
		states: make(map[avs.NamespaceAndName]entry),
	}
}

// SetState publishes the state for key. payload must be a valid JSON value;
// an empty payload removes the state from future snapshots.
func (m *Manager) SetState(key avs.NamespaceAndName, payload []byte, policy avs.StateRefreshPolicy, token uint64) error {
	if len(payload) > 0 && !json.Valid(payload) {
		return fmt.Errorf("contextmgr: state %s payload is not valid JSON", key)
	}

	m.mu.Lock()
	if len(payload) == 0 {
		delete(m.states, key)
	} else {
		m.states[key] = entry{payload: append([]byte(nil), payload...), policy: policy}
	}
	m.mu.Unlock()

	m.log.Debug("context state updated", "state", key.String(), "removed", len(payload) == 0, "token", token)
	return nil
}

// GetContext requests a snapshot of all published states. The result is
// delivered through r on a separate goroutine.
func (m *Manager) GetContext(r avs.ContextRequester) {
	m.mu.Lock()
	keys := make([]avs.NamespaceAndName, 0, len(m.states))
	for k := range m.states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	snapshot := make([]stateJSON, len(keys))
	for i, k := range keys {
		snapshot[i].Header.Namespace = k.Namespace
		snapshot[i].Header.Name = k.Name
		snapshot[i].Payload = m.states[k].payload
	}
	m.mu.Unlock()

	go func() {
		b, err := json.Marshal(snapshot)
		if err != nil {
			r.OnContextFailure(fmt.Errorf("contextmgr: marshal snapshot: %w", err))
			return
		}
		r.OnContextAvailable(b)
	}()
}
