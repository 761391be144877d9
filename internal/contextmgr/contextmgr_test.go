package contextmgr_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/04116/avs-device-sdk/internal/contextmgr"
	"github.com/04116/avs-device-sdk/pkg/avs"
)

type requestRecorder struct {
	ctx  chan []byte
	fail chan error
}

func newRequestRecorder() *requestRecorder {
	return &requestRecorder{ctx: make(chan []byte, 1), fail: make(chan error, 1)}
}

func (r *requestRecorder) OnContextAvailable(contextJSON []byte) { r.ctx <- contextJSON }
func (r *requestRecorder) OnContextFailure(err error)            { r.fail <- err }

func (r *requestRecorder) await(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-r.ctx:
		return b
	case err := <-r.fail:
		t.Fatalf("unexpected context failure: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("context snapshot not delivered within timeout")
	}
	return nil
}

func newManager() *contextmgr.Manager {
	return contextmgr.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type snapshotState struct {
	Header struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	} `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

func decodeSnapshot(t *testing.T, b []byte) []snapshotState {
	t.Helper()
	var states []snapshotState
	if err := json.Unmarshal(b, &states); err != nil {
		t.Fatalf("snapshot is not a JSON array: %v\n%s", err, b)
	}
	return states
}

func TestGetContext_Empty(t *testing.T) {
	t.Parallel()
	m := newManager()

	r := newRequestRecorder()
	m.GetContext(r)

	states := decodeSnapshot(t, r.await(t))
	if len(states) != 0 {
		t.Errorf("expected empty snapshot, got %d states", len(states))
	}
}

func TestSetState_AppearsInSnapshot(t *testing.T) {
	t.Parallel()
	m := newManager()

	key := avs.NamespaceAndName{Namespace: "SpeechRecognizer", Name: "RecognizerState"}
	if err := m.SetState(key, []byte(`{"wakeWord":"ALEXA"}`), avs.RefreshNever, 0); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	r := newRequestRecorder()
	m.GetContext(r)

	states := decodeSnapshot(t, r.await(t))
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
	if states[0].Header.Namespace != "SpeechRecognizer" || states[0].Header.Name != "RecognizerState" {
		t.Errorf("header: got %+v", states[0].Header)
	}
	if string(states[0].Payload) != `{"wakeWord":"ALEXA"}` {
		t.Errorf("payload: got %s", states[0].Payload)
	}
}

func TestSetState_OrderIsDeterministic(t *testing.T) {
	t.Parallel()
	m := newManager()

	keys := []avs.NamespaceAndName{
		{Namespace: "Speaker", Name: "VolumeState"},
		{Namespace: "Alerts", Name: "AlertsState"},
		{Namespace: "SpeechRecognizer", Name: "RecognizerState"},
	}
	for _, k := range keys {
		if err := m.SetState(k, []byte(`{}`), avs.RefreshNever, 0); err != nil {
			t.Fatalf("SetState(%v): %v", k, err)
		}
	}

	r := newRequestRecorder()
	m.GetContext(r)

	states := decodeSnapshot(t, r.await(t))
	if len(states) != 3 {
		t.Fatalf("expected 3 states, got %d", len(states))
	}
	wantOrder := []string{"Alerts", "Speaker", "SpeechRecognizer"}
	for i, want := range wantOrder {
		if states[i].Header.Namespace != want {
			t.Errorf("states[%d].namespace: got %q, want %q", i, states[i].Header.Namespace, want)
		}
	}
}

func TestSetState_LatestWins(t *testing.T) {
	t.Parallel()
	m := newManager()

	key := avs.NamespaceAndName{Namespace: "SpeechRecognizer", Name: "RecognizerState"}
	if err := m.SetState(key, []byte(`{"wakeWord":"ALEXA"}`), avs.RefreshNever, 0); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := m.SetState(key, []byte(`{"wakeWord":"COMPUTER"}`), avs.RefreshNever, 0); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	r := newRequestRecorder()
	m.GetContext(r)

	states := decodeSnapshot(t, r.await(t))
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
	if string(states[0].Payload) != `{"wakeWord":"COMPUTER"}` {
		t.Errorf("payload: got %s", states[0].Payload)
	}
}

func TestSetState_EmptyPayloadRemoves(t *testing.T) {
	t.Parallel()
	m := newManager()

	key := avs.NamespaceAndName{Namespace: "Speaker", Name: "VolumeState"}
	if err := m.SetState(key, []byte(`{"volume":50}`), avs.RefreshNever, 0); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := m.SetState(key, nil, avs.RefreshNever, 0); err != nil {
		t.Fatalf("SetState remove: %v", err)
	}

	r := newRequestRecorder()
	m.GetContext(r)

	states := decodeSnapshot(t, r.await(t))
	if len(states) != 0 {
		t.Errorf("expected empty snapshot after removal, got %d states", len(states))
	}
}

func TestSetState_RejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	m := newManager()

	key := avs.NamespaceAndName{Namespace: "Speaker", Name: "VolumeState"}
	if err := m.SetState(key, []byte(`{not json`), avs.RefreshNever, 0); err == nil {
		t.Fatal("expected error for invalid JSON payload, got nil")
	}
}

func TestSetState_CopyIsDefensive(t *testing.T) {
	t.Parallel()
	m := newManager()

	payload := []byte(`{"volume":50}`)
	key := avs.NamespaceAndName{Namespace: "Speaker", Name: "VolumeState"}
	if err := m.SetState(key, payload, avs.RefreshNever, 0); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	payload[2] = 'X'

	r := newRequestRecorder()
	m.GetContext(r)

	states := decodeSnapshot(t, r.await(t))
	if string(states[0].Payload) != `{"volume":50}` {
		t.Errorf("snapshot should not see caller mutations, got %s", states[0].Payload)
	}
}
