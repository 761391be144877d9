package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/04116/avs-device-sdk/internal/config"
	"github.com/04116/avs-device-sdk/internal/recognizer"
	"github.com/04116/avs-device-sdk/pkg/avs"
	avsmock "github.com/04116/avs-device-sdk/pkg/avs/mock"
)

const waitTimeout = 2 * time.Second

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Focus: config.FocusConfig{Channels: []config.ChannelEntry{
			{Name: "Dialog", Priority: 10},
			{Name: "Content", Priority: 30},
		}},
		Recognizer: config.RecognizerConfig{
			Channel:  "Dialog",
			Profile:  config.ProfileNearField,
			Wakeword: "ALEXA",
		},
		Capture: config.CaptureConfig{
			StreamCapacitySamples: 65536,
			AlwaysReadable:        true,
			CanOverride:           true,
			CanBeOverridden:       true,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	opts = append(opts, WithLogger(testLogger()))
	a, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNew_RequiresConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config, got nil")
	}
}

func TestNew_RejectsBadChannels(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Focus.Channels = nil
	if _, err := New(context.Background(), cfg, WithLogger(testLogger())); err == nil {
		t.Fatal("expected error for empty channel list, got nil")
	}
}

func TestApp_TapLifecycle(t *testing.T) {
	t.Parallel()
	sender := &avsmock.EventSender{}
	a := newTestApp(t, testConfig(), WithEventSender(sender))

	result := a.Processor().Recognize(recognizer.Trigger{
		Provider:     a.Microphone(),
		Initiator:    recognizer.InitiatorTap,
		KeywordBegin: recognizer.InvalidIndex,
		KeywordEnd:   recognizer.InvalidIndex,
	})
	select {
	case ok := <-result:
		if !ok {
			t.Fatal("tap trigger was rejected")
		}
	case <-time.After(waitTimeout):
		t.Fatal("recognize result not resolved within timeout")
	}

	// Device audio input writes into the shared buffer after capture starts.
	data := make([]byte, 6400)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if _, err := a.CaptureWriter().Write(data); err != nil {
		t.Fatalf("capture write: %v", err)
	}

	if sender.CallCount() != 1 {
		t.Fatalf("expected 1 event, got %d", sender.CallCount())
	}
	ev := sender.Events()[0]

	var envelope struct {
		Event struct {
			Header struct {
				Namespace string `json:"namespace"`
				Name      string `json:"name"`
			} `json:"header"`
			Payload struct {
				Profile string `json:"profile"`
				Format  string `json:"format"`
			} `json:"payload"`
		} `json:"event"`
	}
	if err := json.Unmarshal(ev.Body, &envelope); err != nil {
		t.Fatalf("event body is not JSON: %v", err)
	}
	if envelope.Event.Header.Namespace != "SpeechRecognizer" || envelope.Event.Header.Name != "Recognize" {
		t.Errorf("event header: got %+v", envelope.Event.Header)
	}
	if envelope.Event.Payload.Profile != "NEAR_FIELD" {
		t.Errorf("profile: got %q, want NEAR_FIELD", envelope.Event.Payload.Profile)
	}

	// End the capture; the attachment drains everything written so far.
	if err := a.CaptureWriter().Close(); err != nil {
		t.Fatalf("capture close: %v", err)
	}
	attachment, ok := ev.WaitAttachment(waitTimeout)
	if !ok {
		t.Fatal("attachment not drained within timeout")
	}
	if !bytes.Equal(attachment, data) {
		t.Errorf("attachment: got %d bytes, want %d matching bytes", len(attachment), len(data))
	}
}

func TestApp_OnConfigChange(t *testing.T) {
	t.Parallel()
	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)
	a := newTestApp(t, testConfig(), WithEventSender(&avsmock.EventSender{}), WithLevelVar(level))

	old := testConfig()
	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Recognizer.Wakeword = "COMPUTER"

	a.OnConfigChange(old, updated)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level: got %v, want %v", level.Level(), slog.LevelDebug)
	}

	// The new wakeword reaches the published recognizer state.
	deadline := time.Now().Add(waitTimeout)
	for {
		r := newRequestRecorder()
		a.contextMgr.GetContext(r)
		snapshot := r.await(t)
		if bytes.Contains(snapshot, []byte("COMPUTER")) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("wakeword state not republished, last snapshot: %s", snapshot)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

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
	case <-time.After(waitTimeout):
		t.Fatal("context snapshot not delivered")
	}
	return nil
}

func TestApp_RunServesDiagnostics(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	cfg.Server.ServiceName = "avsclient-test"
	a := newTestApp(t, cfg, WithEventSender(&avsmock.EventSender{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	// Wait for the listener to bind.
	var addr string
	deadline := time.Now().Add(waitTimeout)
	for addr == "" {
		addr = a.MetricsAddr()
		if time.Now().After(deadline) {
			t.Fatal("metrics listener never bound")
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestApp_ShutdownIdempotent(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig(), WithEventSender(&avsmock.EventSender{}))

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestExceptionSender_SendsSystemEvent(t *testing.T) {
	t.Parallel()
	sender := &avsmock.EventSender{}
	e := &exceptionSender{log: testLogger()}
	e.bind(sender)

	e.SendExceptionEncountered(`{"directive":{}}`, "UNSUPPORTED_OPERATION", "no handler registered")

	if sender.CallCount() != 1 {
		t.Fatalf("expected 1 event, got %d", sender.CallCount())
	}
	body := sender.Events()[0].Body
	if !bytes.Contains(body, []byte(`"namespace":"System"`)) || !bytes.Contains(body, []byte(`"name":"ExceptionEncountered"`)) {
		t.Errorf("unexpected event body: %s", body)
	}
	if !bytes.Contains(body, []byte(`"UNSUPPORTED_OPERATION"`)) {
		t.Errorf("payload missing exception type: %s", body)
	}
}

func TestExceptionSender_UnboundDropsQuietly(t *testing.T) {
	t.Parallel()
	e := &exceptionSender{log: testLogger()}
	// Must not panic before a sender is bound.
	e.SendExceptionEncountered("{}", "INTERNAL_ERROR", "boom")
}

func TestDiscardSender_DrainsAttachment(t *testing.T) {
	t.Parallel()
	d := discardSender{log: testLogger()}

	pr, pw := io.Pipe()
	req := &avs.EventRequest{Body: []byte(`{}`), AttachmentName: "audio", Attachment: pr}
	if err := d.SendEvent(context.Background(), req); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	// The sender must drain the pipe so the writer does not stall.
	done := make(chan error, 1)
	go func() {
		_, err := pw.Write(make([]byte, 1<<16))
		pw.Close()
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("writer stalled or failed: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("discard sender did not drain the attachment")
	}
}
