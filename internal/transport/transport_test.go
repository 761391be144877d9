package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/04116/avs-device-sdk/internal/transport"
	"github.com/04116/avs-device-sdk/pkg/avs"
	"github.com/coder/websocket"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a test WebSocket server. The handler receives the
// accepted conn. The server is automatically closed when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// readFrame reads one WebSocket frame with a timeout.
func readFrame(t *testing.T, conn *websocket.Conn) (websocket.MessageType, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	return typ, data
}

// writeText sends one text frame with a timeout.
func writeText(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(data)); err != nil {
		t.Logf("writeText: %v (may be expected on close)", err)
	}
}

// sinkRecorder records inbound dispatches on channels.
type sinkRecorder struct {
	directives chan *avs.Directive
	turns      chan string
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{
		directives: make(chan *avs.Directive, 16),
		turns:      make(chan string, 16),
	}
}

func (s *sinkRecorder) OnDirective(d *avs.Directive) error {
	s.directives <- d
	return nil
}

func (s *sinkRecorder) EndDialogTurn(id string) {
	s.turns <- id
}

// ── Dial tests ────────────────────────────────────────────────────────────────

func TestDial_EmptyURL(t *testing.T) {
	t.Parallel()
	_, err := transport.Dial(context.Background(), transport.Config{})
	if err == nil {
		t.Fatal("expected error for empty URL, got nil")
	}
}

func TestDial_AuthorizationHeader(t *testing.T) {
	t.Parallel()
	gotAuth := make(chan string, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
	})

	c, err := transport.Dial(context.Background(), transport.Config{
		URL:    wsURL(srv),
		Token:  "devtoken",
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	select {
	case auth := <-gotAuth:
		if auth != "Bearer devtoken" {
			t.Errorf("Authorization: got %q, want %q", auth, "Bearer devtoken")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the handshake")
	}
}

// ── SendEvent tests ───────────────────────────────────────────────────────────

func TestSendEvent_EventOnly(t *testing.T) {
	t.Parallel()
	frames := make(chan []byte, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		frames <- data
	})

	c, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv), Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	body := []byte(`{"context":[],"event":{"header":{"namespace":"SpeechRecognizer","name":"ExpectSpeechTimedOut"},"payload":{}}}`)
	if err := c.SendEvent(context.Background(), &avs.EventRequest{Body: body}); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	select {
	case got := <-frames:
		if !bytes.Equal(got, body) {
			t.Errorf("event frame: got %s, want %s", got, body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the event frame")
	}
}

func TestSendEvent_AttachmentFraming(t *testing.T) {
	t.Parallel()

	type result struct {
		event      []byte
		attachment []byte
		terminator []byte
	}
	results := make(chan result, 1)

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var res result
		// First frame is the event envelope.
		typ, data, err := conn.Read(ctx)
		if err != nil || typ != websocket.MessageText {
			return
		}
		res.event = data

		// Binary frames accumulate until the AttachmentEnd control frame.
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				res.attachment = append(res.attachment, data...)
				continue
			}
			res.terminator = data
			break
		}
		results <- res
	})

	c, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv), Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	audio := make([]byte, 9000)
	for i := range audio {
		audio[i] = byte(i % 251)
	}
	body := []byte(`{"context":[],"event":{"header":{"namespace":"SpeechRecognizer","name":"Recognize"},"payload":{}}}`)

	err = c.SendEvent(context.Background(), &avs.EventRequest{
		Body:           body,
		AttachmentName: "audio",
		Attachment:     io.NopCloser(bytes.NewReader(audio)),
	})
	if err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	select {
	case res := <-results:
		if !bytes.Equal(res.event, body) {
			t.Errorf("event frame: got %s", res.event)
		}
		if !bytes.Equal(res.attachment, audio) {
			t.Errorf("attachment: got %d bytes, want %d matching bytes", len(res.attachment), len(audio))
		}
		var ctl struct {
			Type string `json:"type"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(res.terminator, &ctl); err != nil {
			t.Fatalf("terminator frame is not JSON: %v", err)
		}
		if ctl.Type != "AttachmentEnd" || ctl.Name != "audio" {
			t.Errorf("terminator: got %+v", ctl)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("server never received the full attachment")
	}
}

func TestSendEvent_AfterClose(t *testing.T) {
	t.Parallel()
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		<-r.Context().Done()
	})

	c, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv), Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	c.Close()

	closed := false
	attachment := closeRecorder{closed: &closed}
	err = c.SendEvent(context.Background(), &avs.EventRequest{
		Body:           []byte(`{}`),
		AttachmentName: "audio",
		Attachment:     attachment,
	})
	if err == nil {
		t.Fatal("expected error after Close, got nil")
	}
	if !closed {
		t.Error("attachment should be closed when the send is rejected")
	}
}

type closeRecorder struct{ closed *bool }

func (c closeRecorder) Read(p []byte) (int, error) { return 0, io.EOF }
func (c closeRecorder) Close() error               { *c.closed = true; return nil }

// ── Inbound dispatch tests ────────────────────────────────────────────────────

func TestReadLoop_DirectiveDispatch(t *testing.T) {
	t.Parallel()
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeText(t, conn, `{"directive":{"header":{"namespace":"SpeechRecognizer","name":"StopCapture","messageId":"m-1","dialogRequestId":"d-1"},"payload":{}}}`)
		<-r.Context().Done()
	})

	sink := newSinkRecorder()
	c, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv), Sink: sink, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	select {
	case d := <-sink.directives:
		want := avs.NamespaceAndName{Namespace: "SpeechRecognizer", Name: "StopCapture"}
		if d.Key() != want {
			t.Errorf("directive key: got %v, want %v", d.Key(), want)
		}
		if d.Header.DialogRequestID != "d-1" {
			t.Errorf("dialogRequestId: got %q, want %q", d.Header.DialogRequestID, "d-1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the directive")
	}
}

func TestReadLoop_DialogTurnFinished(t *testing.T) {
	t.Parallel()
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeText(t, conn, `{"type":"DialogTurnFinished","dialogRequestId":"d-9"}`)
		<-r.Context().Done()
	})

	sink := newSinkRecorder()
	c, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv), Sink: sink, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	select {
	case id := <-sink.turns:
		if id != "d-9" {
			t.Errorf("turn id: got %q, want %q", id, "d-9")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the turn boundary")
	}
}

func TestReadLoop_UndecodableFrameDropped(t *testing.T) {
	t.Parallel()
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		writeText(t, conn, `{not json`)
		writeText(t, conn, `{"directive":{"header":{"namespace":"SpeechRecognizer","name":"ExpectSpeech","messageId":"m-2"},"payload":{"timeoutInMilliseconds":5000}}}`)
		<-r.Context().Done()
	})

	sink := newSinkRecorder()
	c, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv), Sink: sink, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	// The garbage frame is dropped; the next valid directive still arrives.
	select {
	case d := <-sink.directives:
		if d.Header.Name != "ExpectSpeech" {
			t.Errorf("directive name: got %q, want %q", d.Header.Name, "ExpectSpeech")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid directive after garbage frame was not dispatched")
	}
}
