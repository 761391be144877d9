// Package transport carries protocol traffic over a single WebSocket
// connection. Outbound events travel as text frames holding the marshalled
// event envelope; a streaming attachment follows its event as binary frames
// and is terminated by an AttachmentEnd control frame. Inbound text frames
// are either directive envelopes, which are handed to the directive sink, or
// control frames such as DialogTurnFinished.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/04116/avs-device-sdk/pkg/avs"
	"github.com/coder/websocket"
)

const (
	// attachmentChunkBytes is the binary frame size for attachment audio:
	// 100 ms of 16 kHz 16-bit mono.
	attachmentChunkBytes = 3200

	typeAttachmentEnd      = "AttachmentEnd"
	typeDialogTurnFinished = "DialogTurnFinished"
)

// ErrClosed is returned by SendEvent after the client has been closed.
var ErrClosed = errors.New("transport: client is closed")

// control is the framing envelope for non-directive text frames, in both
// directions.
type control struct {
	Type            string `json:"type"`
	Name            string `json:"name,omitempty"`
	DialogRequestID string `json:"dialogRequestId,omitempty"`
}

// DirectiveSink consumes inbound traffic. *directive.Sequencer satisfies it.
type DirectiveSink interface {
	OnDirective(d *avs.Directive) error
	EndDialogTurn(dialogRequestID string)
}

// Config configures a transport [Client].
type Config struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	URL string

	// Token, when non-empty, is sent as a Bearer token in the handshake.
	Token string

	// Sink receives inbound directives and turn boundaries. May be nil for
	// send-only use.
	Sink DirectiveSink

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client is a WebSocket event sender. It implements [avs.EventSender].
type Client struct {
	conn *websocket.Conn
	sink DirectiveSink
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes frames on the connection; attachMu admits one
	// in-flight attachment at a time so binary frames stay unambiguous.
	writeMu  sync.Mutex
	attachMu sync.Mutex

	once sync.Once
	wg   sync.WaitGroup
}

var _ avs.EventSender = (*Client)(nil)

// Dial connects to the endpoint and starts the inbound read loop.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("transport: endpoint URL must not be empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	headers := http.Header{}
	if cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, _, err := websocket.Dial(ctx, cfg.URL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %q: %w", cfg.URL, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		sink:   cfg.Sink,
		log:    cfg.Logger,
		ctx:    runCtx,
		cancel: cancel,
	}

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// SendEvent transmits one event. When the request carries an attachment, the
// event frame is written before SendEvent returns and the attachment bytes
// stream on a background goroutine; the client owns and closes the attachment.
func (c *Client) SendEvent(ctx context.Context, req *avs.EventRequest) error {
	select {
	case <-c.ctx.Done():
		if req.Attachment != nil {
			req.Attachment.Close()
		}
		return ErrClosed
	default:
	}

	if req.Attachment == nil {
		return c.write(ctx, websocket.MessageText, req.Body)
	}

	c.attachMu.Lock()
	if err := c.write(ctx, websocket.MessageText, req.Body); err != nil {
		c.attachMu.Unlock()
		req.Attachment.Close()
		return err
	}

	c.wg.Add(1)
	go c.streamAttachment(req.AttachmentName, req.Attachment)
	return nil
}

// Close shuts the connection down and waits for in-flight goroutines.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "client closed")
		c.wg.Wait()
	})
	return nil
}

func (c *Client) write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, typ, data); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// streamAttachment copies attachment bytes to binary frames until the reader
// ends, then emits the AttachmentEnd control frame. A read error means the
// capture was aborted; the terminator is still sent so the server can drop
// the truncated attachment.
func (c *Client) streamAttachment(name string, r io.ReadCloser) {
	defer c.wg.Done()
	defer c.attachMu.Unlock()
	defer r.Close()

	buf := make([]byte, attachmentChunkBytes)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := c.write(c.ctx, websocket.MessageBinary, buf[:n]); werr != nil {
				c.log.Warn("attachment stream interrupted", "attachment", name, "err", werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("attachment source ended early", "attachment", name, "err", err)
			}
			break
		}
	}

	end, err := json.Marshal(control{Type: typeAttachmentEnd, Name: name})
	if err != nil {
		return
	}
	if werr := c.write(c.ctx, websocket.MessageText, end); werr != nil {
		c.log.Warn("attachment terminator not sent", "attachment", name, "err", werr)
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		typ, msg, err := c.conn.Read(c.ctx)
		if err != nil {
			// Normal close or context cancellation.
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch routes one inbound text frame to the sink.
func (c *Client) dispatch(msg []byte) {
	if c.sink == nil {
		return
	}

	var ctl control
	if err := json.Unmarshal(msg, &ctl); err == nil && ctl.Type != "" {
		if ctl.Type == typeDialogTurnFinished {
			c.sink.EndDialogTurn(ctl.DialogRequestID)
			return
		}
		c.log.Warn("unrecognised control frame", "type", ctl.Type)
		return
	}

	d, err := avs.ParseDirective(msg)
	if err != nil {
		c.log.Warn("undecodable inbound frame dropped", "err", err)
		return
	}
	if err := c.sink.OnDirective(d); err != nil {
		c.log.Warn("directive not handled", "directive", d.Key().String(), "err", err)
	}
}
