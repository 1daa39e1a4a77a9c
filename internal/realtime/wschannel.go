package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSChannel carries the same typed event stream as the WebRTC bridge over a
// plain WebSocket. Capture audio is shipped as base64 append messages instead
// of an RTP track. It implements Conn.
type WSChannel struct {
	url            string
	capture        CaptureDevice
	connectTimeout time.Duration
	cb             Callbacks

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	source AudioSource
	stopCh chan struct{}

	openFired  bool
	closeFired bool
}

// WSChannelConfig wires a WSChannel.
type WSChannelConfig struct {
	// URL is the vendor realtime endpoint, including the model query.
	URL            string
	Capture        CaptureDevice
	ConnectTimeout time.Duration
	Callbacks      Callbacks
}

// NewWSChannel constructs an idle websocket event channel.
func NewWSChannel(cfg WSChannelConfig) *WSChannel {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &WSChannel{
		url:            cfg.URL,
		capture:        cfg.Capture,
		connectTimeout: timeout,
		cb:             cfg.Callbacks,
	}
}

// State reports the current connection phase.
func (c *WSChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the vendor endpoint authenticated by the ephemeral credential
// and starts the read and capture pumps.
func (c *WSChannel) Connect(ctx context.Context, credential string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.state = StateConnecting
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	var source AudioSource
	if c.capture != nil {
		var err error
		source, err = c.capture.Acquire()
		if err != nil {
			c.failConnect(err)
			return err
		}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+credential)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: c.connectTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(dialCtx, c.url, headers)
	if err != nil {
		if source != nil {
			_ = source.Close()
		}
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			err = ErrConnectionTimeout
		} else if resp != nil {
			err = fmt.Errorf("%w: dial status=%d: %v", ErrSignaling, resp.StatusCode, err)
		} else {
			err = fmt.Errorf("%w: %v", ErrSignaling, err)
		}
		c.failConnect(err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.source = source
	c.state = StateOpen
	fireOpen := !c.openFired
	c.openFired = true
	c.mu.Unlock()

	go c.readPump()
	if source != nil {
		go c.sendAudio(source)
	}
	if fireOpen && c.cb.OnOpen != nil {
		c.cb.OnOpen()
	}
	return nil
}

func (c *WSChannel) failConnect(err error) {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateFailed
	}
	c.mu.Unlock()
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

// Send marshals and writes one event. Dropped with ErrNotOpen when the channel
// is not open.
func (c *WSChannel) Send(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return ErrNotOpen
	}
	return conn.WriteJSON(v)
}

// UpdateSession ships a one-shot session.update configuration message.
func (c *WSChannel) UpdateSession(opts SessionOptions) error {
	return c.Send(sessionUpdateMessage{Type: "session.update", Session: opts})
}

// Close releases the capture source and the connection. Safe to call from any
// state and repeatedly; OnClose fires at most once.
func (c *WSChannel) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	conn, source := c.conn, c.source
	c.conn, c.source = nil, nil
	stopCh := c.stopCh
	c.stopCh = nil
	fireClose := wasOpen && !c.closeFired
	if fireClose {
		c.closeFired = true
	}
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if source != nil {
		_ = source.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if fireClose && c.cb.OnClose != nil {
		c.cb.OnClose()
	}
}

func (c *WSChannel) readPump() {
	for {
		c.mu.Lock()
		conn := c.conn
		stopCh := c.stopCh
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopCh:
				// local close already handled
			default:
				c.remoteClosed(err)
			}
			return
		}
		ev, derr := DecodeEvent(data)
		if derr != nil {
			log.Printf("realtime: dropping undecodable event: %v", derr)
			continue
		}
		if c.cb.OnEvent != nil {
			c.cb.OnEvent(ev)
		}
	}
}

// remoteClosed handles the remote peer ending the stream or a transport error.
func (c *WSChannel) remoteClosed(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
		c.Close()
		return
	}
	c.mu.Lock()
	if c.state == StateOpen {
		c.state = StateFailed
	}
	c.mu.Unlock()
	if c.cb.OnError != nil {
		c.cb.OnError(fmt.Errorf("%w: %v", ErrTransport, err))
	}
}

type audioAppendMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// sendAudio streams capture PCM as base64 append messages in 20ms chunks.
func (c *WSChannel) sendAudio(source AudioSource) {
	buf := make([]byte, 3840)
	for {
		n, err := source.Read(buf)
		if n > 0 {
			msg := audioAppendMessage{Type: "input_audio_buffer.append", Audio: base64.StdEncoding.EncodeToString(buf[:n])}
			if serr := c.Send(msg); serr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("realtime: capture read error: %v", err)
			}
			return
		}
	}
}
