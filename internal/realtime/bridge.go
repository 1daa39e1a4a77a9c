package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// State is the connection phase of a session bridge.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Signaler exchanges a local SDP offer for a remote answer, authenticated by
// a short-lived credential.
type Signaler interface {
	ExchangeSDP(ctx context.Context, offerSDP, ephemeralKey string) (string, error)
}

// Callbacks is the caller-supplied set invoked as the connection progresses.
// OnOpen fires exactly once, OnClose at most once. All callbacks run on
// transport goroutines; handlers must not block.
type Callbacks struct {
	OnOpen  func()
	OnEvent func(Event)
	OnError func(error)
	OnClose func()
}

// Conn is the narrow surface the application uses for one realtime session,
// independent of the underlying transport.
type Conn interface {
	Connect(ctx context.Context, credential string) error
	Send(v interface{}) error
	UpdateSession(opts SessionOptions) error
	Close()
	State() State
}

// DefaultConnectTimeout bounds connection establishment.
const DefaultConnectTimeout = 10 * time.Second

// BridgeConfig wires a Bridge's collaborators.
type BridgeConfig struct {
	Signaler       Signaler
	Capture        CaptureDevice
	ICEServersJSON string
	ConnectTimeout time.Duration
	Callbacks      Callbacks
}

// Bridge owns one peer connection and one ordered, reliable event channel to
// the realtime voice vendor. One bridge serves exactly one conversation; the
// caller must not start a second Connect before closing the first.
type Bridge struct {
	signaler       Signaler
	capture        CaptureDevice
	iceServersJSON string
	connectTimeout time.Duration
	cb             Callbacks

	mu            sync.Mutex
	state         State
	pc            *webrtc.PeerConnection
	dc            *webrtc.DataChannel
	source        AudioSource
	writer        *OpusTrackWriter
	cancelConnect context.CancelFunc
	openCh        chan struct{}
	failCh        chan error
	openFired     bool
	closeFired    bool
}

// NewBridge constructs an idle bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Bridge{
		signaler:       cfg.Signaler,
		capture:        cfg.Capture,
		iceServersJSON: cfg.ICEServersJSON,
		connectTimeout: timeout,
		cb:             cfg.Callbacks,
	}
}

// State reports the current connection phase.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connect acquires the capture device, establishes the peer connection and the
// event channel, and blocks until the channel is open, the timeout bound is
// exceeded, or the exchange fails. A Close during Connect aborts the in-flight
// signaling exchange.
func (b *Bridge) Connect(ctx context.Context, credential string) error {
	b.mu.Lock()
	if b.state != StateIdle {
		b.mu.Unlock()
		return ErrConnectInProgress
	}
	b.state = StateConnecting
	ctx, cancel := context.WithTimeout(ctx, b.connectTimeout)
	b.cancelConnect = cancel
	b.openCh = make(chan struct{})
	b.failCh = make(chan error, 1)
	openCh, failCh := b.openCh, b.failCh
	b.mu.Unlock()
	defer cancel()

	// Capture is optional; without it the session is output-only.
	if b.capture != nil {
		source, err := b.capture.Acquire()
		if err != nil {
			b.fail(err)
			return err
		}
		b.mu.Lock()
		b.source = source
		b.mu.Unlock()
	}

	if err := b.establish(ctx, credential); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrConnectionTimeout
		}
		b.releaseMedia()
		b.fail(err)
		return err
	}

	select {
	case <-openCh:
		return nil
	case err := <-failCh:
		b.releaseMedia()
		return err
	case <-ctx.Done():
		b.releaseMedia()
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrConnectionTimeout
		} else {
			err = fmt.Errorf("realtime: connect aborted: %w", err)
		}
		b.fail(err)
		return err
	}
}

// establish builds the peer connection and performs the offer/answer exchange.
func (b *Bridge) establish(ctx context.Context, credential string) error {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: parseICEServers(b.iceServersJSON)})
	if err != nil {
		return err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"mic-audio", "curiosity",
	)
	if err != nil {
		_ = pc.Close()
		return err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return err
	}
	// Receive the agent's audio; delivery to an output device is the host
	// application's concern, the bridge only keeps the track drained.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
		_ = pc.Close()
		return err
	}
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("realtime: remote audio track: codec=%s", remote.Codec().MimeType)
		go func() {
			for {
				if _, _, err := remote.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})

	writer, err := NewOpusTrackWriter(outTrack)
	if err != nil {
		_ = pc.Close()
		return err
	}

	ordered := true
	proto := "json"
	dc, err := pc.CreateDataChannel("oai-events", &webrtc.DataChannelInit{Ordered: &ordered, Protocol: &proto})
	if err != nil {
		writer.Close()
		_ = pc.Close()
		return err
	}

	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		writer.Close()
		_ = dc.Close()
		_ = pc.Close()
		return fmt.Errorf("realtime: closed during connect: %w", context.Canceled)
	}
	b.pc = pc
	b.dc = dc
	b.writer = writer
	b.mu.Unlock()

	dc.OnOpen(func() { b.handleChannelOpen() })
	dc.OnClose(func() { b.handleChannelClose() })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ev, err := DecodeEvent(msg.Data)
		if err != nil {
			log.Printf("realtime: dropping undecodable event: %v", err)
			return
		}
		if b.cb.OnEvent != nil {
			b.cb.OnEvent(ev)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("realtime: peer connection state: %s", state.String())
		if state == webrtc.PeerConnectionStateFailed {
			b.fail(fmt.Errorf("%w: peer connection failed", ErrTransport))
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}
	local := pc.LocalDescription()
	if local == nil {
		return errors.New("realtime: no local description")
	}

	answerSDP, err := b.signaler.ExchangeSDP(ctx, local.SDP, credential)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}); err != nil {
		return fmt.Errorf("%w: set answer: %v", ErrSignaling, err)
	}
	return nil
}

func (b *Bridge) handleChannelOpen() {
	b.mu.Lock()
	if b.state != StateConnecting {
		b.mu.Unlock()
		return
	}
	b.state = StateOpen
	fireOpen := !b.openFired
	b.openFired = true
	openCh := b.openCh
	source, writer := b.source, b.writer
	b.mu.Unlock()

	if openCh != nil {
		close(openCh)
	}
	if source != nil && writer != nil {
		go pumpCapture(source, writer)
	}
	if fireOpen && b.cb.OnOpen != nil {
		b.cb.OnOpen()
	}
}

// handleChannelClose handles the remote side closing the event channel.
func (b *Bridge) handleChannelClose() {
	b.mu.Lock()
	if b.state != StateOpen {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.Close()
}

// fail transitions to the terminal failed state and surfaces the error. The
// bridge does not self-close on failure; the caller tears down via Close.
func (b *Bridge) fail(err error) {
	b.mu.Lock()
	if b.state != StateConnecting && b.state != StateOpen {
		b.mu.Unlock()
		return
	}
	b.state = StateFailed
	failCh := b.failCh
	b.mu.Unlock()

	if failCh != nil {
		select {
		case failCh <- err:
		default:
		}
	}
	if b.cb.OnError != nil {
		b.cb.OnError(err)
	}
}

// Send marshals and ships one event over the data channel. If the channel is
// not open the message is dropped and ErrNotOpen returned; there is no
// queueing and no retry.
func (b *Bridge) Send(v interface{}) error {
	b.mu.Lock()
	dc := b.dc
	open := b.state == StateOpen
	b.mu.Unlock()
	if !open || dc == nil {
		return ErrNotOpen
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal event: %w", err)
	}
	return dc.SendText(string(data))
}

// UpdateSession ships a one-shot session.update configuration message.
func (b *Bridge) UpdateSession(opts SessionOptions) error {
	return b.Send(sessionUpdateMessage{Type: "session.update", Session: opts})
}

// Close releases the capture device, the event channel, and the peer
// connection. It is safe to call from any state and safe to call repeatedly;
// OnClose is invoked at most once, and only when an open session ends.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	wasOpen := b.state == StateOpen
	b.state = StateClosed
	cancel := b.cancelConnect
	dc, pc := b.dc, b.pc
	b.dc, b.pc = nil, nil
	fireClose := wasOpen && !b.closeFired
	if fireClose {
		b.closeFired = true
	}
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.releaseMedia()
	if dc != nil {
		_ = dc.Close()
	}
	if pc != nil {
		_ = pc.Close()
	}
	if fireClose && b.cb.OnClose != nil {
		b.cb.OnClose()
	}
}

// releaseMedia drops the capture source and the paced writer. It runs on
// every exit path, success or failure, so no device handle outlives the
// session attempt.
func (b *Bridge) releaseMedia() {
	b.mu.Lock()
	source, writer := b.source, b.writer
	b.source, b.writer = nil, nil
	b.mu.Unlock()
	if writer != nil {
		writer.Close()
	}
	if source != nil {
		_ = source.Close()
	}
}

// pumpCapture streams capture PCM into the paced track writer in 20ms chunks.
func pumpCapture(source AudioSource, writer *OpusTrackWriter) {
	buf := make([]byte, 3840) // 20ms of 48kHz mono PCM16
	for {
		n, err := source.Read(buf)
		if n > 0 {
			writer.WritePCM(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("realtime: capture read error: %v", err)
			}
			return
		}
	}
}

func parseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}
