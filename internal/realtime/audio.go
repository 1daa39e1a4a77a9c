package realtime

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// AudioSource delivers 48kHz mono PCM16LE capture data. Read blocks until
// data is available; io.EOF ends the capture stream.
type AudioSource interface {
	io.Reader
	Close() error
}

// CaptureDevice hands out the local audio capture source. The active bridge
// owns the source exclusively for the session's lifetime and must release it
// on every exit path.
type CaptureDevice interface {
	// Acquire opens the capture source. Denied access returns an error
	// wrapping ErrPermission.
	Acquire() (AudioSource, error)
}

type fileCapture struct {
	path string
}

// NewFileCapture returns a CaptureDevice backed by a raw PCM16LE 48kHz mono
// file, useful for headless clients and testing against the live vendor.
func NewFileCapture(path string) CaptureDevice { return fileCapture{path: path} }

func (f fileCapture) Acquire() (AudioSource, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return nil, fmt.Errorf("capture open %s: %w", f.path, err)
	}
	return file, nil
}

// OpusTrackWriter encodes 48kHz mono PCM to Opus frames and writes them paced
// at 20ms intervals to a WebRTC track.
type OpusTrackWriter struct {
	enc          *opus.Encoder
	track        *webrtc.TrackLocalStaticSample
	pcmBuf       []int16
	frameSamples int
	frames       chan []byte
	stopCh       chan struct{}
	stopped      bool
	mu           sync.Mutex
}

// NewOpusTrackWriter constructs a paced writer with 20ms frames at 48kHz mono.
func NewOpusTrackWriter(track *webrtc.TrackLocalStaticSample) (*OpusTrackWriter, error) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	w := &OpusTrackWriter{
		enc:          enc,
		track:        track,
		frameSamples: 960, // 20ms at 48kHz
		frames:       make(chan []byte, 512),
		stopCh:       make(chan struct{}),
	}
	go w.pacer()
	return w, nil
}

// WritePCM buffers PCM 48kHz mono bytes and emits encoded Opus frames paced
// to the track.
func (w *OpusTrackWriter) WritePCM(pcmBytes []byte) {
	if len(pcmBytes) < 2 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	need := len(pcmBytes) / 2
	startLen := len(w.pcmBuf)
	if cap(w.pcmBuf)-startLen < need {
		tmp := make([]int16, startLen, startLen+need+2048)
		copy(tmp, w.pcmBuf)
		w.pcmBuf = tmp
	}
	w.pcmBuf = w.pcmBuf[:startLen+need]
	for i := 0; i < need; i++ {
		w.pcmBuf[startLen+i] = int16(uint16(pcmBytes[2*i]) | uint16(pcmBytes[2*i+1])<<8)
	}

	opusBuf := make([]byte, 4000)
	for len(w.pcmBuf) >= w.frameSamples {
		frame := w.pcmBuf[:w.frameSamples]
		n, _ := w.enc.Encode(frame, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			w.pushFrame(pkt)
		}
		copy(w.pcmBuf, w.pcmBuf[w.frameSamples:])
		w.pcmBuf = w.pcmBuf[:len(w.pcmBuf)-w.frameSamples]
	}
}

// Close stops the pacer. Safe to call multiple times.
func (w *OpusTrackWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *OpusTrackWriter) pacer() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.track.WriteSample(media.Sample{Data: frame, Duration: 20 * time.Millisecond})
			default:
			}
		}
	}
}

func (w *OpusTrackWriter) pushFrame(pkt []byte) {
	for {
		select {
		case <-w.stopCh:
			return
		case w.frames <- pkt:
			return
		}
	}
}
