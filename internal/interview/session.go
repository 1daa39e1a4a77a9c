package interview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lantelyes/curiosity-engine/internal/earnings"
	"github.com/lantelyes/curiosity-engine/internal/realtime"
	"github.com/lantelyes/curiosity-engine/internal/topics"
	"github.com/lantelyes/curiosity-engine/internal/transcript"
)

// CredentialIssuer mints a short-lived token for one realtime session.
type CredentialIssuer interface {
	IssueCredential(ctx context.Context) (string, error)
}

// ConnFactory builds the realtime connection for a session. Injected so
// tests can substitute a fake transport.
type ConnFactory func(cb realtime.Callbacks) realtime.Conn

// Hooks are optional UI notifications. All fire on the connection's event
// goroutine.
type Hooks struct {
	OnOpen    func()
	OnEntry   func(transcript.Entry)
	OnPreview func(preview string)
	OnTick    func(amount float64)
	OnError   func(error)
	OnClose   func()
}

// Config wires one interview session.
type Config struct {
	UserID  string
	Topic   topics.Topic
	Issuer  CredentialIssuer
	NewConn ConnFactory
	Ledger  earnings.Ledger
	Hooks   Hooks
}

// Session runs one paid voice conversation: it connects the realtime
// transport, assembles the transcript from streamed events, accrues
// earnings while connected, and records the payout to the ledger when the
// conversation ends.
type Session struct {
	cfg       Config
	conn      realtime.Conn
	assembler *transcript.Assembler
	tracker   *earnings.Tracker

	mu       sync.Mutex
	started  bool
	recorded bool
}

// NewSession validates the configuration and builds the session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.UserID == "" {
		return nil, errors.New("interview: user ID is required")
	}
	if cfg.Topic.ID == "" {
		return nil, errors.New("interview: topic is required")
	}
	if cfg.Issuer == nil || cfg.NewConn == nil || cfg.Ledger == nil {
		return nil, errors.New("interview: issuer, conn factory and ledger are required")
	}

	s := &Session{cfg: cfg}
	s.assembler = transcript.New(
		transcript.WithEntryFunc(func(e transcript.Entry) {
			if cfg.Hooks.OnEntry != nil {
				cfg.Hooks.OnEntry(e)
			}
		}),
		transcript.WithPreviewFunc(func(p string) {
			if cfg.Hooks.OnPreview != nil {
				cfg.Hooks.OnPreview(p)
			}
		}),
		transcript.WithRemoteErrorFunc(func(msg string) {
			log.Printf("[%s] remote error: %s", cfg.UserID, msg)
			if cfg.Hooks.OnError != nil {
				cfg.Hooks.OnError(fmt.Errorf("interview: remote: %s", msg))
			}
		}),
	)

	trackerOpts := []earnings.TrackerOption{}
	if cfg.Hooks.OnTick != nil {
		trackerOpts = append(trackerOpts, earnings.WithTickFunc(cfg.Hooks.OnTick))
	}
	s.tracker = earnings.NewTracker(cfg.Topic.RatePerMinute, float64(cfg.Topic.EstimatedMinutes), trackerOpts...)

	s.conn = cfg.NewConn(realtime.Callbacks{
		OnOpen:  s.handleOpen,
		OnEvent: s.handleEvent,
		OnError: s.handleError,
		OnClose: s.handleClose,
	})
	return s, nil
}

// Start issues a credential and connects. The accrual clock starts only
// once the channel opens, not when signaling begins.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("interview: session already started")
	}
	s.started = true
	s.mu.Unlock()

	credential, err := s.cfg.Issuer.IssueCredential(ctx)
	if err != nil {
		return fmt.Errorf("interview: issue credential: %w", err)
	}
	if err := s.conn.Connect(ctx, credential); err != nil {
		return fmt.Errorf("interview: connect: %w", err)
	}
	return nil
}

func (s *Session) handleOpen() {
	s.tracker.Start()

	opts := realtime.SessionOptions{
		Instructions:            s.cfg.Topic.Instructions(),
		Voice:                   "verse",
		InputAudioTranscription: &realtime.TranscriptionOptions{Model: "whisper-1"},
		TurnDetection:           &realtime.TurnDetection{Type: "server_vad", SilenceDurationMs: 500},
	}
	if err := s.conn.UpdateSession(opts); err != nil {
		log.Printf("[%s] session update failed: %v", s.cfg.UserID, err)
	}

	if s.cfg.Hooks.OnOpen != nil {
		s.cfg.Hooks.OnOpen()
	}
}

func (s *Session) handleEvent(ev realtime.Event) {
	s.assembler.Apply(ev)
}

func (s *Session) handleError(err error) {
	log.Printf("[%s] session error: %v", s.cfg.UserID, err)
	if s.cfg.Hooks.OnError != nil {
		s.cfg.Hooks.OnError(err)
	}
}

// handleClose runs when an open connection ends for any reason. Accrued
// earnings up to that moment are still recorded.
func (s *Session) handleClose() {
	s.finalize(context.Background())
	if s.cfg.Hooks.OnClose != nil {
		s.cfg.Hooks.OnClose()
	}
}

// End stops the conversation and records the payout. Safe to call more
// than once; only the first call records.
func (s *Session) End(ctx context.Context) (earnings.Entry, error) {
	s.conn.Close()
	entry, err := s.finalize(ctx)
	return entry, err
}

func (s *Session) finalize(ctx context.Context) (earnings.Entry, error) {
	amount, seconds := s.tracker.End()

	s.mu.Lock()
	if s.recorded {
		s.mu.Unlock()
		return s.entry(amount, seconds), nil
	}
	s.recorded = true
	s.mu.Unlock()

	entry := s.entry(amount, seconds)
	if amount <= 0 {
		return entry, nil
	}
	if err := s.cfg.Ledger.Record(ctx, entry); err != nil {
		return entry, fmt.Errorf("interview: record earnings: %w", err)
	}
	log.Printf("[%s] recorded $%.2f for %s (%ds)", s.cfg.UserID, amount, s.cfg.Topic.ID, seconds)
	return entry, nil
}

func (s *Session) entry(amount float64, seconds int) earnings.Entry {
	return earnings.Entry{
		UserID:          s.cfg.UserID,
		TopicID:         s.cfg.Topic.ID,
		TopicName:       s.cfg.Topic.Name,
		Amount:          amount,
		DurationSeconds: seconds,
	}
}

// Transcript returns the finalized conversation entries so far.
func (s *Session) Transcript() []transcript.Entry {
	return s.assembler.Entries()
}

// Amount reports earnings accrued so far.
func (s *Session) Amount() float64 {
	return s.tracker.Amount()
}

// Progress reports accrual progress toward the topic's projected value,
// clamped to 1.
func (s *Session) Progress() float64 {
	return s.tracker.Progress()
}
