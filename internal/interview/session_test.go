package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lantelyes/curiosity-engine/internal/earnings"
	"github.com/lantelyes/curiosity-engine/internal/realtime"
	"github.com/lantelyes/curiosity-engine/internal/topics"
)

type fakeIssuer struct {
	credential string
	err        error
	calls      int
}

func (f *fakeIssuer) IssueCredential(_ context.Context) (string, error) {
	f.calls++
	return f.credential, f.err
}

// fakeConn drives the session callbacks directly, standing in for the
// realtime transport.
type fakeConn struct {
	cb         realtime.Callbacks
	credential string
	updates    []realtime.SessionOptions
	state      realtime.State
	connectErr error
}

func (f *fakeConn) Connect(_ context.Context, credential string) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.credential = credential
	f.state = realtime.StateOpen
	f.cb.OnOpen()
	return nil
}

func (f *fakeConn) Send(interface{}) error { return nil }

func (f *fakeConn) UpdateSession(opts realtime.SessionOptions) error {
	f.updates = append(f.updates, opts)
	return nil
}

func (f *fakeConn) Close() {
	if f.state == realtime.StateOpen {
		f.state = realtime.StateClosed
		if f.cb.OnClose != nil {
			f.cb.OnClose()
		}
	}
}

func (f *fakeConn) State() realtime.State { return f.state }

type memLedger struct {
	mu      sync.Mutex
	entries []earnings.Entry
	err     error
}

func (l *memLedger) Record(_ context.Context, e earnings.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) Stats(context.Context, string) (earnings.Stats, error) {
	return earnings.Stats{}, nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func newTestSession(t *testing.T) (*Session, *fakeConn, *memLedger) {
	t.Helper()
	topic, ok := topics.ByID("travel")
	if !ok {
		t.Fatal("travel topic missing from catalog")
	}

	conn := &fakeConn{}
	ledger := &memLedger{}
	s, err := NewSession(Config{
		UserID: "u1",
		Topic:  topic,
		Issuer: &fakeIssuer{credential: "ek_test"},
		NewConn: func(cb realtime.Callbacks) realtime.Conn {
			conn.cb = cb
			return conn
		},
		Ledger: ledger,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s, conn, ledger
}

func TestStart_ConnectsAndConfiguresSession(t *testing.T) {
	s, conn, _ := newTestSession(t)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if conn.credential != "ek_test" {
		t.Errorf("credential = %q, want ek_test", conn.credential)
	}
	if len(conn.updates) != 1 {
		t.Fatalf("expected 1 session update, got %d", len(conn.updates))
	}

	opts := conn.updates[0]
	if opts.Instructions == "" {
		t.Error("expected topic instructions in session update")
	}
	if opts.TurnDetection == nil || opts.TurnDetection.Type != "server_vad" {
		t.Errorf("turn detection = %+v, want server_vad", opts.TurnDetection)
	}
	if opts.InputAudioTranscription == nil || opts.InputAudioTranscription.Model != "whisper-1" {
		t.Errorf("transcription = %+v, want whisper-1", opts.InputAudioTranscription)
	}
}

func TestStart_Twice(t *testing.T) {
	s, _, _ := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error on second start")
	}
}

func TestStart_CredentialFailure(t *testing.T) {
	topic, _ := topics.ByID("travel")
	conn := &fakeConn{}
	s, err := NewSession(Config{
		UserID: "u1",
		Topic:  topic,
		Issuer: &fakeIssuer{err: errors.New("vendor down")},
		NewConn: func(cb realtime.Callbacks) realtime.Conn {
			conn.cb = cb
			return conn
		},
		Ledger: &memLedger{},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error when credential issuance fails")
	}
	if conn.credential != "" {
		t.Error("connect must not run without a credential")
	}
}

func TestEventsFlowToTranscript(t *testing.T) {
	s, conn, _ := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn.cb.OnEvent(realtime.UserUtteranceTranscribed{ItemID: "i1", Text: "I love Lisbon"})
	conn.cb.OnEvent(realtime.AgentResponseStarted{ResponseID: "r1"})
	conn.cb.OnEvent(realtime.AgentTextDelta{Delta: "Tell me "})
	conn.cb.OnEvent(realtime.AgentTextDelta{Delta: "more."})
	conn.cb.OnEvent(realtime.AgentResponseFinished{})

	entries := s.Transcript()
	if len(entries) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(entries))
	}
	if entries[0].Text != "I love Lisbon" {
		t.Errorf("user entry = %q", entries[0].Text)
	}
	if entries[1].Text != "Tell me more." {
		t.Errorf("agent entry = %q", entries[1].Text)
	}
}

func TestEnd_RecordsEarningsOnce(t *testing.T) {
	s, _, ledger := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Let some wall time elapse so the accrued amount is positive.
	time.Sleep(20 * time.Millisecond)

	entry, err := s.End(context.Background())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if entry.Amount <= 0 {
		t.Errorf("amount = %v, want > 0", entry.Amount)
	}
	if entry.UserID != "u1" || entry.TopicID != "travel" {
		t.Errorf("entry = %+v", entry)
	}
	if ledger.count() != 1 {
		t.Fatalf("expected 1 ledger record, got %d", ledger.count())
	}

	// Ending again must not double-record and must return the same amount.
	again, err := s.End(context.Background())
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if again.Amount != entry.Amount {
		t.Errorf("second end amount = %v, want %v", again.Amount, entry.Amount)
	}
	if ledger.count() != 1 {
		t.Errorf("expected still 1 ledger record, got %d", ledger.count())
	}
}

func TestRemoteClose_RecordsEarnings(t *testing.T) {
	s, conn, ledger := newTestSession(t)
	var closed bool
	s.cfg.Hooks.OnClose = func() { closed = true }

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// Remote tears the connection down.
	conn.Close()

	if !closed {
		t.Error("expected close hook to fire")
	}
	if ledger.count() != 1 {
		t.Fatalf("expected 1 ledger record after remote close, got %d", ledger.count())
	}
}

func TestEnd_NeverOpened(t *testing.T) {
	s, _, ledger := newTestSession(t)

	entry, err := s.End(context.Background())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if entry.Amount != 0 {
		t.Errorf("amount = %v, want 0", entry.Amount)
	}
	if ledger.count() != 0 {
		t.Errorf("expected no ledger records, got %d", ledger.count())
	}
}

func TestNewSession_Validation(t *testing.T) {
	topic, _ := topics.ByID("travel")
	factory := func(cb realtime.Callbacks) realtime.Conn { return &fakeConn{cb: cb} }

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing user", Config{Topic: topic, Issuer: &fakeIssuer{}, NewConn: factory, Ledger: &memLedger{}}},
		{"missing topic", Config{UserID: "u1", Issuer: &fakeIssuer{}, NewConn: factory, Ledger: &memLedger{}}},
		{"missing issuer", Config{UserID: "u1", Topic: topic, NewConn: factory, Ledger: &memLedger{}}},
		{"missing ledger", Config{UserID: "u1", Topic: topic, Issuer: &fakeIssuer{}, NewConn: factory}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSession(tc.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
