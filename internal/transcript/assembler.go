package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lantelyes/curiosity-engine/internal/realtime"
)

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleHuman Role = "human"
	RoleAgent Role = "agent"
)

// Entry is one finalized utterance. Entries are immutable once appended and
// keep arrival order; only the in-progress buffer is ever mutated.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// deltaChannel tags which of the two parallel transcription channels is
// feeding the live buffer. The first channel to touch a response wins and the
// other is ignored for that response, so text never double-counts when the
// vendor emits both.
type deltaChannel int

const (
	channelNone deltaChannel = iota
	channelText
	channelAudio
)

// Assembler reconstructs complete utterances from fine-grained vendor events.
// It maintains at most one live agent utterance buffer at a time; the vendor
// does not interleave responses on one connection.
type Assembler struct {
	mu         sync.Mutex
	entries    []Entry
	buf        strings.Builder
	responseID string
	channel    deltaChannel
	live       bool

	onEntry       func(Entry)
	onPreview     func(string)
	onRemoteError func(string)

	now   func() time.Time
	newID func() string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithEntryFunc registers a callback invoked for every finalized entry.
func WithEntryFunc(fn func(Entry)) Option { return func(a *Assembler) { a.onEntry = fn } }

// WithPreviewFunc registers a callback invoked when the live preview changes.
// The preview is transient and non-authoritative.
func WithPreviewFunc(fn func(string)) Option { return func(a *Assembler) { a.onPreview = fn } }

// WithRemoteErrorFunc registers a callback for vendor-reported errors.
func WithRemoteErrorFunc(fn func(string)) Option { return func(a *Assembler) { a.onRemoteError = fn } }

// New constructs an empty Assembler.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply consumes one typed event. Events must arrive in channel order; the
// event transport guarantees ordered, reliable delivery end to end.
func (a *Assembler) Apply(ev realtime.Event) {
	a.mu.Lock()
	var (
		finalized *Entry
		preview   string
		sendPrev  bool
		remoteErr string
		hasRemErr bool
	)
	switch e := ev.(type) {
	case realtime.UserUtteranceTranscribed:
		// Human speech arrives as a whole unit; no buffering.
		text := strings.TrimSpace(e.Text)
		if text != "" {
			id := e.ItemID
			if id == "" {
				id = a.newID()
			}
			entry := Entry{ID: id, Role: RoleHuman, Text: text, CreatedAt: a.now()}
			a.entries = append(a.entries, entry)
			finalized = &entry
		}
	case realtime.AgentResponseStarted:
		a.buf.Reset()
		a.responseID = e.ResponseID
		a.channel = channelNone
		a.live = true
		preview, sendPrev = "", true
	case realtime.AgentTextDelta:
		if a.live && a.feed(channelText, e.Delta) {
			preview, sendPrev = a.buf.String(), true
		}
	case realtime.AgentAudioTranscriptDelta:
		if a.live && a.feed(channelAudio, e.Delta) {
			preview, sendPrev = a.buf.String(), true
		}
	case realtime.AgentResponseFinished:
		if a.live && a.buf.Len() > 0 {
			id := a.responseID
			if id == "" {
				id = a.newID()
			}
			entry := Entry{ID: id, Role: RoleAgent, Text: a.buf.String(), CreatedAt: a.now()}
			a.entries = append(a.entries, entry)
			finalized = &entry
		}
		a.reset()
		preview, sendPrev = "", true
	case realtime.ConversationInterrupted:
		// The user cut the agent off; the partial utterance is not a valid
		// transcript record.
		a.reset()
		preview, sendPrev = "", true
	case realtime.RemoteError:
		remoteErr, hasRemErr = e.Message, true
	}
	a.mu.Unlock()

	if finalized != nil && a.onEntry != nil {
		a.onEntry(*finalized)
	}
	if sendPrev && a.onPreview != nil {
		a.onPreview(preview)
	}
	if hasRemErr && a.onRemoteError != nil {
		a.onRemoteError(remoteErr)
	}
}

// feed appends a delta if the given channel owns the live buffer. The first
// channel to deliver a delta for the current response claims ownership.
func (a *Assembler) feed(ch deltaChannel, delta string) bool {
	if delta == "" {
		return false
	}
	if a.channel == channelNone {
		a.channel = ch
	}
	if a.channel != ch {
		return false
	}
	a.buf.WriteString(delta)
	return true
}

func (a *Assembler) reset() {
	a.buf.Reset()
	a.responseID = ""
	a.channel = channelNone
	a.live = false
}

// Entries returns a copy of the finalized transcript in arrival order.
func (a *Assembler) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Preview returns the live, not-yet-finalized agent text.
func (a *Assembler) Preview() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.live {
		return ""
	}
	return a.buf.String()
}
