package realtime

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of vendor events the application consumes. Wire
// payloads are decoded once at the channel boundary so downstream consumers
// switch over concrete types instead of strings.
type Event interface{ isEvent() }

// UserUtteranceTranscribed carries a whole transcribed user utterance. The
// upstream transcription engine delivers these as complete units, never as
// incremental deltas.
type UserUtteranceTranscribed struct {
	ItemID string
	Text   string
}

// AgentResponseStarted marks the beginning of one agent response.
type AgentResponseStarted struct {
	ResponseID string
}

// AgentTextDelta is an incremental fragment of the agent's direct text output.
type AgentTextDelta struct {
	Delta string
}

// AgentAudioTranscriptDelta is an incremental fragment of the transcript of
// the agent's spoken audio. It describes the same logical utterance as
// AgentTextDelta over a parallel channel.
type AgentAudioTranscriptDelta struct {
	Delta string
}

// AgentResponseFinished marks the end of the current agent response.
type AgentResponseFinished struct{}

// ConversationInterrupted signals the user started speaking over the agent.
type ConversationInterrupted struct{}

// SessionUpdated acknowledges session lifecycle/configuration events.
type SessionUpdated struct{}

// RemoteError is an application-level error reported by the vendor over the
// event channel. The connection may continue.
type RemoteError struct {
	Message string
}

// UnknownEvent preserves the type tag of events outside the known set.
type UnknownEvent struct {
	Type string
}

func (UserUtteranceTranscribed) isEvent()  {}
func (AgentResponseStarted) isEvent()      {}
func (AgentTextDelta) isEvent()            {}
func (AgentAudioTranscriptDelta) isEvent() {}
func (AgentResponseFinished) isEvent()     {}
func (ConversationInterrupted) isEvent()   {}
func (SessionUpdated) isEvent()            {}
func (RemoteError) isEvent()               {}
func (UnknownEvent) isEvent()              {}

// wireEvent is the superset of fields the vendor sends across event kinds.
type wireEvent struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Response   struct {
		ID string `json:"id"`
	} `json:"response,omitempty"`
	Error struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DecodeEvent parses one wire message into a typed event.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("realtime: decode event: %w", err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("realtime: event missing type field")
	}
	switch w.Type {
	case "conversation.item.input_audio_transcription.completed":
		return UserUtteranceTranscribed{ItemID: w.ItemID, Text: w.Transcript}, nil
	case "response.created":
		return AgentResponseStarted{ResponseID: w.Response.ID}, nil
	case "response.text.delta":
		return AgentTextDelta{Delta: w.Delta}, nil
	case "response.audio_transcript.delta":
		return AgentAudioTranscriptDelta{Delta: w.Delta}, nil
	case "response.done":
		return AgentResponseFinished{}, nil
	case "input_audio_buffer.speech_started":
		return ConversationInterrupted{}, nil
	case "session.created", "session.updated":
		return SessionUpdated{}, nil
	case "error":
		return RemoteError{Message: w.Error.Message}, nil
	default:
		return UnknownEvent{Type: w.Type}, nil
	}
}

// TurnDetection configures server-driven voice activity detection. A nil
// TurnDetection in SessionOptions leaves turn handling manual.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// TranscriptionOptions selects the engine used to transcribe user speech.
type TranscriptionOptions struct {
	Model string `json:"model"`
}

// SessionOptions configures remote session behavior. This is a one-shot
// configuration message, not a negotiation: if the remote rejects or ignores
// it, no error surfaces locally.
type SessionOptions struct {
	Instructions            string                `json:"instructions,omitempty"`
	Voice                   string                `json:"voice,omitempty"`
	InputAudioFormat        string                `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string                `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionOptions `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection        `json:"turn_detection,omitempty"`
}

type sessionUpdateMessage struct {
	Type    string         `json:"type"`
	Session SessionOptions `json:"session"`
}
