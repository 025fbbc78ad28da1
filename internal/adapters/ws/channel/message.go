package channel

import (
	"encoding/json"
)

// MessageType is the closed set of inbound message kinds.
type MessageType string

const (
	TypeKeypoints       MessageType = "keypoints"
	TypeBedrockAnalysis MessageType = "bedrock_analysis"
	TypeComplete        MessageType = "complete"
	TypeError           MessageType = "error"
)

func (t MessageType) label() string {
	switch t {
	case TypeKeypoints, TypeBedrockAnalysis, TypeComplete, TypeError:
		return string(t)
	}
	return "unknown"
}

// DefaultErrorMessage is reported for error messages that carry no text.
const DefaultErrorMessage = "An error occurred during video analysis"

// Message is one inbound payload.
type Message struct {
	Type    MessageType     `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Handlers receive dispatched messages in arrival order. Nil handlers are skipped.
// They run on the connection's reader goroutine and must not block for long.
type Handlers struct {
	OnKeypoints func(data json.RawMessage)
	OnAnalysis  func(data json.RawMessage)
	OnComplete  func(data json.RawMessage)
	OnError     func(message string)
	// OnFailed fires once when the reconnect ceiling is reached.
	OnFailed func(err error)
	// OnState observes every state transition.
	OnState func(s Status)
}
