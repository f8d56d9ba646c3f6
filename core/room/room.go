// Package room is the transport a conversation runs over: it delivers user
// input, carries persona speech back and publishes participant attributes.
package room

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed room.
var ErrClosed = errors.New("room closed")

// InputKind classifies user input.
type InputKind string

const (
	// InputText is a finished user utterance as text.
	InputText InputKind = "text"

	// InputAudio is a finished user utterance as audio.
	InputAudio InputKind = "audio"

	// InputInterrupt is a barge-in with no content yet.
	InputInterrupt InputKind = "interrupt"
)

// Input is one event from the user side of the room.
type Input struct {
	Kind  InputKind
	Text  string
	Audio []byte
}

// Utterance is one piece of persona speech.
type Utterance struct {
	Persona string
	Text    string
	Audio   []byte
}

// Room is a live conversation channel. Inputs is closed when the room ends.
type Room interface {
	ID() string
	Inputs() <-chan Input
	Speak(ctx context.Context, u Utterance) error
	SetAttributes(ctx context.Context, attrs map[string]string) error
	Done() <-chan struct{}
	Close() error
}

// =============================================================================
// Conversation hooks
// =============================================================================

// Status is a point-in-time view of the conversation running in a room.
type Status struct {
	ConversationID string         `json:"conversation_id"`
	Room           string         `json:"room"`
	Active         string         `json:"active,omitempty"`
	Previous       string         `json:"previous,omitempty"`
	ContextLens    map[string]int `json:"context_lens,omitempty"`
	Handoffs       int            `json:"handoffs"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        time.Time      `json:"ended_at,omitzero"`
	Error          string         `json:"error,omitempty"`
}

// Conversation is what a Server runs for each room.
type Conversation interface {
	Run(ctx context.Context) error
	Status() Status
}

// Factory creates the conversation for a freshly opened room.
type Factory func(ctx context.Context, r Room) (Conversation, error)
