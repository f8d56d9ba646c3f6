// Package orchestrator runs one conversation: it feeds room input to the
// active persona, generates replies, and drives handoffs between personas
// on a single event loop.
package orchestrator

import (
	"log/slog"
	"time"

	"github.com/adalundhe/duet/core/handoff"
	"github.com/adalundhe/duet/core/metrics"
	"github.com/adalundhe/duet/core/providers"
	"github.com/adalundhe/duet/core/room"
	"github.com/adalundhe/duet/core/voice"
)

// DefaultOpeningInstructions steer the first reply of a conversation.
const DefaultOpeningInstructions = "Greet the user and offer your assistance."

// DefaultMaxToolRounds bounds consecutive tool turns without user input.
const DefaultMaxToolRounds = 3

// Config configures a Conversation.
type Config struct {
	// ID identifies the conversation in logs, metrics and the journal.
	// Empty generates one.
	ID string `yaml:"-"`

	// InitialPersona is activated when the conversation starts.
	InitialPersona string `yaml:"initial_persona"`

	// OpeningInstructions steer the first reply. Empty skips the opening
	// turn.
	OpeningInstructions string `yaml:"opening_instructions"`

	// GenerationTimeout bounds a single reply. Zero means no bound.
	GenerationTimeout time.Duration `yaml:"generation_timeout"`

	// MaxToolRounds bounds consecutive tool turns between user inputs.
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// DefaultConfig returns the defaults. InitialPersona must still be set.
func DefaultConfig() Config {
	return Config{
		OpeningInstructions: DefaultOpeningInstructions,
		GenerationTimeout:   30 * time.Second,
		MaxToolRounds:       DefaultMaxToolRounds,
	}
}

// Deps are the collaborators a Conversation runs against. Room, Generator
// and Coordinator are required.
type Deps struct {
	Room        room.Room
	Generator   providers.Generator
	Pipeline    voice.Pipeline
	Coordinator *handoff.Coordinator
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}
