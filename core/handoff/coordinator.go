// Package handoff moves a conversation between personas: it truncates the
// outgoing persona's recent history, merges it into the incoming persona's
// context without duplicates, and records every transfer.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adalundhe/duet/core/conversation"
	coreerrors "github.com/adalundhe/duet/core/errors"
	"github.com/adalundhe/duet/core/persona"
	"github.com/adalundhe/duet/core/session"
)

// AgentAttribute is the room attribute naming the speaking persona.
const AgentAttribute = "agent"

// DefaultHistorySize is how many handoff records a coordinator retains.
const DefaultHistorySize = 32

// =============================================================================
// Collaborators
// =============================================================================

// Tagger publishes participant attributes on the room.
type Tagger interface {
	SetAttributes(ctx context.Context, attrs map[string]string) error
}

// Outcome classifies a handoff record.
type Outcome string

const (
	OutcomeActivated Outcome = "activated"
	OutcomeRejected  Outcome = "rejected"
)

// Record describes one transfer or activation.
type Record struct {
	ConversationID string    `json:"conversation_id"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to"`
	Outcome        Outcome   `json:"outcome"`
	Window         int       `json:"window"`
	Carried        int       `json:"carried"`
	ContextLen     int       `json:"context_len"`
	TagFailed      bool      `json:"tag_failed,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// Recorder receives handoff records. Implementations must not block the
// conversation for long.
type Recorder interface {
	RecordHandoff(ctx context.Context, rec Record)
}

// Recorders fans a record out to several recorders.
type Recorders []Recorder

func (rs Recorders) RecordHandoff(ctx context.Context, rec Record) {
	for _, r := range rs {
		if r != nil {
			r.RecordHandoff(ctx, rec)
		}
	}
}

// =============================================================================
// Coordinator
// =============================================================================

// Config configures a Coordinator.
type Config struct {
	ConversationID string
	Truncate       TruncateConfig
	HistorySize    int
	Tagger         Tagger
	Recorder       Recorder
	Logger         *slog.Logger
}

// Coordinator resolves transfer requests and runs the activation protocol.
// It is the only writer of the shared state's active and previous pointers
// and must be driven from a single goroutine.
type Coordinator struct {
	state          *session.SharedState
	conversationID string
	truncate       TruncateConfig
	tagger         Tagger
	recorder       Recorder
	logger         *slog.Logger
	history        *CircularBuffer[Record]
	now            func() time.Time
}

// NewCoordinator creates a coordinator over state.
func NewCoordinator(state *session.SharedState, cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Coordinator{
		state:          state,
		conversationID: cfg.ConversationID,
		truncate:       cfg.Truncate,
		tagger:         cfg.Tagger,
		recorder:       cfg.Recorder,
		logger:         logger.With(slog.String("conversation", cfg.ConversationID)),
		history:        NewCircularBuffer[Record](size),
		now:            time.Now,
	}
}

// State returns the shared state the coordinator drives.
func (c *Coordinator) State() *session.SharedState {
	return c.state
}

// Transfer resolves target and records the current persona as previous.
// An unknown target returns a ConfigurationError and leaves the state
// untouched. The caller activates the returned persona.
func (c *Coordinator) Transfer(ctx context.Context, target string) (persona.Persona, error) {
	next, err := c.state.Lookup(target)
	if err != nil {
		from := ""
		if active := c.state.Active(); active != nil {
			from = active.Name()
		}
		c.logger.Warn("transfer rejected",
			slog.String("from", from),
			slog.String("to", target),
			slog.String("error", err.Error()))
		c.record(ctx, Record{From: from, To: target, Outcome: OutcomeRejected, Error: err.Error()})
		return nil, err
	}

	prev := c.state.MarkPrevious()
	if prev != nil {
		c.logger.Info("transfer requested",
			slog.String("from", prev.Name()),
			slog.String("to", next.Name()))
	}
	return next, nil
}

// Activate makes next the speaking persona: tag the room, carry over the
// previous persona's recent window, append the identity message, commit.
// Response generation is left to the caller.
func (c *Coordinator) Activate(ctx context.Context, next persona.Persona) (Record, error) {
	rec := Record{To: next.Name(), Outcome: OutcomeActivated}
	c.logger.Info("entering persona", slog.String("persona", next.Name()))

	if c.tagger != nil {
		if err := c.tagger.SetAttributes(ctx, map[string]string{AgentAttribute: next.Name()}); err != nil {
			tagErr := &coreerrors.TransientChannelError{Op: "set_attributes", Err: err}
			c.logger.Warn("room tag failed",
				slog.String("persona", next.Name()),
				slog.String("error", tagErr.Error()))
			rec.TagFailed = true
		}
	}

	items := next.ChatContext().Items()
	merged := items

	if prev := c.state.Previous(); prev != nil {
		rec.From = prev.Name()
		window := Truncate(prev.ChatContext().Items(), c.truncate)
		merged = Merge(items, window)
		rec.Window = len(window)
		rec.Carried = len(merged) - len(items)
	}

	chat := conversation.NewContext(merged...)
	chat.AddMessage(conversation.RoleSystem, IdentityMessage(next.Name(), c.state.Summarize()))

	if err := c.state.SetActive(next); err != nil {
		rec.Outcome = OutcomeRejected
		rec.Error = err.Error()
		c.record(ctx, rec)
		return rec, fmt.Errorf("activate %q: %w", next.Name(), err)
	}
	next.UpdateChatContext(chat)
	rec.ContextLen = chat.Len()

	c.logger.Debug("persona context committed",
		slog.String("persona", next.Name()),
		slog.Int("window", rec.Window),
		slog.Int("carried", rec.Carried),
		slog.Int("context_len", rec.ContextLen))

	c.record(ctx, rec)
	return rec, nil
}

// IdentityMessage is the system message appended on every activation.
func IdentityMessage(name, summary string) string {
	return fmt.Sprintf("You are the %s. %s", name, summary)
}

// History returns the retained handoff records, oldest first.
func (c *Coordinator) History() []Record {
	return c.history.Items()
}

func (c *Coordinator) record(ctx context.Context, rec Record) {
	rec.ConversationID = c.conversationID
	rec.At = c.now()
	c.history.Push(rec)
	if c.recorder != nil {
		c.recorder.RecordHandoff(ctx, rec)
	}
}
