package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/duet/core/conversation"
	"github.com/adalundhe/duet/core/handoff"
	"github.com/adalundhe/duet/core/metrics"
	"github.com/adalundhe/duet/core/persona"
	"github.com/adalundhe/duet/core/providers"
	"github.com/adalundhe/duet/core/room"
	"github.com/adalundhe/duet/core/session"
	"github.com/adalundhe/duet/core/voice"
)

// =============================================================================
// Conversation
// =============================================================================

// Conversation is the runtime of one room. Room input, generation results
// and handoffs are all processed on the goroutine running Run, which makes
// it the only writer of the shared state. Status may be called from any
// goroutine.
type Conversation struct {
	cfg         Config
	room        room.Room
	generator   providers.Generator
	pipeline    voice.Pipeline
	coordinator *handoff.Coordinator
	state       *session.SharedState
	metrics     *metrics.Metrics
	logger      *slog.Logger

	results chan generation

	// Owned by the event loop.
	seq        uint64
	inflight   uint64
	cancelGen  context.CancelFunc
	toolRounds int

	mu        sync.RWMutex
	handoffs  int
	startedAt time.Time
	endedAt   time.Time
	runErr    error
}

var _ persona.RunContext = (*Conversation)(nil)
var _ room.Conversation = (*Conversation)(nil)

// New builds a conversation. The initial persona must be registered in the
// coordinator's shared state.
func New(cfg Config, deps Deps) (*Conversation, error) {
	if deps.Room == nil {
		return nil, fmt.Errorf("conversation needs a room")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("conversation needs a generator")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("conversation needs a handoff coordinator")
	}

	state := deps.Coordinator.State()
	if _, err := state.Lookup(cfg.InitialPersona); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Conversation{
		cfg:         cfg,
		room:        deps.Room,
		generator:   deps.Generator,
		pipeline:    deps.Pipeline,
		coordinator: deps.Coordinator,
		state:       state,
		metrics:     deps.Metrics,
		logger: logger.With(
			slog.String("conversation", cfg.ID),
			slog.String("room", deps.Room.ID())),
		results: make(chan generation),
	}, nil
}

// ID returns the conversation id.
func (c *Conversation) ID() string {
	return c.cfg.ID
}

// Run activates the initial persona, takes the opening turn and then
// processes room input until the room closes or ctx ends. A room that
// closes normally ends the conversation with a nil error.
func (c *Conversation) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	c.mu.Lock()
	c.startedAt = started
	c.mu.Unlock()
	c.metrics.RecordConversationStart()
	c.logger.Info("conversation started", slog.String("persona", c.cfg.InitialPersona))

	defer func() {
		c.cancelGeneration()
		c.mu.Lock()
		c.endedAt = time.Now()
		c.runErr = err
		c.mu.Unlock()
		c.metrics.RecordConversationEnd(time.Since(started), err)

		attrs := []any{slog.Duration("duration", time.Since(started))}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		c.logger.Info("conversation ended", attrs...)
	}()

	if err := c.start(ctx); err != nil {
		return err
	}
	return c.loop(ctx)
}

func (c *Conversation) start(ctx context.Context) error {
	initial, err := c.state.Lookup(c.cfg.InitialPersona)
	if err != nil {
		return err
	}
	if _, err := c.coordinator.Activate(ctx, initial); err != nil {
		return err
	}
	if c.cfg.OpeningInstructions != "" {
		c.generate(ctx, c.cfg.OpeningInstructions)
	}
	return nil
}

func (c *Conversation) loop(ctx context.Context) error {
	inputs := c.room.Inputs()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-inputs:
			if !ok {
				return nil
			}
			c.handleInput(ctx, in)
		case res := <-c.results:
			c.handleResult(ctx, res)
		}
	}
}

func (c *Conversation) handleInput(ctx context.Context, in room.Input) {
	switch in.Kind {
	case room.InputInterrupt:
		if c.inflight != 0 {
			c.logger.Debug("barge-in", slog.Uint64("seq", c.inflight))
		}
		c.cancelGeneration()

	case room.InputAudio:
		active := c.state.Active()
		text, err := c.pipeline.Transcribe(ctx, in.Audio, active.Bindings())
		if err != nil {
			c.logger.Warn("transcription failed",
				slog.String("persona", active.Name()),
				slog.String("error", err.Error()))
			c.metrics.RecordError("speech", err)
			return
		}
		c.userTurn(ctx, text)

	case room.InputText:
		c.userTurn(ctx, in.Text)
	}
}

func (c *Conversation) userTurn(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.cancelGeneration()
	c.toolRounds = 0

	active := c.state.Active()
	active.Append(conversation.NewMessage(conversation.RoleUser, text))
	c.logger.Debug("user turn", slog.String("persona", active.Name()), slog.Int("chars", len(text)))
	c.generate(ctx, "")
}

// =============================================================================
// RunContext
// =============================================================================

// Say speaks text as the active persona and records it in that persona's
// context. A failed send is logged; only a closed room is returned as an
// error. Say must be called from the event loop.
func (c *Conversation) Say(ctx context.Context, text string) error {
	active := c.state.Active()
	active.Append(conversation.NewMessage(conversation.RoleAssistant, text))

	audio, err := c.pipeline.Render(ctx, text, active.Bindings())
	if err != nil {
		c.logger.Warn("synthesis failed, sending text only",
			slog.String("persona", active.Name()),
			slog.String("error", err.Error()))
		c.metrics.RecordError("speech", err)
		audio = nil
	}

	if err := c.room.Speak(ctx, room.Utterance{Persona: active.Name(), Text: text, Audio: audio}); err != nil {
		if errors.Is(err, room.ErrClosed) {
			return err
		}
		c.logger.Warn("speak failed",
			slog.String("persona", active.Name()),
			slog.String("error", err.Error()))
		c.metrics.RecordError("room", err)
	}
	return nil
}

// Transfer resolves target through the handoff coordinator. Activation
// happens once the transfer action returns.
func (c *Conversation) Transfer(ctx context.Context, target string) (persona.Persona, error) {
	return c.coordinator.Transfer(ctx, target)
}

func (c *Conversation) activate(ctx context.Context, next persona.Persona) error {
	rec, err := c.coordinator.Activate(ctx, next)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.handoffs++
	c.mu.Unlock()

	c.logger.Info("handoff complete",
		slog.String("from", rec.From),
		slog.String("to", rec.To),
		slog.Int("carried", rec.Carried))
	c.generate(ctx, "")
	return nil
}

// =============================================================================
// Status
// =============================================================================

// Snapshot reports the conversation id, the active and previous personas
// and the context length of every persona.
func (c *Conversation) Snapshot() room.Status {
	snap := c.state.Snapshot()
	lens := make(map[string]int, len(snap.Personas))
	for _, name := range snap.Personas {
		if p, err := c.state.Lookup(name); err == nil {
			lens[name] = p.ChatContext().Len()
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	status := room.Status{
		ConversationID: c.cfg.ID,
		Room:           c.room.ID(),
		Active:         snap.Active,
		Previous:       snap.Previous,
		ContextLens:    lens,
		Handoffs:       c.handoffs,
		StartedAt:      c.startedAt,
		EndedAt:        c.endedAt,
	}
	if c.runErr != nil && !errors.Is(c.runErr, context.Canceled) {
		status.Error = c.runErr.Error()
	}
	return status
}

// Status implements room.Conversation.
func (c *Conversation) Status() room.Status {
	return c.Snapshot()
}

// History returns the handoff records of this conversation, oldest first.
func (c *Conversation) History() []handoff.Record {
	return c.coordinator.History()
}
