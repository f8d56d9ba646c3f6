// Package bootstrap assembles a runnable session from configuration: the
// persona registry, the language model, the handoff journal and metrics,
// and the coordination channel.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/adalundhe/duet/agents/support"
	"github.com/adalundhe/duet/agents/voice"
	"github.com/adalundhe/duet/core/config"
	"github.com/adalundhe/duet/core/coordination"
	"github.com/adalundhe/duet/core/handoff"
	"github.com/adalundhe/duet/core/journal"
	"github.com/adalundhe/duet/core/metrics"
	"github.com/adalundhe/duet/core/orchestrator"
	"github.com/adalundhe/duet/core/persona"
	"github.com/adalundhe/duet/core/providers"
	"github.com/adalundhe/duet/core/room"
	"github.com/adalundhe/duet/core/session"
	"github.com/adalundhe/duet/core/storage"
	speech "github.com/adalundhe/duet/core/voice"
)

// Options supplies collaborators that are normally built from config.
// Zero values build the defaults.
type Options struct {
	Dirs *storage.Dirs

	// Generator replaces the configured language model.
	Generator providers.Generator

	// Pipeline replaces the text pipeline.
	Pipeline *speech.Pipeline

	// HTTPClient is used for the coordination channel.
	HTTPClient *http.Client

	// DisableJournal skips opening the handoff journal regardless of config.
	DisableJournal bool

	Logger *slog.Logger
}

// runtime is the part of the app rebuilt on reconfiguration.
type runtime struct {
	cfg       *config.Config
	generator providers.Generator
}

// App holds the process-wide collaborators and creates conversations.
// Conversations share metrics and the journal and nothing else.
type App struct {
	current  atomic.Pointer[runtime]
	fixedGen providers.Generator
	pipeline speech.Pipeline
	metrics  *metrics.Metrics
	journal  *journal.Journal
	channel  *coordination.Channel
	logger   *slog.Logger

	closeOnce sync.Once
}

// New builds an App from cfg. A configured coordination channel is
// connected before New returns; failing to connect is fatal.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap needs a configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		fixedGen: opts.Generator,
		pipeline: speech.Text(),
		logger:   logger,
	}
	if opts.Pipeline != nil {
		app.pipeline = *opts.Pipeline
	}

	rt, err := app.buildRuntime(cfg)
	if err != nil {
		return nil, err
	}
	app.current.Store(rt)

	if cfg.Metrics.Enabled {
		app.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	if cfg.Journal.Enabled && !opts.DisableJournal {
		path := cfg.JournalPath(opts.Dirs)
		if path == "" {
			return nil, errors.New("journal enabled but no path or data directory configured")
		}
		j, err := journal.Open(journal.Config{
			Path:    path,
			MaxCost: cfg.Journal.MaxCost,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		app.journal = j
	}

	if cfg.Coordination.Enabled() {
		ch, err := coordination.Connect(ctx, cfg.Coordination, opts.HTTPClient, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.channel = ch
		go app.drainCoordination(ch)
	}

	return app, nil
}

func (a *App) buildRuntime(cfg *config.Config) (*runtime, error) {
	var err error
	gen := a.fixedGen
	if gen == nil {
		gen, err = providers.New(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("build %s generator: %w", cfg.LLM.Provider, err)
		}
	}
	personas, err := buildPersonas(cfg)
	if err != nil {
		return nil, err
	}
	state, err := session.NewSharedState(cfg.Session.Summary, personas...)
	if err != nil {
		return nil, err
	}
	if _, err := state.Lookup(cfg.Session.InitialPersona); err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, generator: gen}, nil
}

// Reconfigure swaps in cfg for conversations created afterwards. Running
// conversations keep the configuration they started with. On error the
// previous configuration stays in effect.
func (a *App) Reconfigure(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt, err := a.buildRuntime(cfg)
	if err != nil {
		return err
	}
	a.current.Store(rt)
	a.logger.Info("session configuration updated",
		slog.String("provider", string(cfg.LLM.Provider)),
		slog.String("initial_persona", cfg.Session.InitialPersona))
	return nil
}

// Config returns the configuration new conversations start with.
func (a *App) Config() *config.Config {
	return a.current.Load().cfg
}

func (a *App) Metrics() *metrics.Metrics { return a.metrics }
func (a *App) Journal() *journal.Journal { return a.journal }

// =============================================================================
// Conversations
// =============================================================================

// buildPersonas creates a fresh persona of each kind. Personas own their
// chat context, so every conversation gets its own.
func buildPersonas(cfg *config.Config) ([]persona.Persona, error) {
	v, err := voice.New(voice.Options{
		PromptPath: cfg.Personas.Voice.Prompt,
		Bindings:   cfg.Personas.Voice.Bindings,
	})
	if err != nil {
		return nil, fmt.Errorf("voice persona: %w", err)
	}
	s, err := support.New(support.Options{
		PromptPath: cfg.Personas.Support.Prompt,
		Bindings:   cfg.Personas.Support.Bindings,
	})
	if err != nil {
		return nil, fmt.Errorf("support persona: %w", err)
	}
	return []persona.Persona{v, s}, nil
}

// NewConversation wires a conversation for r: a fresh persona registry and
// shared state, and a coordinator that tags r and records to the journal
// and metrics.
func (a *App) NewConversation(r room.Room) (*orchestrator.Conversation, error) {
	rt := a.current.Load()
	cfg := rt.cfg

	personas, err := buildPersonas(cfg)
	if err != nil {
		return nil, err
	}
	state, err := session.NewSharedState(cfg.Session.Summary, personas...)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := a.logger.With(slog.String("room", r.ID()))

	recorders := handoff.Recorders{a.metrics}
	if a.journal != nil {
		recorders = append(recorders, a.journal)
	}

	coordinator := handoff.NewCoordinator(state, handoff.Config{
		ConversationID: id,
		Truncate:       cfg.Handoff,
		HistorySize:    cfg.Session.HistorySize,
		Tagger:         r,
		Recorder:       recorders,
		Logger:         logger,
	})

	convCfg := cfg.Session.Config
	convCfg.ID = id

	return orchestrator.New(convCfg, orchestrator.Deps{
		Room:        r,
		Generator:   rt.generator,
		Pipeline:    a.pipeline,
		Coordinator: coordinator,
		Metrics:     a.metrics,
		Logger:      logger,
	})
}

// Factory adapts NewConversation for room.Server.
func (a *App) Factory() room.Factory {
	return func(_ context.Context, r room.Room) (room.Conversation, error) {
		conv, err := a.NewConversation(r)
		if err != nil {
			return nil, err
		}
		return conv, nil
	}
}

// Server builds the websocket room server from the current configuration.
func (a *App) Server() (*room.Server, error) {
	cfg := a.Config()
	var metricsHandler http.Handler
	if a.metrics != nil {
		metricsHandler = a.metrics.Handler()
	}
	return room.NewServer(room.ServerConfig{
		Addr:             cfg.Room.Addr,
		HandshakeTimeout: cfg.Room.HandshakeTimeout,
		ShutdownTimeout:  cfg.Room.ShutdownTimeout,
		AllowedOrigins:   cfg.Room.AllowedOrigins,
		RecentRooms:      cfg.Room.RecentRooms,
		WebSocket:        cfg.Room.WebSocketConfig,
		Factory:          a.Factory(),
		Metrics:          metricsHandler,
		Logger:           a.logger,
	})
}

// =============================================================================
// Coordination
// =============================================================================

func (a *App) drainCoordination(ch *coordination.Channel) {
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				a.logger.Warn("coordination channel closed", slog.String("url", ch.URL()))
				return
			}
			a.logger.Debug("coordination event",
				slog.String("event", ev.Name),
				slog.Int("bytes", len(ev.Data)))
		case <-ch.Done():
			a.logger.Warn("coordination channel closed", slog.String("url", ch.URL()))
			return
		}
	}
}

// Close releases the coordination channel and the journal.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.channel != nil {
			errs = append(errs, a.channel.Close())
		}
		if a.journal != nil {
			errs = append(errs, a.journal.Close())
		}
	})
	return errors.Join(errs...)
}
