package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/duet/core/conversation"
	coreerrors "github.com/adalundhe/duet/core/errors"
	"github.com/adalundhe/duet/core/persona"
	"github.com/adalundhe/duet/core/providers"
)

// generation is the result of one reply request. seq ties it to the request
// that started it; results whose seq is no longer in flight are dropped.
type generation struct {
	seq     uint64
	persona persona.Persona
	started time.Time
	resp    *providers.Response
	err     error
}

// generate starts a reply for the active persona, cancelling any reply in
// flight.
func (c *Conversation) generate(ctx context.Context, instructions string) {
	c.cancelGeneration()

	active := c.state.Active()
	c.seq++
	seq := c.seq

	var (
		genCtx context.Context
		cancel context.CancelFunc
	)
	if c.cfg.GenerationTimeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, c.cfg.GenerationTimeout)
	} else {
		genCtx, cancel = context.WithCancel(ctx)
	}
	c.cancelGen = cancel
	c.inflight = seq

	req := providers.RequestFor(active, instructions)
	req.Metadata = map[string]any{"conversation_id": c.cfg.ID, "persona": active.Name()}

	c.logger.Debug("generation started",
		slog.Uint64("seq", seq),
		slog.String("persona", active.Name()),
		slog.Int("messages", len(req.Messages)))

	started := time.Now()
	go func() {
		resp, err := c.generator.Generate(genCtx, req)
		select {
		case c.results <- generation{seq: seq, persona: active, started: started, resp: resp, err: err}:
		case <-ctx.Done():
		}
	}()
}

// cancelGeneration aborts the reply in flight, if any. Its result is
// dropped when it arrives.
func (c *Conversation) cancelGeneration() {
	if c.cancelGen != nil {
		c.cancelGen()
		c.cancelGen = nil
	}
	c.inflight = 0
}

func (c *Conversation) handleResult(ctx context.Context, res generation) {
	elapsed := time.Since(res.started)
	provider := c.generator.Name()

	if res.seq != c.inflight {
		c.metrics.RecordGeneration(provider, elapsed, coreerrors.ErrGenerationAbort)
		c.logger.Debug("dropping superseded generation",
			slog.Uint64("seq", res.seq),
			slog.String("persona", res.persona.Name()))
		return
	}
	c.cancelGeneration()

	if res.err != nil {
		c.metrics.RecordGeneration(provider, elapsed, res.err)
		if errors.Is(res.err, context.Canceled) {
			return
		}
		c.logger.Error("generation failed",
			slog.String("persona", res.persona.Name()),
			slog.String("tier", coreerrors.GetTier(res.err).String()),
			slog.String("error", res.err.Error()))
		return
	}
	c.metrics.RecordGeneration(provider, elapsed, nil)

	resp := res.resp
	if resp == nil {
		return
	}
	if text := strings.TrimSpace(resp.Content); text != "" {
		if err := c.Say(ctx, text); err != nil {
			c.logger.Debug("reply not delivered", slog.String("error", err.Error()))
			return
		}
	}
	if len(resp.ToolCalls) > 0 {
		c.runTool(ctx, res.persona, resp.ToolCalls)
	}
}

// runTool executes the first tool call of a reply. Only one transfer can
// take effect per turn; any further calls are ignored.
func (c *Conversation) runTool(ctx context.Context, p persona.Persona, calls []providers.ToolCall) {
	call := calls[0]
	if len(calls) > 1 {
		c.logger.Warn("ignoring extra tool calls",
			slog.String("persona", p.Name()),
			slog.Int("ignored", len(calls)-1))
	}

	c.toolRounds++
	if c.toolRounds > c.cfg.MaxToolRounds {
		c.logger.Warn("tool round limit reached",
			slog.String("persona", p.Name()),
			slog.String("tool", call.Name),
			slog.Int("limit", c.cfg.MaxToolRounds))
		return
	}

	callID := call.ID
	if callID == "" {
		callID = "call_" + uuid.NewString()
	}

	next, err := p.Invoke(ctx, call.Name, c)

	var output string
	if err != nil {
		output = fmt.Sprintf("error: %v", err)
	} else {
		output = "transferred to " + next.Name()
	}
	p.Append(
		conversation.NewFunctionCall(callID, call.Name, call.Arguments),
		conversation.NewFunctionCallOutput(callID, call.Name, output),
	)

	if err != nil {
		c.logger.Warn("tool call failed",
			slog.String("persona", p.Name()),
			slog.String("tool", call.Name),
			slog.String("error", err.Error()))
		c.metrics.RecordError("transfer", err)
		if c.state.Active() == p {
			c.generate(ctx, "")
		}
		return
	}

	if err := c.activate(ctx, next); err != nil {
		c.logger.Error("activation failed",
			slog.String("persona", next.Name()),
			slog.String("error", err.Error()))
		c.metrics.RecordError("transfer", err)
	}
}
