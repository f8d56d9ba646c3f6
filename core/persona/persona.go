// Package persona defines the conversational roles a conversation can be
// handed between. A persona owns its instructions, its context and its
// transfer actions; it never owns the registry it is listed in.
package persona

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/adalundhe/duet/core/conversation"
)

// =============================================================================
// Capability Interface
// =============================================================================

// Persona is the capability set every conversational role exposes: respond
// (instructions + context), expose tools (transfer actions) and enter
// (context replacement on activation).
type Persona interface {
	// Name is the unique registry key for the persona.
	Name() string

	// Instructions is the fixed system prompt.
	Instructions() string

	// Bindings selects the speech and language backends for the persona.
	Bindings() Bindings

	// Tools lists the transfer actions exposed to the language model.
	Tools() []Tool

	// Action looks up a transfer action by tool name.
	Action(toolName string) (TransferAction, bool)

	// Invoke runs the named transfer action against the run context.
	Invoke(ctx context.Context, toolName string, rc RunContext) (Persona, error)

	// ChatContext returns a copy of the persona's context.
	ChatContext() *conversation.Context

	// UpdateChatContext replaces the persona's context.
	UpdateChatContext(c *conversation.Context)

	// Append adds items to the persona's context.
	Append(items ...conversation.Item)
}

// RunContext is what a transfer action may do while it runs: speak through
// the conversation's response channel and request a transfer.
type RunContext interface {
	Say(ctx context.Context, text string) error
	Transfer(ctx context.Context, target string) (Persona, error)
}

// =============================================================================
// Bindings
// =============================================================================

// Bindings carries the opaque backend selection for a persona. Empty fields
// fall back to the deployment defaults.
type Bindings struct {
	LLMModel    string `yaml:"llm_model" json:"llm_model,omitempty"`
	STTModel    string `yaml:"stt_model" json:"stt_model,omitempty"`
	STTLanguage string `yaml:"stt_language" json:"stt_language,omitempty"`
	TTSModel    string `yaml:"tts_model" json:"tts_model,omitempty"`
	TTSVoice    string `yaml:"tts_voice" json:"tts_voice,omitempty"`
}

// MergeBindings overlays the non-empty fields of override onto base.
func MergeBindings(base, override Bindings) Bindings {
	if override.LLMModel != "" {
		base.LLMModel = override.LLMModel
	}
	if override.STTModel != "" {
		base.STTModel = override.STTModel
	}
	if override.STTLanguage != "" {
		base.STTLanguage = override.STTLanguage
	}
	if override.TTSModel != "" {
		base.TTSModel = override.TTSModel
	}
	if override.TTSVoice != "" {
		base.TTSVoice = override.TTSVoice
	}
	return base
}

// =============================================================================
// Base
// =============================================================================

// Config describes a persona variant.
type Config struct {
	Name         string
	Instructions string
	Bindings     Bindings
	Actions      []TransferAction
}

// Base is the shared persona implementation. Variants differ only in the
// Config they construct it with.
type Base struct {
	name         string
	instructions string
	bindings     Bindings
	actions      map[string]TransferAction
	order        []string

	mu      sync.RWMutex
	context *conversation.Context
}

// New builds a persona from its config. Action tool names must be unique.
func New(cfg Config) (*Base, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("persona name is required")
	}

	b := &Base{
		name:         cfg.Name,
		instructions: cfg.Instructions,
		bindings:     cfg.Bindings,
		actions:      make(map[string]TransferAction, len(cfg.Actions)),
		context:      conversation.NewContext(),
	}

	for _, action := range cfg.Actions {
		if err := action.validate(); err != nil {
			return nil, fmt.Errorf("persona %q: %w", cfg.Name, err)
		}
		if _, exists := b.actions[action.ToolName]; exists {
			return nil, fmt.Errorf("persona %q: duplicate action %q", cfg.Name, action.ToolName)
		}
		b.actions[action.ToolName] = action
		b.order = append(b.order, action.ToolName)
	}

	return b, nil
}

func (b *Base) Name() string         { return b.name }
func (b *Base) Instructions() string { return b.instructions }
func (b *Base) Bindings() Bindings   { return b.bindings }

// Tools returns the transfer actions as tool specs, in declaration order.
func (b *Base) Tools() []Tool {
	tools := make([]Tool, 0, len(b.order))
	for _, name := range b.order {
		tools = append(tools, b.actions[name].Tool())
	}
	return tools
}

// Targets returns the sorted persona names this persona can transfer to.
func (b *Base) Targets() []string {
	targets := make([]string, 0, len(b.actions))
	for _, action := range b.actions {
		targets = append(targets, action.Target)
	}
	sort.Strings(targets)
	return targets
}

func (b *Base) Action(toolName string) (TransferAction, bool) {
	action, ok := b.actions[toolName]
	return action, ok
}

// Invoke announces the transfer and then requests it. The announcement is
// spoken before the transfer so the user hears it from the outgoing persona.
func (b *Base) Invoke(ctx context.Context, toolName string, rc RunContext) (Persona, error) {
	action, ok := b.actions[toolName]
	if !ok {
		return nil, fmt.Errorf("persona %q has no action %q", b.name, toolName)
	}
	return action.Run(ctx, rc)
}

func (b *Base) ChatContext() *conversation.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.context.Copy()
}

func (b *Base) UpdateChatContext(c *conversation.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.context = c.Copy()
}

func (b *Base) Append(items ...conversation.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.context.Append(items...)
}

// ContextLen returns the number of items in the persona's context.
func (b *Base) ContextLen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.context.Len()
}
