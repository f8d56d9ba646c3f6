package providers

import (
	"errors"
	"testing"

	"github.com/adalundhe/duet/core/conversation"
	coreerrors "github.com/adalundhe/duet/core/errors"
	"github.com/adalundhe/duet/core/persona"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItems() []conversation.Item {
	return []conversation.Item{
		conversation.NewMessage(conversation.RoleSystem, "You are the voice agent."),
		conversation.NewMessage(conversation.RoleUser, "I feel overwhelmed"),
		conversation.NewFunctionCall("call_1", "transfer_to_emotional_support_agent", "{}"),
		conversation.NewFunctionCallOutput("call_1", "transfer_to_emotional_support_agent", "transferred"),
		conversation.NewMessage(conversation.RoleAssistant, "I'm here with you."),
	}
}

func TestMessagesFromItems(t *testing.T) {
	msgs := MessagesFromItems(sampleItems())
	require.Len(t, msgs, 5)

	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)

	assert.Equal(t, RoleAssistant, msgs[2].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[2].ToolCalls[0].ID)

	assert.Equal(t, RoleTool, msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
	assert.Equal(t, "transferred", msgs[3].Content)

	assert.Equal(t, "I'm here with you.", msgs[4].Content)
}

func TestMessagesFromItems_FoldsConsecutiveCalls(t *testing.T) {
	msgs := MessagesFromItems([]conversation.Item{
		conversation.NewFunctionCall("a", "f", "{}"),
		conversation.NewFunctionCall("b", "g", "{}"),
	})
	require.Len(t, msgs, 1)
	assert.Len(t, msgs[0].ToolCalls, 2)
}

func TestRequestFor(t *testing.T) {
	p, err := persona.New(persona.Config{
		Name:         "voice agent",
		Instructions: "be brief",
		Bindings:     persona.Bindings{LLMModel: "gpt-4o-mini"},
		Actions:      []persona.TransferAction{{ToolName: "go", Target: "other", Description: "switch"}},
	})
	require.NoError(t, err)
	p.Append(sampleItems()...)

	req := RequestFor(p, "Greet the user and offer your assistance.")
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, "be brief", req.SystemPrompt)
	assert.Equal(t, "Greet the user and offer your assistance.", req.TurnInstructions)
	assert.Len(t, req.Messages, 5)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "go", req.Tools[0].Name)
}

func TestConvertResponseMessages(t *testing.T) {
	req := &Request{
		SystemPrompt:     "instructions",
		Messages:         MessagesFromItems(sampleItems()),
		TurnInstructions: "greet",
	}

	input := convertResponseMessages(req)
	// system prompt, 5 converted items, turn instructions
	require.Len(t, input, 7)
	assert.NotNil(t, input[0].OfMessage)
	assert.NotNil(t, input[3].OfFunctionCall)
	assert.NotNil(t, input[4].OfFunctionCallOutput)
	assert.NotNil(t, input[6].OfMessage)
}

func TestConvertResponseTools(t *testing.T) {
	tools := convertResponseTools([]Tool{{Name: "transfer", Description: "hand over"}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfFunction)
	assert.Equal(t, "transfer", tools[0].OfFunction.Name)
	assert.Equal(t, "object", tools[0].OfFunction.Parameters["type"])
}

func TestAnthropicSystemPrompt(t *testing.T) {
	req := &Request{
		SystemPrompt:     "instructions",
		Messages:         MessagesFromItems(sampleItems()),
		TurnInstructions: "greet",
	}
	assert.Equal(t, "instructions\n\nYou are the voice agent.\n\ngreet", anthropicSystemPrompt(req))
}

func TestConvertAnthropicMessages(t *testing.T) {
	msgs := convertAnthropicMessages(MessagesFromItems(sampleItems()))
	// system items are lifted into the system prompt
	assert.Len(t, msgs, 4)

	opening := convertAnthropicMessages(nil)
	assert.Len(t, opening, 1)
}

func TestToolInput(t *testing.T) {
	assert.JSONEq(t, `{}`, string(toolInput("")))
	assert.JSONEq(t, `{}`, string(toolInput("not json")))
	assert.JSONEq(t, `{"a":1}`, string(toolInput(`{"a":1}`)))
}

func TestExtractRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, extractRequiredFields(map[string]any{"required": []string{"a"}}))
	assert.Equal(t, []string{"b"}, extractRequiredFields(map[string]any{"required": []any{"b", 3}}))
	assert.Nil(t, extractRequiredFields(map[string]any{}))
}

func TestNew(t *testing.T) {
	cfg := DefaultConfig()
	_, err := New(cfg)
	assert.Error(t, err, "missing api key")

	cfg.OpenAI.APIKey = "sk-test"
	gen, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", gen.Name())

	cfg.Provider = ProviderTypeAnthropic
	cfg.Anthropic.APIKey = "sk-ant-test"
	gen, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", gen.Name())

	cfg.Provider = "gemini"
	_, err = New(cfg)
	assert.True(t, coreerrors.IsConfigurationError(err))
}

func TestClassify_PlainErrorIsTransient(t *testing.T) {
	cause := errors.New("connection reset")
	err := classify("openai", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, coreerrors.TierTransient, coreerrors.GetTier(err))
}
