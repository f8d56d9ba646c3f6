package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Generator for Anthropic's Claude models
type AnthropicProvider struct {
	client *anthropic.Client
	config AnthropicConfig
}

type AnthropicModel string

const (
	Sonnet AnthropicModel = "claude-sonnet-4-5-20250929"
	Haiku  AnthropicModel = "claude-haiku-4-5-20251001"
)

// openingPrompt stands in for the user when a turn starts with no user
// message, since the Messages API needs at least one.
const openingPrompt = "(the user has joined the call)"

// NewAnthropicProvider creates a new Anthropic provider with the given configuration
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	defaults := DefaultAnthropicConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaults.MaxTokens
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		config: config,
	}, nil
}

// Name returns the provider identifier
func (p *AnthropicProvider) Name() string {
	return string(ProviderTypeAnthropic)
}

// Generate performs a non-streaming completion request
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	params := p.buildParams(req)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify("anthropic", err)
	}

	return p.convertResponse(msg), nil
}

// buildParams constructs Anthropic API parameters from a Request. Persona
// model bindings name OpenAI models, so only the configured model is used.
func (p *AnthropicProvider) buildParams(req *Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages:  convertAnthropicMessages(req.Messages),
	}

	if system := anthropicSystemPrompt(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	} else if p.config.Temperature > 0 {
		params.Temperature = anthropic.Float(p.config.Temperature)
	}

	return params
}

// anthropicSystemPrompt joins the instructions, any system items in the
// history and the turn instructions; the Messages API has no system role.
func anthropicSystemPrompt(req *Request) string {
	parts := make([]string, 0, 4)
	if req.SystemPrompt != "" {
		parts = append(parts, req.SystemPrompt)
	}
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	if req.TurnInstructions != "" {
		parts = append(parts, req.TurnInstructions)
	}
	return strings.Join(parts, "\n\n")
}

// convertAnthropicMessages converts generic messages to Anthropic format
func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages)+1)

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))

		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: toolInput(tc.Arguments),
					},
				})
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		case RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}

	if len(result) == 0 {
		result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(openingPrompt)))
	}

	return result
}

func toolInput(arguments string) json.RawMessage {
	if strings.TrimSpace(arguments) == "" || !json.Valid([]byte(arguments)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(arguments)
}

// convertAnthropicTools converts generic tools to Anthropic format
func convertAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: buildAnthropicSchema(tool.Parameters),
			},
		}
	}
	return result
}

func buildAnthropicSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	return anthropic.ToolInputSchemaParam{
		Properties: params["properties"],
		Required:   extractRequiredFields(params),
	}
}

func extractRequiredFields(params map[string]any) []string {
	switch req := params["required"].(type) {
	case []string:
		return req
	case []any:
		result := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

// convertResponse converts an Anthropic response to generic format
func (p *AnthropicProvider) convertResponse(msg *anthropic.Message) *Response {
	var content strings.Builder
	var toolCalls []ToolCall

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args, _ := b.Input.MarshalJSON()
			toolCalls = append(toolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(args),
			})
		}
	}

	return &Response{
		Content:    content.String(),
		Model:      string(msg.Model),
		StopReason: convertAnthropicStopReason(msg.StopReason),
		Usage: Usage{
			InputTokens:     int(msg.Usage.InputTokens),
			OutputTokens:    int(msg.Usage.OutputTokens),
			TotalTokens:     int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			CacheReadTokens: int(msg.Usage.CacheReadInputTokens),
		},
		ToolCalls: toolCalls,
		ProviderMetadata: map[string]any{
			"id": msg.ID,
		},
	}
}

// convertAnthropicStopReason converts Anthropic stop reason to generic format
func convertAnthropicStopReason(reason anthropic.StopReason) StopReason {
	switch reason {
	case anthropic.StopReasonMaxTokens:
		return StopReasonMaxTokens
	case anthropic.StopReasonStopSequence:
		return StopReasonStopSequence
	case anthropic.StopReasonToolUse:
		return StopReasonToolUse
	default:
		return StopReasonEndTurn
	}
}
