package providers

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Generator over OpenAI's Responses API
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

type OpenAIModel string

const (
	GPT4oMini OpenAIModel = "gpt-4o-mini"
	GPT4o     OpenAIModel = "gpt-4o"
)

// NewOpenAIProvider creates a new OpenAI provider with the given configuration
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	defaults := DefaultOpenAIConfig()
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
	if config.Organization != "" {
		opts = append(opts, option.WithHeader("OpenAI-Organization", config.Organization))
	}
	if config.Project != "" {
		opts = append(opts, option.WithHeader("OpenAI-Project", config.Project))
	}

	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client: &client,
		config: config,
	}, nil
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return string(ProviderTypeOpenAI)
}

// Generate performs a non-streaming completion request
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	params := p.buildResponseParams(req)

	result, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return nil, classify("openai", err)
	}

	return p.convertResponse(result), nil
}

// buildResponseParams constructs OpenAI API parameters from a Request
func (p *OpenAIProvider) buildResponseParams(req *Request) responses.ResponseNewParams {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: convertResponseMessages(req),
		},
		MaxOutputTokens: openai.Int(int64(maxTokens)),
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if p.config.Temperature > 0 {
		params.Temperature = openai.Float(p.config.Temperature)
	}

	if len(req.Tools) > 0 {
		params.Tools = convertResponseTools(req.Tools)
	}

	return params
}

func convertResponseMessages(req *Request) responses.ResponseInputParam {
	result := make(responses.ResponseInputParam, 0, len(req.Messages)+2)

	if req.SystemPrompt != "" {
		result = append(result, responses.ResponseInputItemParamOfMessage(req.SystemPrompt, responses.EasyInputMessageRoleSystem))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleSystem))
		case RoleUser:
			result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		case RoleAssistant:
			if msg.Content != "" {
				result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range msg.ToolCalls {
				result = append(result, responses.ResponseInputItemParamOfFunctionCall(tc.Arguments, tc.ID, tc.Name))
			}
		case RoleTool:
			result = append(result, responses.ResponseInputItemParamOfFunctionCallOutput(msg.ToolCallID, msg.Content))
		}
	}

	if req.TurnInstructions != "" {
		result = append(result, responses.ResponseInputItemParamOfMessage(req.TurnInstructions, responses.EasyInputMessageRoleSystem))
	}

	return result
}

func convertResponseTools(tools []Tool) []responses.ToolUnionParam {
	result := make([]responses.ToolUnionParam, len(tools))
	for i, tool := range tools {
		result[i] = responses.ToolParamOfFunction(tool.Name, ensureObjectType(tool.Parameters), false)
		if tool.Description != "" {
			function := result[i].OfFunction
			function.Description = openai.String(tool.Description)
			result[i].OfFunction = function
		}
	}
	return result
}

func (p *OpenAIProvider) convertResponse(result *responses.Response) *Response {
	if result == nil {
		return &Response{StopReason: StopReasonError}
	}

	response := &Response{
		Content:    result.OutputText(),
		Model:      string(result.Model),
		StopReason: convertResponseStopReason(*result),
		Usage: Usage{
			InputTokens:  int(result.Usage.InputTokens),
			OutputTokens: int(result.Usage.OutputTokens),
			TotalTokens:  int(result.Usage.TotalTokens),
		},
		ProviderMetadata: map[string]any{
			"id": result.ID,
		},
	}

	for _, item := range result.Output {
		if item.Type == "function_call" {
			response.ToolCalls = append(response.ToolCalls, ToolCall{
				ID:        item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}
	if len(response.ToolCalls) > 0 {
		response.StopReason = StopReasonToolUse
	}

	return response
}

func convertResponseStopReason(result responses.Response) StopReason {
	switch result.IncompleteDetails.Reason {
	case "":
	case "max_output_tokens":
		return StopReasonMaxTokens
	default:
		return StopReasonError
	}
	if result.Error.Message != "" {
		return StopReasonError
	}
	return StopReasonEndTurn
}

func ensureObjectType(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object"}
	}
	if _, hasType := params["type"]; !hasType {
		params["type"] = "object"
	}
	return params
}
