package providers

import (
	"github.com/adalundhe/duet/core/conversation"
	"github.com/adalundhe/duet/core/persona"
)

// MessagesFromItems converts a persona context into provider messages.
// Consecutive function calls fold into one assistant message so providers
// see a call turn followed by its outputs.
func MessagesFromItems(items []conversation.Item) []Message {
	messages := make([]Message, 0, len(items))

	for _, item := range items {
		switch item.Type {
		case conversation.ItemTypeFunctionCall:
			call := ToolCall{ID: item.Call.CallID, Name: item.Call.Name, Arguments: item.Call.Arguments}
			if n := len(messages); n > 0 && messages[n-1].Role == RoleAssistant && len(messages[n-1].ToolCalls) > 0 {
				messages[n-1].ToolCalls = append(messages[n-1].ToolCalls, call)
				continue
			}
			messages = append(messages, Message{Role: RoleAssistant, ToolCalls: []ToolCall{call}})

		case conversation.ItemTypeFunctionCallOutput:
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    item.Output.Output,
				ToolCallID: item.Output.CallID,
				ToolName:   item.Output.Name,
			})

		default:
			messages = append(messages, Message{Role: Role(item.Role), Content: item.Content})
		}
	}

	return messages
}

// ToolsFromPersona converts persona tool specs.
func ToolsFromPersona(tools []persona.Tool) []Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]Tool, len(tools))
	for i, t := range tools {
		out[i] = Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return out
}

// RequestFor builds the request for p's next turn.
func RequestFor(p persona.Persona, turnInstructions string) *Request {
	return &Request{
		Model:            p.Bindings().LLMModel,
		SystemPrompt:     p.Instructions(),
		TurnInstructions: turnInstructions,
		Messages:         MessagesFromItems(p.ChatContext().Items()),
		Tools:            ToolsFromPersona(p.Tools()),
	}
}
