// Package conversation holds the conversation history shared by personas:
// immutable items and the ordered context they live in.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Item Types
// =============================================================================

// ItemType tags what kind of turn an Item records.
type ItemType string

const (
	// ItemTypeMessage is a plain chat message.
	ItemTypeMessage ItemType = "message"
	// ItemTypeFunctionCall is a tool invocation requested by the model.
	ItemTypeFunctionCall ItemType = "function_call"
	// ItemTypeFunctionCallOutput is the result of a tool invocation.
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

// IsFunction reports whether the type is a function call or its output.
func (t ItemType) IsFunction() bool {
	return t == ItemTypeFunctionCall || t == ItemTypeFunctionCallOutput
}

// Role identifies the author of a message item.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// =============================================================================
// Item
// =============================================================================

// FunctionCall is the payload of a function_call item.
type FunctionCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionOutput is the payload of a function_call_output item.
type FunctionOutput struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// Item is one turn of the conversation. Items are values: they are copied
// between contexts but never modified after construction.
type Item struct {
	ID        string          `json:"id"`
	Type      ItemType        `json:"type"`
	Role      Role            `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	Call      *FunctionCall   `json:"call,omitempty"`
	Output    *FunctionOutput `json:"output,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewMessage creates a message item with a fresh id.
func NewMessage(role Role, content string) Item {
	return Item{
		ID:        newItemID(),
		Type:      ItemTypeMessage,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewFunctionCall creates a function_call item with a fresh id.
func NewFunctionCall(callID, name, arguments string) Item {
	return Item{
		ID:   newItemID(),
		Type: ItemTypeFunctionCall,
		Call: &FunctionCall{
			CallID:    callID,
			Name:      name,
			Arguments: arguments,
		},
		CreatedAt: time.Now(),
	}
}

// NewFunctionCallOutput creates a function_call_output item with a fresh id.
func NewFunctionCallOutput(callID, name, output string) Item {
	return Item{
		ID:   newItemID(),
		Type: ItemTypeFunctionCallOutput,
		Output: &FunctionOutput{
			CallID: callID,
			Name:   name,
			Output: output,
		},
		CreatedAt: time.Now(),
	}
}

// IsSystemMessage reports whether the item is a system-role message.
func (i Item) IsSystemMessage() bool {
	return i.Type == ItemTypeMessage && i.Role == RoleSystem
}

// Clone returns a deep copy so payload pointers are never shared.
func (i Item) Clone() Item {
	out := i
	if i.Call != nil {
		call := *i.Call
		out.Call = &call
	}
	if i.Output != nil {
		output := *i.Output
		out.Output = &output
	}
	return out
}

func newItemID() string {
	return "item_" + uuid.New().String()
}
