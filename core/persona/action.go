package persona

import (
	"context"
	"fmt"
)

// Tool is a callable exposed to the language model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// TransferAction hands the conversation to another persona. Invoking it
// speaks Announcement and then transfers to Target.
type TransferAction struct {
	ToolName     string
	Description  string
	Target       string
	Announcement string
}

// Tool returns the tool spec for the action. Transfers take no arguments.
func (a TransferAction) Tool() Tool {
	return Tool{
		Name:        a.ToolName,
		Description: a.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

// Run speaks the announcement synchronously, then requests the transfer.
func (a TransferAction) Run(ctx context.Context, rc RunContext) (Persona, error) {
	if a.Announcement != "" {
		if err := rc.Say(ctx, a.Announcement); err != nil {
			return nil, fmt.Errorf("announce transfer to %q: %w", a.Target, err)
		}
	}
	return rc.Transfer(ctx, a.Target)
}

func (a TransferAction) validate() error {
	if a.ToolName == "" {
		return fmt.Errorf("transfer action needs a tool name")
	}
	if a.Target == "" {
		return fmt.Errorf("transfer action %q needs a target", a.ToolName)
	}
	return nil
}
