// Package support provides the emotional support persona.
package support

import (
	_ "embed"

	"github.com/adalundhe/duet/core/persona"
)

const (
	// Name is the registry key of the emotional support agent.
	Name = "emotional support agent"

	// TransferTool hands the conversation back to the voice assistant.
	TransferTool = "transfer_to_voice_agent"

	// VoiceTarget is the persona TransferTool hands over to.
	VoiceTarget = "voice agent"

	transferAnnouncement = "I'll transfer you back to our Voice if you do not want emotional support. He will assist you further."
	transferDescription  = "Transfer the user back to the voice assistant when they no longer want emotional support."
)

//go:embed support_prompt.yaml
var defaultPrompt []byte

// DefaultBindings leaves speech on provider defaults and pins the model.
func DefaultBindings() persona.Bindings {
	return persona.Bindings{LLMModel: "gpt-4o-mini"}
}

// Options customizes the persona. Zero values keep the defaults.
type Options struct {
	PromptPath string
	Bindings   persona.Bindings
}

// New builds the emotional support persona.
func New(opts Options) (*persona.Base, error) {
	instructions, err := persona.LoadPrompt(opts.PromptPath, defaultPrompt)
	if err != nil {
		return nil, err
	}

	return persona.New(persona.Config{
		Name:         Name,
		Instructions: instructions,
		Bindings:     persona.MergeBindings(DefaultBindings(), opts.Bindings),
		Actions: []persona.TransferAction{{
			ToolName:     TransferTool,
			Description:  transferDescription,
			Target:       VoiceTarget,
			Announcement: transferAnnouncement,
		}},
	})
}
