// Package voice provides the general voice assistant persona, the first
// persona every conversation starts with.
package voice

import (
	_ "embed"

	"github.com/adalundhe/duet/core/persona"
)

const (
	// Name is the registry key of the voice assistant.
	Name = "voice agent"

	// TransferTool hands the conversation to the emotional support agent.
	TransferTool = "transfer_to_emotional_support_agent"

	// SupportTarget is the persona TransferTool hands over to.
	SupportTarget = "emotional support agent"

	transferAnnouncement = "I'll transfer you to our Emotional Support agent who can help you to deal with emotional distress."
	transferDescription  = "Transfer the user to the emotional support agent when they are in emotional distress."
)

//go:embed voice_prompt.yaml
var defaultPrompt []byte

// DefaultBindings are the backends the voice assistant speaks through.
func DefaultBindings() persona.Bindings {
	return persona.Bindings{
		LLMModel:    "gpt-4o-mini",
		STTModel:    "nova-3",
		STTLanguage: "multi",
		TTSModel:    "sonic-2",
		TTSVoice:    "f786b574-daa5-4673-aa0c-cbe3e8534c02",
	}
}

// Options customizes the persona. Zero values keep the defaults.
type Options struct {
	PromptPath string
	Bindings   persona.Bindings
}

// New builds the voice assistant persona.
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
			Target:       SupportTarget,
			Announcement: transferAnnouncement,
		}},
	})
}
