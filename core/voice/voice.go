// Package voice defines the speech boundary of a conversation. Recognition
// and synthesis engines are external; rooms carry whatever the pipeline
// produces.
package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/adalundhe/duet/core/persona"
)

// ErrNoAudio is returned when a text-only pipeline is handed audio.
var ErrNoAudio = errors.New("pipeline does not accept audio")

// RecognizeOptions selects the recognition model for one persona.
type RecognizeOptions struct {
	Model    string
	Language string
}

// SynthesizeOptions selects the synthesis model and voice for one persona.
type SynthesizeOptions struct {
	Model string
	Voice string
}

// Recognizer turns user audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, opts RecognizeOptions) (string, error)
}

// Synthesizer turns persona text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error)
}

// Pipeline pairs a recognizer and synthesizer. Either may be nil, in which
// case that direction stays text.
type Pipeline struct {
	Recognizer  Recognizer
	Synthesizer Synthesizer
}

// Text is the pipeline used by text rooms.
func Text() Pipeline {
	return Pipeline{}
}

// Transcribe recognizes audio with the persona's bindings.
func (p Pipeline) Transcribe(ctx context.Context, audio []byte, b persona.Bindings) (string, error) {
	if p.Recognizer == nil {
		return "", ErrNoAudio
	}
	text, err := p.Recognizer.Recognize(ctx, audio, RecognizeOptions{Model: b.STTModel, Language: b.STTLanguage})
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}

// Render synthesizes text with the persona's bindings. Without a
// synthesizer it returns nil audio and the text is delivered as is.
func (p Pipeline) Render(ctx context.Context, text string, b persona.Bindings) ([]byte, error) {
	if p.Synthesizer == nil {
		return nil, nil
	}
	audio, err := p.Synthesizer.Synthesize(ctx, text, SynthesizeOptions{Model: b.TTSModel, Voice: b.TTSVoice})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return audio, nil
}

// Speaks reports whether the pipeline produces audio.
func (p Pipeline) Speaks() bool {
	return p.Synthesizer != nil
}
