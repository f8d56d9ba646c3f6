package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/adalundhe/duet/core/persona"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	got RecognizeOptions
	err error
}

func (s *stubRecognizer) Recognize(_ context.Context, audio []byte, opts RecognizeOptions) (string, error) {
	s.got = opts
	return string(audio), s.err
}

type stubSynthesizer struct {
	got SynthesizeOptions
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text string, opts SynthesizeOptions) ([]byte, error) {
	s.got = opts
	return []byte("pcm:" + text), nil
}

func TestText(t *testing.T) {
	p := Text()
	assert.False(t, p.Speaks())

	_, err := p.Transcribe(context.Background(), []byte("x"), persona.Bindings{})
	assert.ErrorIs(t, err, ErrNoAudio)

	audio, err := p.Render(context.Background(), "hello", persona.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, audio)
}

func TestPipeline_UsesBindings(t *testing.T) {
	rec, syn := &stubRecognizer{}, &stubSynthesizer{}
	p := Pipeline{Recognizer: rec, Synthesizer: syn}
	b := persona.Bindings{STTModel: "nova-3", STTLanguage: "multi", TTSModel: "sonic-2", TTSVoice: "v"}

	text, err := p.Transcribe(context.Background(), []byte("hi"), b)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
	assert.Equal(t, RecognizeOptions{Model: "nova-3", Language: "multi"}, rec.got)

	audio, err := p.Render(context.Background(), "ok", b)
	require.NoError(t, err)
	assert.Equal(t, []byte("pcm:ok"), audio)
	assert.Equal(t, SynthesizeOptions{Model: "sonic-2", Voice: "v"}, syn.got)
	assert.True(t, p.Speaks())
}

func TestPipeline_RecognizeError(t *testing.T) {
	p := Pipeline{Recognizer: &stubRecognizer{err: errors.New("boom")}}
	_, err := p.Transcribe(context.Background(), nil, persona.Bindings{})
	assert.Error(t, err)
}
