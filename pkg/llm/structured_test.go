package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Answer     string   `json:"answer" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"required,min=0,max=1"`
}

type fixedProvider struct {
	response string
	err      error
	opts     Options
}

func (f *fixedProvider) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	return f.Generate(ctx, history[len(history)-1].Content, options...)
}

func (f *fixedProvider) Generate(_ context.Context, _ string, options ...Option) (string, error) {
	for _, o := range options {
		o(&f.opts)
	}
	return f.response, f.err
}

func (f *fixedProvider) Stream(context.Context, []Message, ...Option) (<-chan StreamToken, error) {
	return nil, errors.New("not supported")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{name: "bare object", response: `{"a":1}`, want: `{"a":1}`},
		{name: "markdown fence", response: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", response: `Here you go: {"a":{"b":2}} hope it helps`, want: `{"a":{"b":2}}`},
		{name: "no object", response: "nothing here", want: ""},
		{name: "reversed braces", response: "} oops {", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.response))
		})
	}
}

func TestDecodeStructured(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
	}{
		{name: "valid", response: `{"answer": "yes", "confidence": 0.7}`},
		{name: "zero confidence is present", response: `{"answer": "yes", "confidence": 0}`},
		{name: "missing required field", response: `{"answer": "yes"}`, wantErr: true},
		{name: "out of range", response: `{"answer": "yes", "confidence": 3}`, wantErr: true},
		{name: "wrong type", response: `{"answer": "yes", "confidence": "high"}`, wantErr: true},
		{name: "unknown field", response: `{"answer": "yes", "confidence": 0.5, "extra": true}`, wantErr: true},
		{name: "no json", response: `yes`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v verdict
			err := DecodeStructured(tt.response, &v)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "yes", v.Answer)
			require.NotNil(t, v.Confidence)
		})
	}
}

func TestGenerateStructured(t *testing.T) {
	p := &fixedProvider{response: `{"answer": "ok", "confidence": 1}`}

	var v verdict
	err := GenerateStructured(context.Background(), p, "prompt", &v)

	require.NoError(t, err)
	assert.Equal(t, "ok", v.Answer)
	assert.True(t, p.opts.JSONMode)
	assert.Zero(t, p.opts.Temperature)
}

func TestGenerateStructured_ProviderError(t *testing.T) {
	p := &fixedProvider{err: errors.New("unreachable")}

	var v verdict
	err := GenerateStructured(context.Background(), p, "prompt", &v)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedOutput)
	assert.Contains(t, err.Error(), "unreachable")
}
