package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedOutput marks a structured response that does not match the expected shape.
var ErrMalformedOutput = errors.New("malformed structured output")

var validate = validator.New()

// GenerateStructured runs prompt through the provider and decodes the JSON answer into out.
// Unknown fields, missing required fields and out-of-range values are rejected rather than
// coerced; out must be a pointer to a struct carrying `validate` tags.
func GenerateStructured(ctx context.Context, p LLMProvider, prompt string, out any, opts ...Option) error {
	opts = append([]Option{WithTemperature(0), WithJSONMode()}, opts...)

	response, err := p.Generate(ctx, prompt, opts...)
	if err != nil {
		return fmt.Errorf("llm generation failed: %w", err)
	}

	return DecodeStructured(response, out)
}

// DecodeStructured strictly decodes a raw model response into out.
func DecodeStructured(response string, out any) error {
	jsonContent := ExtractJSON(response)
	if jsonContent == "" {
		return fmt.Errorf("%w: no JSON object in response", ErrMalformedOutput)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(jsonContent)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	return nil
}

// ExtractJSON isolates the outermost JSON object of a response
func ExtractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}
