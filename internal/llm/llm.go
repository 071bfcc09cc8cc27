package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("llm: empty response from model")
	ErrInvalidJSON   = errors.New("llm: invalid JSON from model")
)

// FieldType is the caller-facing type of a requested output field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
)

// FieldSpec names one key of the structured output the model must fill.
type FieldSpec struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// ValidateFields rejects field lists the response schema cannot express.
func ValidateFields(fields []FieldSpec) error {
	if len(fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("field name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate field name %q", name)
		}
		seen[name] = struct{}{}
		switch f.Type {
		case FieldString, FieldNumber:
		default:
			return fmt.Errorf("field %q has unsupported type %q", name, f.Type)
		}
	}
	return nil
}

// ImageAttachment carries image bytes sent to the model inline.
type ImageAttachment struct {
	MIMEType string
	Data     []byte
}

// Client generates a JSON object matching the requested field list.
type Client interface {
	GenerateStructured(ctx context.Context, prompt string, fields []FieldSpec, img *ImageAttachment) (json.RawMessage, error)
	Name() string
	Close() error
}
