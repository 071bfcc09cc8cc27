package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	genai "google.golang.org/genai"

	"structify/internal/util/jsonutil"
)

// responseSchema builds the Gemini response schema for a field list:
// a single OBJECT whose properties are all required.
func responseSchema(fields []FieldSpec) *genai.Schema {
	properties := make(map[string]*genai.Schema, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		t := genai.TypeString
		if f.Type == FieldNumber {
			t = genai.TypeNumber
		}
		properties[name] = &genai.Schema{Type: t}
		required = append(required, name)
	}
	sort.Strings(required)
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   required,
	}
}

// ValidateResult checks the model output against the requested fields and
// returns the object reduced to exactly those fields. Numeric strings are
// coerced to numbers and numbers to strings where the schema asks for the
// other representation; anything else fails.
func ValidateResult(raw json.RawMessage, fields []FieldSpec) (json.RawMessage, error) {
	var obj map[string]any
	if err := jsonutil.UnmarshalFlex(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		val, ok := obj[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidJSON, name)
		}
		switch f.Type {
		case FieldString:
			switch v := val.(type) {
			case string:
				out[name] = v
			case float64:
				out[name] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				return nil, fmt.Errorf("%w: field %q is not a string", ErrInvalidJSON, name)
			}
		case FieldNumber:
			switch v := val.(type) {
			case float64:
				out[name] = v
			case string:
				n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil {
					return nil, fmt.Errorf("%w: field %q is not a number", ErrInvalidJSON, name)
				}
				out[name] = n
			default:
				return nil, fmt.Errorf("%w: field %q is not a number", ErrInvalidJSON, name)
			}
		}
	}

	validated, err := jsonutil.MarshalNoEscape(out)
	if err != nil {
		return nil, err
	}
	return validated, nil
}
