// Package schema publishes JSON schemas for the outbound events and checks
// events against them before they leave the service.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/invopop/jsonschema"

	"ai-speech-pacing-service/internal/models"
)

var (
	ErrUnknownEvent = errors.New("schema: unknown event type")
	ErrInvalidEvent = errors.New("schema: event does not match schema")
)

// Validator holds one reflected schema per event type.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New reflects the schemas of every outbound event.
func New() *Validator {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return &Validator{
		schemas: map[string]*jsonschema.Schema{
			models.EventTypePaced:  r.Reflect(&models.TranscriptPaced{}),
			models.EventTypeFinal:  r.Reflect(&models.TranscriptFinal{}),
			models.EventTypeClosed: r.Reflect(&models.StreamClosed{}),
		},
	}
}

// Schema returns the schema of eventType.
func (v *Validator) Schema(eventType string) (*jsonschema.Schema, bool) {
	s, ok := v.schemas[eventType]
	return s, ok
}

// EventTypes lists the event types with a schema.
func (v *Validator) EventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for t := range v.schemas {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Validate checks event against the schema named by its eventType field.
func (v *Validator) Validate(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("schema: marshal event: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%w: not an object", ErrInvalidEvent)
	}

	eventType, _ := doc["eventType"].(string)
	s, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
	return check(s, doc, "")
}

func check(s *jsonschema.Schema, value any, path string) error {
	if s == nil {
		return nil
	}
	if len(s.Enum) > 0 && !slices.Contains(s.Enum, value) {
		return fmt.Errorf("%w: %s must be one of %v", ErrInvalidEvent, pathOrRoot(path), s.Enum)
	}

	switch s.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return typeError(path, s.Type, value)
		}
		for _, name := range s.Required {
			if _, ok := obj[name]; !ok {
				return fmt.Errorf("%w: missing required field %s", ErrInvalidEvent, join(path, name))
			}
		}
		if s.Properties == nil {
			return nil
		}
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			field, ok := obj[pair.Key]
			if !ok {
				continue
			}
			if err := check(pair.Value, field, join(path, pair.Key)); err != nil {
				return err
			}
		}
	case "array":
		if value == nil {
			// encoding/json writes nil slices as null.
			return nil
		}
		items, ok := value.([]any)
		if !ok {
			return typeError(path, s.Type, value)
		}
		for i, item := range items {
			if err := check(s.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return typeError(path, s.Type, value)
		}
	case "integer":
		n, ok := value.(float64)
		if !ok || n != math.Trunc(n) {
			return typeError(path, s.Type, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(path, s.Type, value)
		}
	}
	return nil
}

func typeError(path, want string, value any) error {
	return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidEvent, pathOrRoot(path), want, value)
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func pathOrRoot(path string) string {
	if path == "" {
		return "event"
	}
	return path
}
