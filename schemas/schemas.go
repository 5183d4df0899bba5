// Package schemas provides JSON Schema validation for handoff payloads.
// Schemas are embedded so validation does not depend on the working
// directory the binary runs from.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed target_audience.schema.json
var targetAudienceSchema []byte

//go:embed selected_template.schema.json
var selectedTemplateSchema []byte

//go:embed execution_result.schema.json
var executionResultSchema []byte

// FieldError is a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError reports every field that failed schema validation.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s payload failed validation:\n", ve.Schema))
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ValidateTargetAudience validates a TARGET_AUDIENCE handoff payload.
func ValidateTargetAudience(payload []byte) error {
	return validate("TARGET_AUDIENCE", targetAudienceSchema, payload)
}

// ValidateSelectedTemplate validates a SELECTED_TEMPLATE handoff payload.
func ValidateSelectedTemplate(payload []byte) error {
	return validate("SELECTED_TEMPLATE", selectedTemplateSchema, payload)
}

// ValidateExecutionResult validates an EXECUTION_RESULT handoff payload.
func ValidateExecutionResult(payload []byte) error {
	return validate("EXECUTION_RESULT", executionResultSchema, payload)
}

func validate(name string, schema, payload []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %s payload: %w", name, err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Schema: name}
	for _, desc := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return ve
}
