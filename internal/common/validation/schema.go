package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	apperrors "lca-assistant/internal/common/errors"
)

// ChatRequestSchema is the inbound chat payload: {"message": "<non-empty>"}.
const ChatRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"message": {"type": "string", "minLength": 1, "maxLength": 2000}
	},
	"required": ["message"]
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var (
	chatSchemaOnce sync.Once
	chatSchema     *gojsonschema.Schema
	chatSchemaErr  error
)

func compiledChatSchema() (*gojsonschema.Schema, error) {
	chatSchemaOnce.Do(func() {
		chatSchema, chatSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(ChatRequestSchema))
	})
	return chatSchema, chatSchemaErr
}

// ValidateChatRequest checks a raw request body against ChatRequestSchema.
func ValidateChatRequest(body []byte) error {
	schema, err := compiledChatSchema()
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("compile chat schema: %w", err))
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperrors.NewValidationError("body", "request body must be a JSON object")
	}
	return toError(describe(result))
}

// ValidateDocument validates data against an ad hoc schema map.
func ValidateDocument(schemaMap, data map[string]interface{}) *ValidationResult {
	if len(schemaMap) == 0 {
		return &ValidationResult{Valid: true}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schemaMap), gojsonschema.NewGoLoader(data))
	if err != nil {
		return &ValidationResult{
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "SCHEMA_ERROR"}},
		}
	}
	return describe(result)
}

func describe(result *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}

func toError(result *ValidationResult) error {
	if result.Valid || len(result.Errors) == 0 {
		return nil
	}
	first := result.Errors[0]
	if first.Field == "message" && first.Code == "STRING_GTE" {
		return apperrors.NewValidationError("message", "message must not be empty")
	}
	return apperrors.NewValidationError(first.Field, fmt.Sprintf("%s: %s", first.Field, first.Message))
}
