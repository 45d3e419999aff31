package reasoning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"hellobot-orchestrator/internal/models"
)

// extractionSchema is the contract the extraction pass must honor.
// Anything outside this shape is treated as malformed output.
const extractionSchema = `{
	"type": "object",
	"properties": {
		"intent": {"type": "string"},
		"slots": {
			"type": "object",
			"additionalProperties": {
				"type": ["string", "number", "integer", "boolean", "null"]
			}
		}
	},
	"required": ["intent"]
}`

var extractionSchemaLoader = gojsonschema.NewStringLoader(extractionSchema)

// stripMarkdownFences removes a ```json ... ``` wrapper some models insist
// on adding around JSON output.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseExtraction(content string, registry *models.Registry) (*Extraction, error) {
	cleaned := stripMarkdownFences(content)

	result, err := gojsonschema.Validate(extractionSchemaLoader, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReasoningMalformed, err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("%w: extraction payload failed schema validation", ErrReasoningMalformed)
	}

	var payload struct {
		Intent string                 `json:"intent"`
		Slots  map[string]interface{} `json:"slots"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReasoningMalformed, err)
	}

	extraction := &Extraction{Slots: make(map[string]string, len(payload.Slots))}

	// Unrecognized intent names resolve to "no intent"; the controller
	// falls back to a clarification prompt.
	if _, ok := registry.Intent(payload.Intent); ok {
		extraction.Intent = payload.Intent
	}

	for name, raw := range payload.Slots {
		value := coerceSlotValue(raw)
		if value == "" {
			continue
		}
		extraction.Slots[name] = value
	}

	return extraction, nil
}

func coerceSlotValue(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
