package appconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema describes the JSON configuration document. Range checks live
// here too so a bad file is rejected before it is decoded.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "hosts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["url"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string"},
          "url":  {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["", "ollama"]}
        }
      }
    },
    "host":              {"type": "string"},
    "model":             {"type": "string"},
    "dataset":           {"type": "string"},
    "textColumns":       {"type": "array", "items": {"type": "string"}},
    "topK":              {"type": "integer", "minimum": 1, "maximum": 10},
    "maxRows":           {"type": "integer", "minimum": 1, "maximum": 100000},
    "temperature":       {"type": "number", "minimum": 0, "maximum": 1.5},
    "maxTokens":         {"type": "integer", "minimum": 32, "maximum": 1024},
    "contextTokenLimit": {"type": "integer", "minimum": 0},
    "stemLanguage":      {"type": "string"},
    "watchDataset":      {"type": "boolean"},
    "timeout":           {"type": "integer", "minimum": 0},
    "debug":             {"type": "boolean"},
    "logFile":           {"type": "string"}
  }
}`

// ValidateDocument checks a raw JSON configuration document against the schema.
func ValidateDocument(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(details, "; "))
}

// ValidateFile reads path and validates it with ValidateDocument.
func ValidateFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file %q: %w", path, err)
	}
	return ValidateDocument(raw)
}
