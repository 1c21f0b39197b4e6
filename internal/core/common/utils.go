package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ParseJSON cleans and unmarshals a JSON string into a type T.
// It handles common LLM quirks like surrounding markdown or extra text,
// and falls back to repairing malformed JSON (trailing commas, unquoted keys,
// truncated output) before giving up.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	start := strings.IndexByte(response, '{')
	if start == -1 {
		return zero, fmt.Errorf("no JSON object found in response (missing '{')")
	}
	jsonStr := response[start:]
	if end := strings.LastIndexByte(jsonStr, '}'); end != -1 {
		jsonStr = jsonStr[:end+1]
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err == nil {
		return result, nil
	}

	repaired, err := jsonrepair.JSONRepair(jsonStr)
	if err != nil {
		return zero, fmt.Errorf("failed to repair JSON: %w\nData: %s", err, jsonStr)
	}
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, repaired)
	}
	return result, nil
}

// GenerateSchema reflects T into an inline JSON schema suitable for prompts
// and structured output requests.
func GenerateSchema[T any]() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(&v)
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return data, nil
}
