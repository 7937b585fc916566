package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// BuildTimetableJSONSchema returns the JSON-Schema (draft 2020-12 subset) the structuring
// model must satisfy, as a generic map. It is embedded in the prompt and used locally to validate.
func BuildTimetableJSONSchema() map[string]any {
	days := make([]string, len(constants.AllDays))
	for i, d := range constants.AllDays {
		days[i] = string(d)
	}
	block := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"day":        map[string]any{"type": "string", "enum": days},
			"start_time": map[string]any{"type": "string", "pattern": constants.TimePattern.String()},
			"end_time":   map[string]any{"type": "string", "pattern": constants.TimePattern.String()},
			"subject":    map[string]any{"type": "string", "minLength": 1},
			"classroom":  map[string]any{"type": "string"},
			"grade":      map[string]any{"type": "string"},
			"section":    map[string]any{"type": "string"},
			"notes":      map[string]any{"type": "string"},
		},
		"required": []string{"day", "start_time", "end_time", "subject"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"teacher_name":  map[string]any{"type": "string"},
			"time_blocks":   map[string]any{"type": "array", "items": block},
			"academic_year": map[string]any{"type": "string", "pattern": `^$|^\d{4}-\d{4}$|^\d{4}/\d{2}$`},
			"semester":      map[string]any{"type": "string"},
		},
		"required": []string{"teacher_name", "time_blocks"},
	}
}

// CompileSchema compiles a schema map once for repeated validation.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSON validates data against a compiled schema.
func ValidateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := CompileSchema(schemaMap)
	if err != nil {
		return err
	}
	return ValidateJSON(schema, data)
}

// ExtractJSONObject strips markdown code fences and surrounding prose from a model reply,
// returning the outermost JSON object.
func ExtractJSONObject(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	return []byte(s[start : end+1]), nil
}
