package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/techpack-cli/internal/model"
)

// responseSchema accepts a map of field name to either a scalar value or a
// {value, rationale, needs_review} object.
const responseSchema = `{
  "type": "object",
  "additionalProperties": {
    "anyOf": [
      {"type": ["string", "number", "boolean", "null"]},
      {
        "type": "object",
        "properties": {
          "value": {"type": ["string", "number", "boolean", "null"]},
          "rationale": {"type": ["string", "null"]},
          "needs_review": {"type": ["boolean", "string", "null"]}
        }
      }
    ]
  }
}`

var schema = jsonschema.MustCompileString("techpack-response.json", responseSchema)

// ParseResponse recovers the field bundle from a model reply. Markdown
// fences and surrounding prose are tolerated; the outermost {...} span is
// decoded and may either wrap the bundle under "fields" or be the bundle
// itself. Unknown names are dropped and canonical fields the reply omits
// come back empty with NeedsReview set.
func ParseResponse(text string, fields *model.FieldSet) (model.ExtractionResult, error) {
	body, ok := cleanJSON(text)
	if !ok {
		return nil, eris.Wrap(ErrParse, "no JSON object in response")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, eris.Wrapf(ErrParse, "decode response: %v", err)
	}
	if inner, ok := raw["fields"].(map[string]any); ok {
		raw = inner
	}
	if err := schema.Validate(raw); err != nil {
		return nil, eris.Wrapf(ErrParse, "response shape: %v", err)
	}

	result := make(model.ExtractionResult, fields.Len())
	for name, v := range raw {
		f := fields.Lookup(name)
		if f == nil {
			continue
		}
		if _, seen := result[f.Name]; seen && name != f.Name {
			continue
		}
		result[f.Name] = toFieldExtraction(v)
	}
	for _, f := range fields.Fields {
		if _, ok := result[f.Name]; !ok {
			result[f.Name] = model.FieldExtraction{NeedsReview: true}
		}
	}
	return result, nil
}

// cleanJSON strips markdown fences and returns the span from the first '{'
// to the last '}'.
func cleanJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func toFieldExtraction(v any) model.FieldExtraction {
	obj, ok := v.(map[string]any)
	if !ok {
		return model.FieldExtraction{Value: scalarString(v)}
	}
	fe := model.FieldExtraction{
		Value:     scalarString(obj["value"]),
		Rationale: scalarString(obj["rationale"]),
	}
	switch nr := obj["needs_review"].(type) {
	case bool:
		fe.NeedsReview = nr
	case string:
		fe.NeedsReview, _ = strconv.ParseBool(strings.TrimSpace(nr))
	}
	return fe
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
