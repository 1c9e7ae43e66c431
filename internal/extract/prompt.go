package extract

import (
	"fmt"
	"strings"

	"github.com/sells-group/techpack-cli/internal/model"
)

// SystemPrompt lists the canonical fields and the reply format. It is
// identical for every item of a job so it can be prompt-cached.
func SystemPrompt(fields *model.FieldSet) string {
	var sb strings.Builder
	sb.WriteString("You read garment tech pack PDFs and extract product attributes.\n\n")
	sb.WriteString("Fields:\n")
	for _, f := range fields.Fields {
		sb.WriteString("- ")
		sb.WriteString(f.Name)
		if f.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(f.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(`
Reply with a single JSON object and nothing else:
{"fields": {"<field name>": {"value": "...", "rationale": "where in the document this came from", "needs_review": false}}}

Use the field names exactly as listed. If the document does not state a
value, use "N/A" and set needs_review to true. Set needs_review to true
whenever the value is inferred rather than stated.`)
	return sb.String()
}

func userPrompt(key string) string {
	return fmt.Sprintf("Extract the fields for style %s from the attached tech pack.", key)
}
