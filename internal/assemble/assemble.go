// Package assemble merges extraction results back onto the original input
// rows and writes the result tables.
package assemble

import (
	"strings"

	"github.com/sells-group/techpack-cli/internal/model"
)

// LinkColumn is the header of the derived artifact link column.
const LinkColumn = "Tech Pack Link"

var notApplicable = map[string]bool{
	"n/a":            true,
	"na":             true,
	"n.a.":           true,
	"n.a":            true,
	"not applicable": true,
	"none":           true,
	"-":              true,
}

// CleanValue maps the "not applicable" sentinels a model uses for absent
// values to the empty string.
func CleanValue(v string) string {
	v = strings.TrimSpace(v)
	if notApplicable[strings.ToLower(v)] {
		return ""
	}
	return v
}

// Assemble builds the output table and the audit table. Every input row
// appears once, grouped by key in first-seen order, with rows that have no
// key last. Non-empty input values
// in canonical columns are never overwritten, and a link is only attached
// to keys that have an extraction result.
func Assemble(items *model.WorkItems, fields *model.FieldSet, results map[string]model.ExtractionResult, links map[string]string) *model.JobOutput {
	layout := newLayout(items.Header, fields)
	out := &model.JobOutput{
		Header: layout.header(fields),
		Rows:   make([][]string, 0, items.TotalRows),
		Audit:  []model.AuditRow{},
	}

	for _, key := range items.Keys {
		result, extracted := results[key]
		for _, row := range items.Rows[key] {
			out.Rows = append(out.Rows, layout.render(row, fields, result, extracted, links[key]))
		}
		if !extracted {
			continue
		}
		for _, f := range fields.Fields {
			fe := result[f.Name]
			out.Audit = append(out.Audit, model.AuditRow{
				Key:         key,
				Field:       f.Name,
				Value:       fe.Value,
				Rationale:   fe.Rationale,
				NeedsReview: fe.NeedsReview,
			})
		}
	}
	for _, row := range items.Unkeyed {
		out.Rows = append(out.Rows, layout.render(row, fields, nil, false, ""))
	}
	return out
}

// layout maps input columns onto the output header.
type layout struct {
	idColumn  string
	canonical map[string]int // field name -> input column index
	linkIndex int
	rest      []int
	restNames []string
}

func newLayout(header []string, fields *model.FieldSet) *layout {
	l := &layout{
		idColumn:  "Style",
		canonical: make(map[string]int),
		linkIndex: -1,
	}
	if len(header) > 0 && strings.TrimSpace(header[0]) != "" {
		l.idColumn = header[0]
	}

	linkNorm := model.NormalizeColumn(LinkColumn)
	for i := 1; i < len(header); i++ {
		norm := model.NormalizeColumn(header[i])
		if f := fields.Lookup(header[i]); f != nil {
			if _, dup := l.canonical[f.Name]; !dup {
				l.canonical[f.Name] = i
				continue
			}
		}
		if norm == linkNorm && l.linkIndex < 0 {
			l.linkIndex = i
			continue
		}
		l.rest = append(l.rest, i)
		l.restNames = append(l.restNames, header[i])
	}
	return l
}

func (l *layout) header(fields *model.FieldSet) []string {
	h := make([]string, 0, 2+fields.Len()+len(l.rest))
	h = append(h, l.idColumn)
	h = append(h, fields.Names()...)
	h = append(h, LinkColumn)
	return append(h, l.restNames...)
}

func (l *layout) render(row model.Row, fields *model.FieldSet, result model.ExtractionResult, extracted bool, link string) []string {
	cell := func(i int) string {
		if i < 0 || i >= len(row.Values) {
			return ""
		}
		return row.Values[i]
	}

	out := make([]string, 0, 2+fields.Len()+len(l.rest))
	out = append(out, cell(0))

	for _, f := range fields.Fields {
		idx, ok := l.canonical[f.Name]
		if existing := cell(idx); ok && strings.TrimSpace(existing) != "" {
			out = append(out, existing)
			continue
		}
		if extracted {
			out = append(out, CleanValue(result[f.Name].Value))
		} else {
			out = append(out, "")
		}
	}

	switch existing := cell(l.linkIndex); {
	case strings.TrimSpace(existing) != "":
		out = append(out, existing)
	case extracted:
		out = append(out, link)
	default:
		out = append(out, "")
	}

	for _, i := range l.rest {
		out = append(out, cell(i))
	}
	return out
}
