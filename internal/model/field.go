package model

// CanonicalField is one named output column the extraction stage fills.
// Aliases are alternate spellings accepted from input headers and model
// responses.
type CanonicalField struct {
	Name        string   `json:"name" yaml:"name"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases"`
	Description string   `json:"description,omitempty" yaml:"description"`
}

// FieldSet is an ordered collection of canonical fields with lookup by any
// normalized name or alias.
type FieldSet struct {
	Fields []CanonicalField
	byName map[string]*CanonicalField
}

// NewFieldSet indexes fields by normalized name and alias. When two fields
// claim the same spelling the first one wins.
func NewFieldSet(fields []CanonicalField) *FieldSet {
	s := &FieldSet{
		Fields: fields,
		byName: make(map[string]*CanonicalField, len(fields)*2),
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		for _, n := range append([]string{f.Name}, f.Aliases...) {
			k := NormalizeColumn(n)
			if _, taken := s.byName[k]; k != "" && !taken {
				s.byName[k] = f
			}
		}
	}
	return s
}

// Names returns the canonical names in order.
func (s *FieldSet) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Lookup resolves a name or alias to its canonical field, or nil.
func (s *FieldSet) Lookup(name string) *CanonicalField {
	return s.byName[NormalizeColumn(name)]
}

// Len returns the number of canonical fields.
func (s *FieldSet) Len() int {
	return len(s.Fields)
}
