package assemble

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/techpack-cli/internal/model"
)

// DefaultFields is the canonical field list used when no fields file is
// configured.
var DefaultFields = []model.CanonicalField{
	{Name: "Fabric Content", Aliases: []string{"Fiber Content", "Composition", "Content"}, Description: "fiber composition with percentages"},
	{Name: "Fabric Weight", Aliases: []string{"GSM", "Weight"}, Description: "fabric weight with its unit (gsm or oz/yd2)"},
	{Name: "Construction", Aliases: []string{"Knit/Woven", "Fabric Type"}, Description: "knit or woven construction and weave/knit type"},
	{Name: "Country of Origin", Aliases: []string{"COO", "Origin"}, Description: "country where the garment is manufactured"},
	{Name: "Care Instructions", Aliases: []string{"Care", "Care Label"}, Description: "washing and care label text"},
	{Name: "Size Range", Aliases: []string{"Sizes"}, Description: "sizes offered, smallest to largest"},
	{Name: "Colorways", Aliases: []string{"Colors", "Colourways"}, Description: "color names or codes listed for the style"},
	{Name: "Trims", Aliases: []string{"Trim", "Closures"}, Description: "buttons, zippers, labels and other trims"},
	{Name: "Vendor", Aliases: []string{"Factory", "Supplier"}, Description: "factory or supplier name"},
}

// DefaultFieldSet indexes DefaultFields.
func DefaultFieldSet() *model.FieldSet {
	return model.NewFieldSet(append([]model.CanonicalField(nil), DefaultFields...))
}

// LoadFields reads a canonical field list from a YAML file with a
// top-level "fields" key. An empty path yields the defaults.
func LoadFields(path string) (*model.FieldSet, error) {
	if path == "" {
		return DefaultFieldSet(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "assemble: read fields %s", path)
	}

	var wrapper struct {
		Fields []model.CanonicalField `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "assemble: parse fields")
	}
	if len(wrapper.Fields) == 0 {
		return nil, eris.Errorf("assemble: %s defines no fields", path)
	}

	seen := make(map[string]bool, len(wrapper.Fields))
	for i, f := range wrapper.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, eris.Errorf("assemble: field %d has no name", i+1)
		}
		norm := model.NormalizeColumn(name)
		if seen[norm] {
			return nil, eris.Errorf("assemble: duplicate field %q", name)
		}
		seen[norm] = true
		wrapper.Fields[i].Name = name
	}
	return model.NewFieldSet(wrapper.Fields), nil
}
