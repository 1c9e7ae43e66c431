package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/techpack-cli/internal/model"
)

func testFields() *model.FieldSet {
	return model.NewFieldSet([]model.CanonicalField{
		{Name: "Fabric Content", Aliases: []string{"Composition"}},
		{Name: "Country of Origin", Aliases: []string{"COO"}},
		{Name: "Care Instructions"},
	})
}

func TestParseResponse_WrappedFields(t *testing.T) {
	text := `{"fields": {
		"Fabric Content": {"value": "100% cotton", "rationale": "BOM page 2", "needs_review": false},
		"Country of Origin": {"value": "Portugal", "rationale": "cover", "needs_review": true},
		"Care Instructions": {"value": "Machine wash cold", "rationale": "label spec"}
	}}`

	res, err := ParseResponse(text, testFields())
	require.NoError(t, err)
	assert.Equal(t, model.FieldExtraction{Value: "100% cotton", Rationale: "BOM page 2"}, res["Fabric Content"])
	assert.True(t, res["Country of Origin"].NeedsReview)
	assert.Equal(t, "Machine wash cold", res["Care Instructions"].Value)
}

func TestParseResponse_FlatObjectWithProseAndFences(t *testing.T) {
	text := "Here is what I found:\n```json\n{\"Composition\": \"95% polyester, 5% elastane\", \"COO\": \"Vietnam\", \"Unknown\": \"x\"}\n```\nLet me know."

	res, err := ParseResponse(text, testFields())
	require.NoError(t, err)
	assert.Equal(t, "95% polyester, 5% elastane", res["Fabric Content"].Value)
	assert.Equal(t, "Vietnam", res["Country of Origin"].Value)
	assert.NotContains(t, res, "Unknown")
	assert.Len(t, res, 3)
}

func TestParseResponse_MissingFieldsNeedReview(t *testing.T) {
	res, err := ParseResponse(`{"fields": {"Fabric Content": {"value": "linen"}}}`, testFields())
	require.NoError(t, err)
	assert.Equal(t, model.FieldExtraction{NeedsReview: true}, res["Country of Origin"])
	assert.Equal(t, model.FieldExtraction{NeedsReview: true}, res["Care Instructions"])
	assert.False(t, res["Fabric Content"].NeedsReview)
}

func TestParseResponse_ScalarConversions(t *testing.T) {
	res, err := ParseResponse(`{"Fabric Content": 180, "Country of Origin": null, "Care Instructions": {"value": true, "needs_review": "true"}}`, testFields())
	require.NoError(t, err)
	assert.Equal(t, "180", res["Fabric Content"].Value)
	assert.Equal(t, "", res["Country of Origin"].Value)
	assert.Equal(t, "true", res["Care Instructions"].Value)
	assert.True(t, res["Care Instructions"].NeedsReview)
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no object", "I could not read the document."},
		{"truncated", `{"fields": {"Fabric Content": "cotton"`},
		{"invalid json", `{"fields": {Fabric Content: cotton}}`},
		{"wrong shape", `{"Fabric Content": ["cotton", "linen"]}`},
		{"wrong nested shape", `{"fields": {"Fabric Content": {"value": ["cotton"]}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.text, testFields())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))
		})
	}
}

func TestCleanJSON(t *testing.T) {
	body, ok := cleanJSON("```\n{\"a\": {\"b\": 1}}\n```")
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}}`, body)

	_, ok = cleanJSON("} backwards {")
	assert.False(t, ok)
}
