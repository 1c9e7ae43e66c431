package assemble

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/techpack-cli/internal/fetcher"
	"github.com/sells-group/techpack-cli/internal/model"
	"github.com/sells-group/techpack-cli/internal/workitem"
)

func sampleOutput() *model.JobOutput {
	results := map[string]model.ExtractionResult{
		"ABC123": {"Fabric Content": {Value: "cotton, elastane", Rationale: "BOM \"main\"", NeedsReview: true}},
	}
	return Assemble(testItems(), smallFields(), results, map[string]string{"ABC123": "file:///ABC123.pdf"})
}

func TestWriteFiles_CSVRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job-1")
	out := sampleOutput()

	paths, err := WriteFiles(out, dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, TableFile), filepath.Join(dir, AuditFile)}, paths)

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()
	records, err := workitem.ParseDelimited(f)
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, out.Header, records[0])
	assert.Equal(t, "cotton, elastane", records[1][1])

	a, err := os.Open(paths[1])
	require.NoError(t, err)
	defer a.Close()
	audit, err := workitem.ParseDelimited(a)
	require.NoError(t, err)
	require.Len(t, audit, 3)
	assert.Equal(t, model.AuditHeader, audit[0])
	assert.Equal(t, []string{"ABC123", "Fabric Content", "cotton, elastane", `BOM "main"`, "true"}, audit[1])
}

func TestWriteXLSX_TwoSheets(t *testing.T) {
	dir := t.TempDir()
	out := sampleOutput()

	paths, err := WriteFiles(out, dir, true)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	main, err := fetcher.ReadXLSX(paths[2], fetcher.XLSXOptions{SheetName: "Tech Packs"})
	require.NoError(t, err)
	require.Len(t, main, 6)
	assert.Equal(t, out.Header, main[0])

	audit, err := fetcher.ReadXLSX(paths[2], fetcher.XLSXOptions{SheetName: "Audit"})
	require.NoError(t, err)
	assert.Len(t, audit, 3)
}
