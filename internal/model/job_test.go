package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   JobStatus
		want     string
		terminal bool
	}{
		{JobStatusQueued, "queued", false},
		{JobStatusProcessing, "processing", false},
		{JobStatusReadyForExport, "ready_for_export", true},
		{JobStatusFailed, "failed", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestJob_DownloadedExtracted(t *testing.T) {
	j := &Job{
		CompletedDownloads:   []string{"ABC123", "XYZ999"},
		CompletedExtractions: []string{"ABC123"},
	}

	assert.True(t, j.Downloaded("XYZ999"))
	assert.False(t, j.Downloaded("QQQ000"))
	assert.True(t, j.Extracted("ABC123"))
	assert.False(t, j.Extracted("XYZ999"))
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "fabriccontent", NormalizeColumn(" Fabric Content "))
	assert.Equal(t, "countryoforigin", NormalizeColumn("Country-of-Origin"))
	assert.Equal(t, "style", NormalizeColumn("STYLE #"))
	assert.Equal(t, "", NormalizeColumn("--"))
}

func TestRow_Get(t *testing.T) {
	r := Row{
		Values: []string{"ABC123-RED", "Cotton"},
		Fields: map[string]string{"style": "ABC123-RED", "fabriccontent": "Cotton"},
	}
	assert.Equal(t, "Cotton", r.Get("Fabric Content"))
	assert.Equal(t, "Cotton", r.Get("fabric_content"))
	assert.Equal(t, "", r.Get("Season"))
}
