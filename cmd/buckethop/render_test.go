package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"buckethop/pkg/models"
)

func TestTopExtensionsOrder(t *testing.T) {
	rows := topExtensions(map[string]models.ExtensionStat{
		".log": {Count: 3, Bytes: 100},
		".bin": {Count: 1, Bytes: 5000},
		".txt": {Count: 2, Bytes: 100},
	}, 2)

	assert.Len(t, rows, 2)
	assert.Equal(t, ".bin", rows[0].ext)
	assert.Equal(t, ".log", rows[1].ext, "ties break on name")
}

func TestRenderSummary(t *testing.T) {
	start := time.Now().Add(-10 * time.Second)
	summary := models.RunSummary{
		State:                 models.RunCompleted,
		FilesTransferred:      3,
		FilesSkipped:          1,
		FilesFailed:           1,
		TotalObjects:          5,
		TotalBytes:            6 * 1024 * 1024,
		TotalBytesTransferred: 5 * 1024 * 1024,
		SkippedBytes:          1024 * 1024,
		Extensions: map[string]models.ExtensionStat{
			".csv": {Count: 3, Bytes: 5 * 1024 * 1024},
		},
		Failures:  []models.FailureRecord{{Key: "broken.csv", Error: "access denied"}},
		StartTime: start,
		EndTime:   time.Now(),
	}

	var sb strings.Builder
	renderSummary(&sb, summary)
	out := sb.String()

	assert.Contains(t, out, "Transfer completed")
	assert.Contains(t, out, "5 total, 3 transferred, 1 skipped, 1 failed")
	assert.Contains(t, out, ".csv")
	assert.Contains(t, out, "broken.csv: access denied")
}
