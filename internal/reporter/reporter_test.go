package reporter

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nomadcxx/jellylink/internal/scanner"
)

func sampleSummary() *Summary {
	return &Summary{
		RunID:         "7d3c1a6e-0000-4000-8000-000000000000",
		Input:         "/recordings/anime",
		Output:        "/library/anime",
		StartedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
		TitlesChecked: 3,
		TitlesFailed:  1,
		CreatedFiles:  4,
		ExistedFiles:  2,
		CreatedDirs:   1,
		Stats: scanner.Stats{
			FilesChecked:   9,
			ShapeBroadcast: 5,
			ShapeCompact:   3,
			Unparseable:    1,
			Discarded:      1,
			Superseded:     2,
		},
		Failures: []TitleFailure{
			{Title: "Broken", Path: "/recordings/anime/Broken", Error: "permission denied"},
		},
	}
}

func TestText(t *testing.T) {
	out := Text(sampleSummary())

	expected := []string{
		" [/recordings/anime] -> [/library/anime]",
		" * Checked Titles: 3",
		" * Checked Files: 9",
		" * Created Files: 4",
		" * Existed Files: 2",
		" * Created Dirs: 1",
		" * Check Case 1: 5",
		" * Check Case 2: 3",
		" * Check Case Error: 1",
		" * Discarded: 1",
		" * Superseded: 2",
		" * Failed Titles: 1",
		"   ! Broken: permission denied",
	}
	for _, line := range expected {
		assert.Contains(t, out, line+"\n")
	}
	assert.NotContains(t, out, "dry run")
}

func TestTextDryRun(t *testing.T) {
	s := sampleSummary()
	s.DryRun = true
	assert.Contains(t, Text(s), "dry run")
}

func TestTable(t *testing.T) {
	s := sampleSummary()
	s.CreatedFiles = 12345

	out := Table(s, false)
	assert.True(t, strings.HasPrefix(out, "/recordings/anime -> /library/anime\n"))
	assert.Contains(t, out, "Created files")
	assert.Contains(t, out, "12,345")
	assert.Contains(t, out, "╭")
	assert.Contains(t, out, "failed: Broken: permission denied")
}

func TestPrintUsesPlainTextForNonTerminals(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, []*Summary{sampleSummary(), sampleSummary()}))

	assert.Equal(t, 2, strings.Count(buf.String(), " * Checked Titles: 3"))
	assert.NotContains(t, buf.String(), "╭")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []*Summary{sampleSummary()}))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)

	assert.Equal(t, "/recordings/anime", decoded[0]["input"])
	assert.Equal(t, float64(4), decoded[0]["created_files"])
	stats, ok := decoded[0]["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(5), stats["shape_broadcast"])
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestSummaryFailed(t *testing.T) {
	s := sampleSummary()
	assert.True(t, s.Failed())
	s.TitlesFailed = 0
	assert.False(t, s.Failed())
}

func TestGenerateIn(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

	path, err := GenerateIn(dir, ts, []*Summary{sampleSummary()})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "20240102_030405.txt"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "JELLYLINK RUN REPORT")
	assert.Contains(t, content, "Run: 7d3c1a6e-0000-4000-8000-000000000000 (1.5s)")
	assert.Contains(t, content, " * Created Files: 4")
}
