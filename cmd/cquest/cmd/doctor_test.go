package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianly1003/cquest/internal/adapters/history"
)

func TestExtractCommandName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantCmd string
	}{
		{name: "empty", input: "", wantCmd: ""},
		{name: "simple", input: "claude", wantCmd: "claude"},
		{name: "with flags", input: "claude --version", wantCmd: "claude"},
		{name: "with spaces", input: "  /bin/sh   -c  ", wantCmd: "/bin/sh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractCommandName(tt.input)
			if got != tt.wantCmd {
				t.Fatalf("extractCommandName(%q) = %q, want %q", tt.input, got, tt.wantCmd)
			}
		})
	}
}

func TestSummarizeDoctorChecks(t *testing.T) {
	checks := []doctorCheck{
		{ID: "a", Status: doctorStatusOK},
		{ID: "b", Status: doctorStatusWarn},
		{ID: "c", Status: doctorStatusFail},
		{ID: "d", Status: doctorStatusOK},
	}

	summary := summarizeDoctorChecks(checks)
	if summary.Total != 4 || summary.OK != 2 || summary.Warn != 1 || summary.Fail != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary doctorSummary
		want    doctorStatus
	}{
		{
			name:    "all ok",
			summary: doctorSummary{Total: 2, OK: 2},
			want:    doctorStatusOK,
		},
		{
			name:    "warn only",
			summary: doctorSummary{Total: 2, OK: 1, Warn: 1},
			want:    doctorStatusWarn,
		},
		{
			name:    "fail takes precedence",
			summary: doctorSummary{Total: 3, OK: 1, Warn: 1, Fail: 1},
			want:    doctorStatusFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := overallStatus(tt.summary)
			if got != tt.want {
				t.Fatalf("overallStatus(%+v) = %q, want %q", tt.summary, got, tt.want)
			}
		})
	}
}

func TestCheckOptionalJSONFile(t *testing.T) {
	dir := t.TempDir()

	missing := checkOptionalJSONFile("f", filepath.Join(dir, "none.json"), "ok", "create it")
	assert.Equal(t, doctorStatusWarn, missing.Status)
	assert.Equal(t, "create it", missing.Remediation)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{nope"), 0644))
	assert.Equal(t, doctorStatusFail, checkOptionalJSONFile("f", bad, "ok", "").Status)

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"a":1}`), 0644))
	check := checkOptionalJSONFile("f", good, "ok", "")
	assert.Equal(t, doctorStatusOK, check.Status)
	assert.Equal(t, 7, check.Details["bytes"])
}

func TestCheckHistoryDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	assert.Equal(t, doctorStatusWarn, checkHistoryDatabase(path).Status)

	store, err := history.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	check := checkHistoryDatabase(path)
	assert.Equal(t, doctorStatusOK, check.Status)
	assert.NotContains(t, check.Details, "last_run")
}

func TestCheckDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, doctorStatusOK, checkDirectoryExists("d", dir, "ok", "").Status)
	assert.Equal(t, doctorStatusWarn, checkDirectoryExists("d", filepath.Join(dir, "missing"), "ok", "").Status)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.Equal(t, doctorStatusFail, checkDirectoryExists("d", file, "ok", "").Status)
}

func TestConfigSearchPaths(t *testing.T) {
	assert.Equal(t, []string{"/x/config.yaml"}, configSearchPaths("/x/config.yaml"))

	paths := configSearchPaths("")
	require.Len(t, paths, 3)
	assert.Equal(t, "/etc/cquest/config.yaml", paths[2])
}

func TestPrintDoctorText(t *testing.T) {
	var buf bytes.Buffer
	printDoctorText(&buf, doctorReport{
		Version: "1.0",
		Overall: doctorStatusWarn,
		Summary: doctorSummary{Total: 1, Warn: 1},
		Checks: []doctorCheck{
			{ID: "x", Status: doctorStatusWarn, Message: "missing", Remediation: "add it"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "overall: WARN")
	assert.Contains(t, out, "[WARN] x: missing")
	assert.Contains(t, out, "fix: add it")
}
