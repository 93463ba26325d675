package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snarg/segmerge/internal/align"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSpeakerRequest = `{
	"source_id": "call-7",
	"diarization": [
		{"start": 0, "end": 2, "speaker": "A"},
		{"start": 2, "end": 4, "speaker": "B"}
	],
	"transcript": [
		{"start": 0.5, "end": 1.5, "text": "hello"},
		{"start": 2.5, "end": 3.5, "text": "world"}
	]
}`

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	// Point at a missing env file so a developer's .env does not leak in.
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...)

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMergeCommand_JSONFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(path, []byte(twoSpeakerRequest), 0o644))

	out, err := runCLI(t, "", "merge", "--in", path)
	require.NoError(t, err)

	var resp struct {
		SourceID string                `json:"source_id"`
		Options  align.Options         `json:"options"`
		Segments []align.MergedSegment `json:"segments"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "call-7", resp.SourceID)
	require.Len(t, resp.Segments, 2)
	assert.Equal(t, "A", resp.Segments[0].Speaker)
	assert.Equal(t, "B", resp.Segments[1].Speaker)
}

func TestMergeCommand_StrategyFlagAndStdin(t *testing.T) {
	out, err := runCLI(t, twoSpeakerRequest, "--strategy", "majority_vote", "merge")
	require.NoError(t, err)
	assert.Contains(t, out, `"strategy": "majority_vote"`)
}

func TestMergeCommand_Table(t *testing.T) {
	out, err := runCLI(t, twoSpeakerRequest, "merge", "--format", "table")
	require.NoError(t, err)
	for _, want := range []string{"Speaker", "hello", "world", "0.50"} {
		assert.Contains(t, out, want)
	}
}

func TestMergeCommand_Errors(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"bad_format", twoSpeakerRequest, []string{"merge", "--format", "xml"}},
		{"bad_json", "{", []string{"merge"}},
		{"bad_strategy", twoSpeakerRequest, []string{"--strategy", "loudest", "merge"}},
		{"missing_file", "", []string{"merge", "--in", "/nonexistent/req.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.stdin, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRunsCommand_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := runCLI(t, "", "runs", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
