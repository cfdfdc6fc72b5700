package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamlog/internal/eventlog"
)

func lines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestTail_PrintsAllRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	writeLog(t, path, encodeLines(t,
		map[string]any{"b": 2, "a": 1},
		"two",
		[]any{3},
	), "")

	stdout, _, err := runCLI(t, "", "tail", path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0\t{\"a\":1,\"b\":2}",
		"1\t\"two\"",
		"2\t[3]",
	}, lines(stdout))
}

func TestTail_From(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	writeLog(t, path, encodeLines(t, 0, 1, 2, 3), "")

	stdout, _, err := runCLI(t, "", "tail", path, "--from", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"2\t2", "3\t3"}, lines(stdout))
}

func TestTail_FromBeyondEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	writeLog(t, path, encodeLines(t, 0, 1), "")

	stdout, _, err := runCLI(t, "", "tail", path, "--from", "10")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestTail_NegativeFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	writeLog(t, path, encodeLines(t, 0), "")

	_, _, err := runCLI(t, "", "tail", path, "--from", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTail_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	stdout, _, err := runCLI(t, "", "tail", path)
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestTail_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")

	stdout, _, err := runCLI(t, "", "tail", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E002]")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTail_NoFile(t *testing.T) {
	_, _, err := runCLI(t, "", "tail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log file")
}

func TestTail_PathFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, filepath.Join(dir, "events.log"), encodeLines(t, "x"), "")
	cfgPath := filepath.Join(dir, "streamlog.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("path: events.log\n"), 0o644))

	stdout, _, err := runCLI(t, "", "--config", cfgPath, "tail")
	require.NoError(t, err)
	assert.Equal(t, []string{"0\t\"x\""}, lines(stdout))
}

func TestTail_CorruptRecordReportedAndSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	recs := encodeLines(t, map[string]any{"n": 1}, map[string]any{"n": 2})
	recs[0] = []byte(strings.Replace(string(recs[0]), `"n":1`, `"n":9`, 1))
	writeLog(t, path, append(recs, []byte("garbage")), "")

	stdout, _, err := runCLI(t, "", "tail", path)
	require.NoError(t, err)

	got := lines(stdout)
	require.Len(t, got, 3)
	assert.True(t, strings.HasPrefix(got[0], "0\tCHECKSUM_ERROR"), got[0])
	assert.Equal(t, "1\t{\"n\":2}", got[1])
	assert.True(t, strings.HasPrefix(got[2], "2\tPARSE_ERROR"), got[2])
}

func TestTail_JSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	writeLog(t, path, encodeLines(t, map[string]any{"k": "v"}), "not json\n")

	stdout, _, err := runCLI(t, "", "--format", "json", "tail", path)
	require.NoError(t, err)

	got := lines(stdout)
	require.Len(t, got, 2)

	var first struct {
		Status string     `json:"status"`
		Data   TailRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(got[0]), &first))
	assert.Equal(t, "ok", first.Status)
	assert.Equal(t, int64(0), first.Data.Position)
	assert.JSONEq(t, `{"k":"v"}`, string(first.Data.Payload))
	assert.Equal(t, "test-host", first.Data.Host)
	assert.Equal(t, int64(7), first.Data.PID)
	assert.Equal(t, int64(1700000000001), first.Data.Time)

	var second struct {
		Data TailRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(got[1]), &second))
	assert.Equal(t, "PARSE_ERROR", second.Data.Code)
	assert.Empty(t, second.Data.Payload)
}

func TestTail_GroupResumesFromCommittedOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	db := filepath.Join(dir, "offsets.db")
	writeLog(t, path, encodeLines(t, 0, 1, 2), "")

	stdout, _, err := runCLI(t, "", "tail", path, "--group", "indexer", "--offsets", db)
	require.NoError(t, err)
	assert.Len(t, lines(stdout), 3)

	// Nothing new: the second run prints nothing.
	stdout, _, err = runCLI(t, "", "tail", path, "--group", "indexer", "--offsets", db)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	_, _, err = runCLI(t, "", "append", path, "3", "4")
	require.NoError(t, err)

	stdout, _, err = runCLI(t, "", "tail", path, "--group", "indexer", "--offsets", db)
	require.NoError(t, err)
	assert.Equal(t, []string{"3\t3", "4\t4"}, lines(stdout))

	stdout, _, err = runCLI(t, "", "offsets", db)
	require.NoError(t, err)
	got := lines(stdout)
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "indexer\t5\t"), got[0])
}

func TestTail_ExplicitFromOverridesGroup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	db := filepath.Join(dir, "offsets.db")
	writeLog(t, path, encodeLines(t, 0, 1, 2), "")

	_, _, err := runCLI(t, "", "tail", path, "--group", "g", "--offsets", db)
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "", "tail", path, "--group", "g", "--offsets", db, "--from", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1\t1", "2\t2"}, lines(stdout))
}

func TestTail_GroupRequiresOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	writeLog(t, path, encodeLines(t, 0), "")

	_, _, err := runCLI(t, "", "tail", path, "--group", "g")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--group requires")
}

func TestTail_Follow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	writeLog(t, path, encodeLines(t, "first"), "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"tail", path, "--follow", "--poll-interval", "10ms"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "0\t\"first\"")
	}, 5*time.Second, 5*time.Millisecond)

	// Another writer appends while the tail is following.
	writer, err := eventlog.Open(path, eventlog.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	c, err := writer.Append("second")
	require.NoError(t, err)
	_, err = c.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "1\t\"second\"")
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tail --follow did not stop after cancellation")
	}
}
