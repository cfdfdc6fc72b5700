package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/streamlog/internal/eventlog"
	"github.com/roach88/streamlog/internal/scan"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "", cfg.Path)
	assert.Equal(t, eventlog.DefaultReadSize, cfg.ReadSize)
	assert.Equal(t, scan.DefaultSize, cfg.BufferSize)
	assert.Equal(t, Duration(time.Second), cfg.PollInterval)
	assert.False(t, cfg.Fsync)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_AllKeys(t *testing.T) {
	path := writeConfig(t, `
path: /var/log/events.log
read_size: 4096
buffer_size: 65536
poll_interval: 250ms
fsync: true
offsets_db: /var/lib/offsets.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Path:         "/var/log/events.log",
		ReadSize:     4096,
		BufferSize:   65536,
		PollInterval: Duration(250 * time.Millisecond),
		Fsync:        true,
		OffsetsDB:    "/var/lib/offsets.db",
	}, cfg)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "fsync: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Fsync = true
	assert.Equal(t, want, cfg)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_RelativePathsResolved(t *testing.T) {
	path := writeConfig(t, "path: data/events.log\noffsets_db: offsets.db\n")
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "events.log"), cfg.Path)
	assert.Equal(t, filepath.Join(dir, "offsets.db"), cfg.OffsetsDB)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "read_sise: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
	assert.Contains(t, err.Error(), "read_sise")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"zero read size", "read_size: 0", "invalid config"},
		{"negative buffer size", "buffer_size: -1", "invalid config"},
		{"read size too large", "read_size: 134217728", "invalid config"},
		{"bad duration", "poll_interval: soon", "failed to parse YAML"},
		{"negative duration", "poll_interval: -1s", "invalid config"},
		{"zero duration", "poll_interval: 0s", "must be positive"},
		{"wrong type", "fsync: maybe", "failed to parse YAML"},
		{"duration as number", "poll_interval: [1]", "duration must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_SchemaFieldInMessage(t *testing.T) {
	cfg := Default()
	cfg.ReadSize = -5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read_size")
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.PollInterval = Duration(1500 * time.Millisecond)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "poll_interval: 1.5s")

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestOptions_OpenLog(t *testing.T) {
	cfg := Default()
	cfg.Path = filepath.Join(t.TempDir(), "events.log")
	cfg.ReadSize = 16
	cfg.PollInterval = Duration(10 * time.Millisecond)

	opts := cfg.Options()
	assert.Len(t, opts, 4)

	l, err := eventlog.Open(cfg.Path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	assert.Equal(t, cfg.Path, l.Path())
}
