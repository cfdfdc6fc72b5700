// Package config loads streamlog settings from YAML and validates them
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/streamlog/internal/eventlog"
	"github.com/roach88/streamlog/internal/scan"
)

//go:embed schema.cue
var schemaSource string

// Config holds the settings of one log and its consumer offsets.
type Config struct {
	// Path is the log file. Empty means a private temporary file.
	Path string `yaml:"path"`

	ReadSize     int      `yaml:"read_size"`
	BufferSize   int      `yaml:"buffer_size"`
	PollInterval Duration `yaml:"poll_interval"`
	Fsync        bool     `yaml:"fsync"`

	// OffsetsDB is the SQLite file holding consumer offsets.
	OffsetsDB string `yaml:"offsets_db"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ReadSize:     eventlog.DefaultReadSize,
		BufferSize:   scan.DefaultSize,
		PollInterval: Duration(eventlog.DefaultPollInterval),
	}
}

// Load reads the YAML file at path on top of Default().
// Unknown keys are rejected. Relative path and offsets_db values are
// resolved against the directory of the config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}

	base := filepath.Dir(path)
	cfg.Path = resolve(base, cfg.Path)
	cfg.OffsetsDB = resolve(base, cfg.OffsetsDB)
	return cfg, nil
}

// Parse decodes YAML config text on top of Default() and validates it.
// Empty input yields the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(c.fields()))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return err
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval: must be positive, got %s", c.PollInterval)
	}
	return nil
}

func (c Config) fields() map[string]any {
	return map[string]any{
		"path":          c.Path,
		"read_size":     c.ReadSize,
		"buffer_size":   c.BufferSize,
		"poll_interval": c.PollInterval.String(),
		"fsync":         c.Fsync,
		"offsets_db":    c.OffsetsDB,
	}
}

// Options maps the settings onto eventlog options. The log path is not an
// option; pass c.Path to eventlog.Open.
func (c Config) Options() []eventlog.Option {
	return []eventlog.Option{
		eventlog.WithReadSize(c.ReadSize),
		eventlog.WithBufferSize(c.BufferSize),
		eventlog.WithPollInterval(time.Duration(c.PollInterval)),
		eventlog.WithFsync(c.Fsync),
	}
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
