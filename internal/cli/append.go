package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamlog/internal/eventlog"
)

// maxLineSize bounds one stdin payload line.
const maxLineSize = 64 << 20

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	NoWait bool
	Fsync  bool
}

// AppendedRecord describes one appended record.
type AppendedRecord struct {
	Position int64  `json:"position"`
	Checksum string `json:"checksum"`
	Nonce    string `json:"nonce"`
	Time     int64  `json:"time"`
}

// AppendResult holds the records written by one append run.
type AppendResult struct {
	Path    string           `json:"path"`
	Records []AppendedRecord `json:"records"`
}

func (r AppendResult) String() string {
	var b strings.Builder
	for i, rec := range r.Records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\t%s", rec.Position, rec.Checksum)
	}
	return b.String()
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append <file> [json...]",
		Short: "Append JSON events to a log",
		Long: `Append one record per JSON argument, or per non-empty stdin line when no
payload arguments are given. Each record's position is printed once the
record has been read back from the file.

Exit codes:
  0 - All records appended
  2 - Command error (invalid JSON, unwritable file, etc.)

Examples:
  streamlog append ./events.log '{"type":"created","id":1}'
  producer | streamlog append ./events.log
  streamlog append ./events.log --no-wait '"fire and forget"'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "do not wait for records to become visible")
	cmd.Flags().BoolVar(&opts.Fsync, "fsync", false, "sync the file after every append (overrides config)")

	return cmd
}

func runAppend(opts *AppendOptions, path string, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.Logger()

	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("fsync") {
		cfg.Fsync = opts.Fsync
	}

	var payloads []json.RawMessage
	if len(args) > 0 {
		payloads, err = parseArgs(args)
	} else {
		payloads, err = readPayloads(cmd.InOrStdin())
	}
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid payload", err)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	log, err := eventlog.Open(path, append(cfg.Options(), eventlog.WithLogger(logger))...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open log", err)
	}
	defer func() {
		if closeErr := log.Close(); closeErr != nil {
			logger.Error("error closing log", "error", closeErr)
		}
	}()

	var appendOpts []eventlog.AppendOption
	if opts.NoWait {
		appendOpts = append(appendOpts, eventlog.WithoutVisibility())
	}

	completions := make([]*eventlog.Completion, 0, len(payloads))
	for _, p := range payloads {
		c, err := log.Append(p, appendOpts...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to append", err)
		}
		completions = append(completions, c)
	}

	result := AppendResult{Path: log.Path(), Records: make([]AppendedRecord, 0, len(completions))}
	for i, c := range completions {
		pos, err := c.Wait(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("record %d: %v", i, err), nil)
			return WrapExitError(ExitCommandError, "failed to append", err)
		}
		meta := c.Meta()
		result.Records = append(result.Records, AppendedRecord{
			Position: pos,
			Checksum: meta.Checksum,
			Nonce:    meta.Nonce,
			Time:     meta.Time,
		})
		formatter.VerboseLog("appended %s at %d", meta.Checksum, pos)
	}

	return formatter.Success(result)
}

// parseArgs checks that every argument is a JSON value.
func parseArgs(args []string) ([]json.RawMessage, error) {
	payloads := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		p, err := parsePayload([]byte(arg))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

// readPayloads reads one JSON value per non-empty line of r.
func readPayloads(r io.Reader) ([]json.RawMessage, error) {
	var payloads []json.RawMessage
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		p, err := parsePayload(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		payloads = append(payloads, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return payloads, nil
}

var errNotJSON = errors.New("not a JSON value")

func parsePayload(data []byte) (json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, errNotJSON
	}
	return json.RawMessage(bytes.Clone(data)), nil
}
