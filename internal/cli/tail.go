package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/streamlog/internal/canon"
	"github.com/roach88/streamlog/internal/config"
	"github.com/roach88/streamlog/internal/eventlog"
	"github.com/roach88/streamlog/internal/record"
	"github.com/roach88/streamlog/internal/store"
)

// commitBusyTimeout bounds a group commit. Commits run from the drain
// callback, which keeps the log paused until they return.
const commitBusyTimeout = time.Second

// TailOptions holds flags for the tail command.
type TailOptions struct {
	*RootOptions
	From         int64
	Group        string
	Offsets      string
	Follow       bool
	PollInterval time.Duration
}

// TailRecord is one delivered record.
type TailRecord struct {
	Position int64           `json:"position"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Checksum string          `json:"checksum,omitempty"`
	Host     string          `json:"host,omitempty"`
	PID      int64           `json:"pid,omitempty"`
	Time     int64           `json:"time,omitempty"`
	Code     string          `json:"code,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func (r TailRecord) String() string {
	if r.Error != "" {
		return fmt.Sprintf("%d\t%s", r.Position, r.Error)
	}
	return fmt.Sprintf("%d\t%s", r.Position, r.Payload)
}

// NewTailCommand creates the tail command.
func NewTailCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TailOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tail [file]",
		Short: "Print records of a log from a position",
		Long: `Print every record from --from onwards, one per line, as
"<position><TAB><payload>". Corrupt records are printed with their error and
skipped.

Without --follow the command exits once the end of the file is reached.
With --group, the next position is committed to the offsets database each
time the end of the file is reached, and a later run with the same group
resumes from there unless --from is given.

Examples:
  streamlog tail ./events.log
  streamlog tail ./events.log --from 100 --follow
  streamlog tail ./events.log --group indexer --offsets ./offsets.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(opts, args, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.From, "from", 0, "first position to print")
	cmd.Flags().StringVar(&opts.Group, "group", "", "consumer group whose offset is committed")
	cmd.Flags().StringVar(&opts.Offsets, "offsets", "", "path to the offsets database (overrides config)")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep waiting for new records")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", 0, "fallback poll period (overrides config)")

	return cmd
}

func runTail(opts *TailOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.Logger()

	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Path = args[0]
	}
	if cfg.Path == "" {
		return NewExitError(ExitCommandError, "no log file: pass <file> or set path in the config")
	}
	if cmd.Flags().Changed("poll-interval") {
		if opts.PollInterval <= 0 {
			return NewExitError(ExitCommandError, "--poll-interval must be positive")
		}
		cfg.PollInterval = config.Duration(opts.PollInterval)
	}
	if opts.Offsets != "" {
		cfg.OffsetsDB = opts.Offsets
	}
	if opts.From < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--from must not be negative, got %d", opts.From))
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	from := opts.From
	var offsets *store.Store
	if opts.Group != "" {
		if cfg.OffsetsDB == "" {
			return NewExitError(ExitCommandError, "--group requires --offsets or offsets_db in the config")
		}
		offsets, err = store.Open(cfg.OffsetsDB, store.WithBusyTimeout(commitBusyTimeout))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open offsets database", err)
		}
		defer func() {
			if closeErr := offsets.Close(); closeErr != nil {
				logger.Error("error closing offsets database", "error", closeErr)
			}
		}()

		if !cmd.Flags().Changed("from") {
			off, err := offsets.Get(ctx, opts.Group)
			switch {
			case err == nil:
				from = off.Next
				formatter.VerboseLog("resuming group %s at %d", opts.Group, from)
			case !errors.Is(err, sql.ErrNoRows):
				return WrapExitError(ExitCommandError, "failed to read offset", err)
			}
		}
	}

	info, err := os.Stat(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !opts.Follow:
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("log file not found: %s", cfg.Path), nil)
		return WrapExitError(ExitCommandError, "log file not found", err)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return WrapExitError(ExitCommandError, "failed to stat log file", err)
	case err == nil && info.Size() == 0 && !opts.Follow:
		// Nothing to read, and an empty file never reaches a drain.
		return nil
	}

	log, err := eventlog.Open(cfg.Path, append(cfg.Options(), eventlog.WithLogger(logger))...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open log", err)
	}
	defer log.Close()

	t := &tailer{
		formatter: formatter,
		offsets:   offsets,
		group:     opts.Group,
		session:   uuid.NewString(),
		next:      from,
		drained:   make(chan struct{}, 1),
		cancel:    cancel,
	}

	if _, err := log.OnDrain(t.onDrain); err != nil {
		return WrapExitError(ExitCommandError, "failed to register drain", err)
	}
	if _, err := log.Subscribe(from, t.deliver); err != nil {
		return WrapExitError(ExitCommandError, "failed to subscribe", err)
	}
	logger.Debug("tailing", "path", cfg.Path, "from", from, "group", opts.Group, "session", t.session)

	if opts.Follow {
		<-ctx.Done()
	} else {
		select {
		case <-ctx.Done():
		case <-t.drained:
		}
	}

	if err := log.Close(); err != nil {
		logger.Error("error closing log", "error", err)
	}
	if err := t.commit(context.Background()); err != nil {
		return WrapExitError(ExitCommandError, "failed to commit offset", err)
	}
	if err := t.err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	delivered, corrupt, next := t.stats()
	formatter.VerboseLog("delivered %d records (%d corrupt), next position %d", delivered, corrupt, next)
	return nil
}

// tailer prints deliveries and commits the group offset at every drain.
type tailer struct {
	formatter *OutputFormatter
	offsets   *store.Store
	group     string
	session   string
	drained   chan struct{}
	cancel    context.CancelFunc

	mu        sync.Mutex
	next      int64
	delivered int
	corrupt   int
	writeErr  error
}

func (t *tailer) deliver(pos int64, payload any, meta record.Metadata) {
	rec := TailRecord{
		Position: pos,
		Checksum: meta.Checksum,
		Host:     meta.Host,
		PID:      meta.PID,
		Time:     meta.Time,
	}
	if meta.Err != nil {
		rec.Code = string(record.CodeOf(meta.Err))
		rec.Error = meta.Err.Error()
	} else {
		text, err := canon.Marshal(payload)
		if err != nil {
			rec.Error = fmt.Sprintf("render payload: %v", err)
		} else {
			rec.Payload = text
		}
	}

	err := t.formatter.Success(rec)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = pos + 1
	t.delivered++
	if meta.Err != nil {
		t.corrupt++
	}
	if err != nil && t.writeErr == nil {
		t.writeErr = err
		t.cancel()
	}
}

func (t *tailer) onDrain(ctx context.Context) error {
	err := t.commit(ctx)
	select {
	case t.drained <- struct{}{}:
	default:
	}
	return err
}

func (t *tailer) commit(ctx context.Context) error {
	if t.offsets == nil {
		return nil
	}
	t.mu.Lock()
	next := t.next
	t.mu.Unlock()

	_, err := t.offsets.Commit(ctx, t.group, next, t.session)
	return err
}

func (t *tailer) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeErr
}

func (t *tailer) stats() (delivered, corrupt int, next int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delivered, t.corrupt, t.next
}
