package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/streamlog/internal/store"
)

// OffsetsOptions holds flags for the offsets command.
type OffsetsOptions struct {
	*RootOptions
	Delete string
}

// OffsetEntry is one committed consumer group offset.
type OffsetEntry struct {
	Group       string `json:"group"`
	Next        int64  `json:"next"`
	Session     string `json:"session,omitempty"`
	CommittedAt string `json:"committed_at"`
}

// OffsetsResult lists committed offsets.
type OffsetsResult struct {
	Offsets []OffsetEntry `json:"offsets"`
}

func (r OffsetsResult) String() string {
	if len(r.Offsets) == 0 {
		return "No offsets committed."
	}
	var b strings.Builder
	for i, o := range r.Offsets {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\t%d\t%s", o.Group, o.Next, o.CommittedAt)
	}
	return b.String()
}

// NewOffsetsCommand creates the offsets command.
func NewOffsetsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OffsetsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "offsets [db]",
		Short: "List committed consumer group offsets",
		Long: `List the next position committed by every consumer group, or remove one
group with --delete.

Examples:
  streamlog offsets ./offsets.db
  streamlog offsets ./offsets.db --delete indexer --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOffsets(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Delete, "delete", "", "remove the offset of this group")

	return cmd
}

func runOffsets(opts *OffsetsOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.Logger()

	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.OffsetsDB = args[0]
	}
	if cfg.OffsetsDB == "" {
		return NewExitError(ExitCommandError, "no offsets database: pass [db] or set offsets_db in the config")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(cfg.OffsetsDB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open offsets database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing offsets database", "error", closeErr)
		}
	}()

	if opts.Delete != "" {
		removed, err := st.Delete(ctx, opts.Delete)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to delete offset", err)
		}
		if !removed {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no offset for group %q", opts.Delete), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("no offset for group %q", opts.Delete))
		}
		formatter.VerboseLog("deleted offset of %s", opts.Delete)
	}

	offsets, err := st.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list offsets", err)
	}

	result := OffsetsResult{Offsets: make([]OffsetEntry, 0, len(offsets))}
	for _, o := range offsets {
		result.Offsets = append(result.Offsets, OffsetEntry{
			Group:       o.Group,
			Next:        o.Next,
			Session:     o.Session,
			CommittedAt: o.CommittedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return formatter.Success(result)
}
