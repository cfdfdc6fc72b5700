package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidOffset is returned when committing a negative position or an
// empty group name.
var ErrInvalidOffset = errors.New("invalid offset")

// groupKey is the stored form of a group name. Names are compared in NFC, so
// "café" typed precomposed or decomposed is one group.
func groupKey(group string) string {
	return norm.NFC.String(group)
}

// Offset is the committed progress of one consumer group.
type Offset struct {
	Group       string
	Next        int64
	Session     string
	CommittedAt time.Time
}

// Commit records that group has processed every position before next.
// session identifies the tail run that made the commit.
//
// Commits behind the stored offset are ignored (no error). Returns true if
// the stored offset changed.
func (s *Store) Commit(ctx context.Context, group string, next int64, session string) (bool, error) {
	if group == "" || next < 0 {
		return false, fmt.Errorf("commit offset %q@%d: %w", group, next, ErrInvalidOffset)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO offsets (consumer_group, next_position, session, committed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(consumer_group) DO UPDATE SET
			next_position = excluded.next_position,
			session = excluded.session,
			committed_at = excluded.committed_at
		WHERE excluded.next_position > offsets.next_position
	`,
		groupKey(group),
		next,
		session,
		s.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("commit offset: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("commit offset: %w", err)
	}
	return n > 0, nil
}

// Get returns the committed offset of group.
// Returns sql.ErrNoRows if the group has never committed.
func (s *Store) Get(ctx context.Context, group string) (Offset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT consumer_group, next_position, session, committed_at
		FROM offsets
		WHERE consumer_group = ?
	`, groupKey(group))

	off, err := scanOffset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Offset{}, sql.ErrNoRows
		}
		return Offset{}, fmt.Errorf("get offset: %w", err)
	}
	return off, nil
}

// List returns every committed offset ordered by group name.
// Returns an empty slice (not nil) if nothing has been committed.
func (s *Store) List(ctx context.Context) ([]Offset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT consumer_group, next_position, session, committed_at
		FROM offsets
		ORDER BY consumer_group COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query offsets: %w", err)
	}
	defer rows.Close()

	offsets := []Offset{}
	for rows.Next() {
		off, err := scanOffset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offset: %w", err)
		}
		offsets = append(offsets, off)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offsets: %w", err)
	}
	return offsets, nil
}

// Delete forgets group. Returns true if it existed.
func (s *Store) Delete(ctx context.Context, group string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM offsets WHERE consumer_group = ?`, groupKey(group))
	if err != nil {
		return false, fmt.Errorf("delete offset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete offset: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffset(row rowScanner) (Offset, error) {
	var (
		off    Offset
		millis int64
	)
	if err := row.Scan(&off.Group, &off.Next, &off.Session, &millis); err != nil {
		return Offset{}, err
	}
	off.CommittedAt = time.UnixMilli(millis)
	return off, nil
}
