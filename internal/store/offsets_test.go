package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestCommit_NewGroup(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	s := createTestStore(t, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	changed, err := s.Commit(ctx, "indexer", 5, "session-1")
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if !changed {
		t.Error("Commit() reported no change for a new group")
	}

	off, err := s.Get(ctx, "indexer")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	want := Offset{Group: "indexer", Next: 5, Session: "session-1", CommittedAt: at}
	if !off.CommittedAt.Equal(want.CommittedAt) || off.Group != want.Group || off.Next != want.Next || off.Session != want.Session {
		t.Errorf("Get() = %+v, want %+v", off, want)
	}
}

func TestCommit_Advances(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.Commit(ctx, "g", 1, "a"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	changed, err := s.Commit(ctx, "g", 10, "b")
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if !changed {
		t.Error("advancing Commit() reported no change")
	}

	off, err := s.Get(ctx, "g")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if off.Next != 10 || off.Session != "b" {
		t.Errorf("Get() = %+v, want next=10 session=b", off)
	}
}

func TestCommit_NeverRegresses(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.Commit(ctx, "g", 10, "a"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	for _, next := range []int64{3, 10} {
		changed, err := s.Commit(ctx, "g", next, "late")
		if err != nil {
			t.Fatalf("Commit(%d) failed: %v", next, err)
		}
		if changed {
			t.Errorf("Commit(%d) behind stored offset reported a change", next)
		}
	}

	off, err := s.Get(ctx, "g")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if off.Next != 10 || off.Session != "a" {
		t.Errorf("Get() = %+v, want next=10 session=a", off)
	}
}

func TestCommit_Invalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		group string
		next  int64
	}{
		{"empty group", "", 1},
		{"negative position", "g", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Commit(ctx, tt.group, tt.next, "")
			if !errors.Is(err, ErrInvalidOffset) {
				t.Errorf("Commit() error = %v, want ErrInvalidOffset", err)
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	if err != sql.ErrNoRows {
		t.Errorf("Get() error = %v, want sql.ErrNoRows", err)
	}
}

func TestList_OrderedByGroup(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	offsets, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if offsets == nil || len(offsets) != 0 {
		t.Errorf("List() on empty store = %#v, want empty non-nil slice", offsets)
	}

	for _, g := range []string{"zeta", "alpha", "Mid"} {
		if _, err := s.Commit(ctx, g, 1, ""); err != nil {
			t.Fatalf("Commit(%q) failed: %v", g, err)
		}
	}

	offsets, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	var got []string
	for _, off := range offsets {
		got = append(got, off.Group)
	}
	want := []string{"Mid", "alpha", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("List() groups = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.Commit(ctx, "g", 4, ""); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	deleted, err := s.Delete(ctx, "g")
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if !deleted {
		t.Error("Delete() reported nothing deleted")
	}
	if _, err := s.Get(ctx, "g"); err != sql.ErrNoRows {
		t.Errorf("Get() after Delete() error = %v, want sql.ErrNoRows", err)
	}

	deleted, err = s.Delete(ctx, "g")
	if err != nil {
		t.Fatalf("second Delete() failed: %v", err)
	}
	if deleted {
		t.Error("second Delete() reported a deletion")
	}

	// A deleted group can start over from an earlier position.
	if _, err := s.Commit(ctx, "g", 1, ""); err != nil {
		t.Fatalf("Commit() after Delete() failed: %v", err)
	}
	off, err := s.Get(ctx, "g")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if off.Next != 1 {
		t.Errorf("Get().Next = %d, want 1", off.Next)
	}
}

func TestCommit_ContextCancelled(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Commit(ctx, "g", 1, ""); err == nil {
		t.Error("Commit() with cancelled context should fail")
	}
}

func TestGroupNamesCompareInNFC(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	decomposed := "cafe\u0301"
	precomposed := "caf\u00e9"

	if _, err := s.Commit(ctx, decomposed, 3, ""); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	changed, err := s.Commit(ctx, precomposed, 7, "")
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if !changed {
		t.Error("Commit() under the precomposed name did not advance the same group")
	}

	off, err := s.Get(ctx, decomposed)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if off.Group != precomposed || off.Next != 7 {
		t.Errorf("Get() = %+v, want group %q at 7", off, precomposed)
	}

	offsets, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(offsets) != 1 {
		t.Errorf("List() = %d groups, want 1", len(offsets))
	}

	deleted, err := s.Delete(ctx, precomposed)
	if err != nil || !deleted {
		t.Errorf("Delete() = %v, %v; want true, nil", deleted, err)
	}
}
