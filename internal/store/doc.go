// Package store provides SQLite-backed consumer offsets for streamlog.
//
// A consumer group is a named subscriber that wants to resume where it left
// off. The store keeps, per group, the next log position to deliver:
//
//	s, err := store.Open("offsets.db")
//	next, err := s.Get(ctx, "indexer")   // sql.ErrNoRows on first run
//	log.Subscribe(next.Next, handler)
//	...
//	s.Commit(ctx, "indexer", pos+1, session)
//
// Commits never move a group backwards. A replayed or late commit for an
// earlier position is ignored, so the stored offset is monotonic.
//
// Group names are compared in Unicode NFC.
//
// # Database Configuration
//
//   - WAL mode: offsets can be listed while a tail run commits
//   - synchronous=NORMAL
//   - busy_timeout: DefaultBusyTimeout, or WithBusyTimeout
package store
