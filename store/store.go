// Package store defines the persistence interface (C8): saving and loading
// a buffer's full session state (users, documents, chunks) so a restarted
// process can resume where it left off. Two implementations exist:
// postgres.Store (backed by pgx/pgxpool) and memstore.Store (in-process,
// used by tests and by hosts run without a DSN configured).
package store

import (
	"context"

	"github.com/goatee-collab/goatee/content"
)

// UserRow is one persisted user-table row, per §6's persisted session
// format.
type UserRow struct {
	ID           content.UserID
	ExternalID   string // uuid.UUID string form, stable across id reassignment
	Name         string
	R, G, B      uint8
	PasswordHash string
}

// ChunkRow is one persisted chunk of a document, in order.
type ChunkRow struct {
	Text   string
	Author *content.UserID
}

// DocumentRow is one persisted document, with its chunks in content order.
type DocumentRow struct {
	ID       uint32
	Owner    *content.UserID
	Title    string
	Suffix   uint32
	Encoding string
	Chunks   []ChunkRow
}

// Session is the full state a Store round-trips.
type Session struct {
	Users     []UserRow
	Documents []DocumentRow
}

// Store is the persistence interface the buffer (C7) calls on a ticker and
// at graceful shutdown (SaveSession), and once at startup (LoadSession).
// Persistence failures are logged and otherwise non-fatal; the in-memory
// state is always the source of truth while the process runs.
type Store interface {
	SaveSession(ctx context.Context, s Session) error
	LoadSession(ctx context.Context) (Session, error)
}
