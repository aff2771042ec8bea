// Package postgres implements store.Store against PostgreSQL via
// github.com/jackc/pgx/v5's pgxpool, grounded on sumanthd032-CollabText's use
// of the same driver for its own (not-yet-wired) persistence connection.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/store"
)

// Store persists session state to a Postgres database through a connection
// pool. Every document's chunks are replaced wholesale on each save — this
// is a session checkpoint, not an append-only edit log, matching the
// buffer's "save on a ticker" usage (§4.8).
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and returns a ready Store. The caller should call
// EnsureSchema once before first use.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables used by SaveSession/LoadSession if they do
// not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS user_row (
	id             BIGINT PRIMARY KEY,
	external_id    TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL UNIQUE,
	r              SMALLINT NOT NULL,
	g              SMALLINT NOT NULL,
	b              SMALLINT NOT NULL,
	password_hash  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS document_row (
	id       BIGINT PRIMARY KEY,
	owner_id BIGINT,
	title    TEXT NOT NULL,
	suffix   INT NOT NULL,
	encoding TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunk_row (
	document_id BIGINT NOT NULL REFERENCES document_row(id) ON DELETE CASCADE,
	ordinal     INT NOT NULL,
	text        TEXT NOT NULL,
	author_id   BIGINT,
	PRIMARY KEY (document_id, ordinal)
);
`)
	if err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// SaveSession upserts every user and document row, replacing each
// document's chunk rows, inside a single transaction.
func (s *Store) SaveSession(ctx context.Context, sess store.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, u := range sess.Users {
		if _, err := tx.Exec(ctx, `
INSERT INTO user_row (id, external_id, name, r, g, b, password_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	external_id = EXCLUDED.external_id,
	name = EXCLUDED.name,
	r = EXCLUDED.r, g = EXCLUDED.g, b = EXCLUDED.b,
	password_hash = EXCLUDED.password_hash
`, u.ID, u.ExternalID, u.Name, u.R, u.G, u.B, u.PasswordHash); err != nil {
			return fmt.Errorf("postgres: upsert user %d: %w", u.ID, err)
		}
	}

	for _, d := range sess.Documents {
		var ownerID *content.UserID
		if d.Owner != nil {
			ownerID = d.Owner
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO document_row (id, owner_id, title, suffix, encoding)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	owner_id = EXCLUDED.owner_id,
	title = EXCLUDED.title,
	suffix = EXCLUDED.suffix,
	encoding = EXCLUDED.encoding
`, d.ID, ownerID, d.Title, d.Suffix, d.Encoding); err != nil {
			return fmt.Errorf("postgres: upsert document %d: %w", d.ID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM chunk_row WHERE document_id = $1`, d.ID); err != nil {
			return fmt.Errorf("postgres: clear chunks for document %d: %w", d.ID, err)
		}
		for i, ch := range d.Chunks {
			if _, err := tx.Exec(ctx, `
INSERT INTO chunk_row (document_id, ordinal, text, author_id) VALUES ($1, $2, $3, $4)
`, d.ID, i, ch.Text, ch.Author); err != nil {
				return fmt.Errorf("postgres: insert chunk %d of document %d: %w", i, d.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// LoadSession reads back the full persisted session.
func (s *Store) LoadSession(ctx context.Context) (store.Session, error) {
	var sess store.Session

	userRows, err := s.pool.Query(ctx, `SELECT id, external_id, name, r, g, b, password_hash FROM user_row`)
	if err != nil {
		return store.Session{}, fmt.Errorf("postgres: query users: %w", err)
	}
	for userRows.Next() {
		var u store.UserRow
		if err := userRows.Scan(&u.ID, &u.ExternalID, &u.Name, &u.R, &u.G, &u.B, &u.PasswordHash); err != nil {
			userRows.Close()
			return store.Session{}, fmt.Errorf("postgres: scan user: %w", err)
		}
		sess.Users = append(sess.Users, u)
	}
	userRows.Close()
	if err := userRows.Err(); err != nil {
		return store.Session{}, fmt.Errorf("postgres: iterate users: %w", err)
	}

	docRows, err := s.pool.Query(ctx, `SELECT id, owner_id, title, suffix, encoding FROM document_row`)
	if err != nil {
		return store.Session{}, fmt.Errorf("postgres: query documents: %w", err)
	}
	var docs []store.DocumentRow
	for docRows.Next() {
		var d store.DocumentRow
		var owner *content.UserID
		if err := docRows.Scan(&d.ID, &owner, &d.Title, &d.Suffix, &d.Encoding); err != nil {
			docRows.Close()
			return store.Session{}, fmt.Errorf("postgres: scan document: %w", err)
		}
		d.Owner = owner
		docs = append(docs, d)
	}
	docRows.Close()
	if err := docRows.Err(); err != nil {
		return store.Session{}, fmt.Errorf("postgres: iterate documents: %w", err)
	}

	for i := range docs {
		chunkRows, err := s.pool.Query(ctx, `
SELECT text, author_id FROM chunk_row WHERE document_id = $1 ORDER BY ordinal
`, docs[i].ID)
		if err != nil {
			return store.Session{}, fmt.Errorf("postgres: query chunks for document %d: %w", docs[i].ID, err)
		}
		for chunkRows.Next() {
			var ch store.ChunkRow
			var author *content.UserID
			if err := chunkRows.Scan(&ch.Text, &author); err != nil {
				chunkRows.Close()
				return store.Session{}, fmt.Errorf("postgres: scan chunk: %w", err)
			}
			ch.Author = author
			docs[i].Chunks = append(docs[i].Chunks, ch)
		}
		chunkRows.Close()
		if err := chunkRows.Err(); err != nil {
			return store.Session{}, fmt.Errorf("postgres: iterate chunks: %w", err)
		}
	}
	sess.Documents = docs

	return sess, nil
}

var _ = pgx.ErrNoRows // referenced to document the driver's sentinel error is available to callers wrapping this package
