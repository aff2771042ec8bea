// Package buffer implements the top-level object (C7) that owns the user
// registry, the document table, and the transport, exposing the library's
// public contract in both server and client roles. It is grounded on the
// teacher's server/hub/hub.go, generalized from hub's single hard-coded
// ot.Text document to §3's full multi-document, multi-user session model,
// and given the ambient stack (structured logging, config, persistence,
// presence) the distilled spec omits.
package buffer

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sanity-io/litter"
	"go.uber.org/zap"

	"github.com/goatee-collab/goatee/broker"
	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/session"
	"github.com/goatee-collab/goatee/store"
)

// Server is a running goatee host process's in-memory state: the user
// registry, the live document table, and one connection object per attached
// transport. Server is safe for concurrent use; its single mutex mirrors
// the teacher's hub.mu guarding shared document/client state.
type Server struct {
	log      *zap.Logger
	registry *session.Registry
	store    store.Store
	broker   broker.Broker

	upgrader websocket.Upgrader
	router   *mux.Router

	mu              sync.Mutex
	docs            map[uint32]*doc.Coordinator
	nextDocID       uint32
	conns           map[content.UserID]*serverConn
	globalPassword  string
	protocolVersion uint32
}

// Config carries a Server's construction-time dependencies. Store and
// Broker may be nil: a nil Store disables loading and saving, and a nil
// Broker disables publishing, so a Server is usable with zero external
// infrastructure for tests and single-process demos.
type Config struct {
	Log             *zap.Logger
	Store           store.Store
	Broker          broker.Broker
	GlobalPassword  string
	ProtocolVersion uint32
}

// NewServer constructs an empty Server, ready to accept connections via
// ServeHTTP.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	protocolVersion := cfg.ProtocolVersion
	if protocolVersion == 0 {
		protocolVersion = defaultProtocolVersion
	}
	s := &Server{
		log:             log,
		registry:        session.New(),
		store:           cfg.Store,
		broker:          cfg.Broker,
		upgrader:        websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		docs:            make(map[uint32]*doc.Coordinator),
		nextDocID:       1,
		conns:           make(map[content.UserID]*serverConn),
		globalPassword:  cfg.GlobalPassword,
		protocolVersion: protocolVersion,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleWebSocket)
	s.router = r
	return s
}

// LoadFromStore restores the persisted user table on process start, per
// §4.8: rebound rows are not marked CONNECTED until their owner logs in
// again.
func (s *Server) LoadFromStore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	sess, err := s.store.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("buffer: load session: %w", err)
	}
	for _, u := range sess.Users {
		s.registry.Rebind(session.User{
			ID:           u.ID,
			Name:         u.Name,
			Color:        session.Color{R: u.R, G: u.G, B: u.B},
			PasswordHash: u.PasswordHash,
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range sess.Documents {
		s.installDocumentLocked(hydrateDocument(d))
	}
	s.log.Info("restored session from store", zap.Int("users", len(sess.Users)), zap.Int("documents", len(sess.Documents)))
	return nil
}

func hydrateDocument(d store.DocumentRow) (uint32, *content.UserID, string, uint32, string, *content.Content) {
	c := content.New("", nil)
	for _, ch := range d.Chunks {
		_ = c.InsertAt(c.Length(), ch.Text, ch.Author) // chunks are persisted in content order
	}
	return d.ID, d.Owner, d.Title, d.Suffix, d.Encoding, c
}

func (s *Server) installDocumentLocked(id uint32, owner *content.UserID, title string, suffix uint32, encoding string, initial *content.Content) {
	coord := doc.NewServer(id, owner, title, suffix, encoding, initial, s.privilegesFor, s.hooksFor(id))
	s.docs[id] = coord
	if id >= s.nextDocID {
		s.nextDocID = id + 1
	}
}

// SnapshotForStore builds the store.Session persisted on the buffer's save
// ticker and at graceful shutdown (§4.8).
func (s *Server) SnapshotForStore() store.Session {
	s.mu.Lock()
	docs := make([]*doc.Coordinator, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.Unlock()

	sess := store.Session{}
	for _, u := range s.registry.All() {
		sess.Users = append(sess.Users, store.UserRow{
			ID: u.ID, Name: u.Name, R: u.Color.R, G: u.Color.G, B: u.Color.B, PasswordHash: u.PasswordHash,
			// Derived from the (unique) user name, so it is stable across saves.
			ExternalID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(u.Name)).String(),
		})
	}
	for _, d := range docs {
		info := d.Info()
		row := store.DocumentRow{ID: info.ID, Owner: d.Owner(), Title: info.Title, Suffix: info.Suffix, Encoding: d.Encoding()}
		for _, ch := range d.Chunks() {
			row.Chunks = append(row.Chunks, store.ChunkRow{Text: ch.Text, Author: ch.Author})
		}
		sess.Documents = append(sess.Documents, row)
	}
	return sess
}

// RunPersistenceLoop periodically checkpoints the session to the store
// until ctx is cancelled, matching §4.8's "save on a ticker" policy. A
// failed save is logged and otherwise non-fatal.
func (s *Server) RunPersistenceLoop(ctx context.Context, interval time.Duration) {
	if s.store == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.store.SaveSession(context.Background(), s.SnapshotForStore()); err != nil {
				s.log.Error("final save failed", zap.Error(err))
			}
			return
		case <-ticker.C:
			if err := s.store.SaveSession(ctx, s.SnapshotForStore()); err != nil {
				s.log.Warn("periodic save failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) privilegesFor(id content.UserID) session.Priv {
	return s.registry.Privileges(id)
}

// debugDump pretty-prints a snapshot of the server's document table for the
// verbose-logging path, in the manner of the teacher's litter.Config.HidePrivateFields
// usage for readable struct dumps (kevinxiao27-eg-walker/main.go).
func (s *Server) debugDump() string {
	s.mu.Lock()
	infos := make([]doc.Info, 0, len(s.docs))
	for _, d := range s.docs {
		infos = append(infos, d.Info())
	}
	s.mu.Unlock()
	return litter.Sdump(infos)
}

// ServeHTTP dispatches through the server's mux.Router: the websocket
// upgrade at "/" and a liveness probe at "/healthz".
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealthz answers a bare liveness probe, independent of whether any
// connections are currently attached.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleWebSocket upgrades an incoming request to a websocket and runs the
// connection's lifecycle to completion, in the manner of the teacher's
// hub.handleConn.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	if ce := s.log.Check(zap.DebugLevel, "document table snapshot"); ce != nil {
		ce.Write(zap.String("docs", s.debugDump()))
	}
	sc := newServerConn(s, conn)
	sc.run()
}

func newToken() string {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 48))
	if err != nil {
		// crypto/rand failure is unrecoverable; fall back to a UUID's
		// randomness rather than issuing a predictable token.
		return uuid.NewString()
	}
	return n.Text(36)
}
