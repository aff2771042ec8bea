package buffer

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/cryptoutil"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/jupiter"
	"github.com/goatee-collab/goatee/protocol"
	"github.com/goatee-collab/goatee/session"
)

// registerHandlers wires every client->server command named in §6 to this
// connection's state, the static-map dispatch table (§4.7) replacing the
// teacher's inline switch in hub.go's read loop.
func (sc *serverConn) registerHandlers() {
	sc.dispatcher.Handle("login", sc.handleLogin)
	sc.dispatcher.Handle("user_password", sc.handleUserPassword)
	sc.dispatcher.Handle("document_create", sc.handleDocumentCreate)
	sc.dispatcher.Handle("document_remove", sc.handleDocumentRemove)
	sc.dispatcher.Handle("doc_subscribe", sc.handleDocSubscribe)
	sc.dispatcher.Handle("doc_unsubscribe", sc.handleDocUnsubscribe)
	sc.dispatcher.Handle("doc_record", sc.handleDocRecord)
	sc.dispatcher.Handle("doc_rename", sc.handleDocRename)
	sc.dispatcher.Handle("message", sc.handleMessage)
	sc.dispatcher.Handle("user_colour", sc.handleUserColour)
}

func (sc *serverConn) requireLogin() (content.UserID, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.loggedIn {
		return 0, protocol.Newf(protocol.KindProtocolViolation, "command received before login")
	}
	return sc.userID, nil
}

// --- Login handshake (§4.6 steps 1-4) ---

func (sc *serverConn) handleLogin(raw json.RawMessage) error {
	var p protocol.Login
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode login")
	}

	if p.GlobalPwHash != cryptoutil.ChallengeHash(sc.token, sc.s.globalPassword) {
		sc.writeJSON(protocol.LoginFailed{Type: "login_failed", Reason: protocol.ReasonWrongGlobalPassword})
		return nil
	}

	color := session.Color{R: p.R, G: p.G, B: p.B}
	if sc.s.registry.ColorInUse(color, 0) {
		sc.writeJSON(protocol.LoginFailed{Type: "login_failed", Reason: protocol.ReasonColorInUse})
		return nil
	}

	existing, hadRow := sc.s.registry.ByName(p.Name)
	if hadRow && existing.PasswordHash != "" && p.UserPwHash != cryptoutil.ChallengeHash(sc.token, existing.PasswordHash) {
		sc.writeJSON(protocol.LoginFailed{Type: "login_failed", Reason: protocol.ReasonWrongUserPassword})
		return nil
	}

	u, err := sc.s.registry.Login(p.Name, color, sc.token, p.UserPwHash)
	if err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "login")
	}

	sc.mu.Lock()
	sc.userID = u.ID
	sc.loggedIn = true
	sc.mu.Unlock()

	sc.s.mu.Lock()
	sc.s.conns[u.ID] = sc
	sc.s.mu.Unlock()

	sc.sendSessionSync(u.ID)
	sc.s.broadcastExcept(u.ID, protocol.UserJoin{Type: "user_join", ID: uint32(u.ID), Name: u.Name, Color: protocol.Color{R: u.Color.R, G: u.Color.G, B: u.Color.B}})
	sc.log.Info("user logged in", zap.String("name", u.Name), zap.Uint32("id", uint32(u.ID)))
	return nil
}

func (sc *serverConn) handleUserPassword(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.UserPassword
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode user_password")
	}
	plaintext, err := sc.keys.Decrypt([]byte(p.RSAEncrypted))
	if err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decrypt user_password")
	}
	hash := cryptoutil.SHA1Hex(plaintext)
	if err := sc.s.registry.SetPasswordHash(uid, hash); err != nil {
		return protocol.Wrap(protocol.KindInvariantViolation, err, "set password")
	}
	return nil
}

// sendSessionSync streams sync_init, every not-connected user row, every
// document, then sync_final, per §4.6's post-login session sync.
func (sc *serverConn) sendSessionSync(self content.UserID) {
	notConnected := sc.s.registry.NotConnected()
	sc.s.mu.Lock()
	docs := make([]*doc.Coordinator, 0, len(sc.s.docs))
	for _, d := range sc.s.docs {
		docs = append(docs, d)
	}
	sc.s.mu.Unlock()

	sc.writeJSON(protocol.SyncInit{Type: "sync_init", NonConnectedUserCount: uint32(len(notConnected)), DocumentCount: uint32(len(docs)), SelfID: uint32(self)})
	for _, u := range notConnected {
		sc.writeJSON(protocol.SyncUsertableUser{Type: "sync_usertable_user", ID: uint32(u.ID), Name: u.Name, Color: protocol.Color{R: u.Color.R, G: u.Color.G, B: u.Color.B}})
	}
	for _, d := range docs {
		info := d.Info()
		var owner *protocol.UserRef
		if o := d.Owner(); o != nil {
			owner = &protocol.UserRef{ID: uint32(*o)}
		}
		var subs []protocol.UserRef
		for _, s := range d.Subscribers() {
			subs = append(subs, protocol.UserRef{ID: uint32(s)})
		}
		sc.writeJSON(protocol.SyncDoclistDocument{Type: "sync_doclist_document", Owner: owner, ID: info.ID, Title: info.Title, Suffix: info.Suffix, Encoding: d.Encoding(), Subscribers: subs})
	}
	sc.writeJSON(protocol.SyncFinal{Type: "sync_final"})
}

// --- Document lifecycle ---

func (sc *serverConn) handleDocumentCreate(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.DocumentCreate
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode document_create")
	}

	owner := uid
	initial := content.New(p.Content, &owner)

	sc.s.mu.Lock()
	id := sc.s.nextDocID
	sc.s.nextDocID++
	infos := make([]doc.Info, 0, len(sc.s.docs))
	for _, d := range sc.s.docs {
		infos = append(infos, d.Info())
	}
	suffix := doc.FindFreeSuffix(infos, p.Title, id)
	coord := doc.NewServer(id, &owner, p.Title, suffix, p.Encoding, initial, sc.s.privilegesFor, sc.s.hooksFor(id))
	sc.s.docs[id] = coord
	sc.s.mu.Unlock()

	if err := coord.Subscribe(uid); err != nil {
		return protocol.Wrap(protocol.KindInvariantViolation, err, "implicit owner subscribe")
	}

	sc.s.broadcastAll(protocol.DocumentCreate{Type: "document_create", Owner: &protocol.UserRef{ID: uint32(owner)}, ID: id, Title: p.Title, Suffix: suffix, Encoding: p.Encoding})
	return nil
}

func (sc *serverConn) handleDocumentRemove(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.DocumentRemove
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode document_remove")
	}
	coord, err := sc.s.doc(p.DocID)
	if err != nil {
		return err
	}
	owner := coord.Owner()
	isOwner := owner != nil && *owner == uid
	if !isOwner && !sc.s.registry.Privileges(uid).Has(session.PrivClose) {
		return protocol.Newf(protocol.KindAuthDenied, "document_remove requires ownership or the close privilege")
	}
	sc.s.mu.Lock()
	delete(sc.s.docs, p.DocID)
	sc.s.mu.Unlock()
	sc.s.broadcastAll(protocol.DocumentRemove{Type: "document_remove", DocID: p.DocID})
	return nil
}

func (sc *serverConn) handleDocSubscribe(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.DocSubscribe
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_subscribe")
	}
	coord, err := sc.s.doc(p.DocID)
	if err != nil {
		return err
	}
	if err := coord.Subscribe(uid); err != nil {
		return protocol.Wrap(protocol.KindAuthDenied, err, "doc_subscribe")
	}
	return nil
}

func (sc *serverConn) handleDocUnsubscribe(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.DocUnsubscribe
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_unsubscribe")
	}
	coord, err := sc.s.doc(p.DocID)
	if err != nil {
		return err
	}
	if err := coord.Unsubscribe(uid); err != nil {
		return protocol.Wrap(protocol.KindAuthDenied, err, "doc_unsubscribe")
	}
	// Acknowledge to the requester: a doc_unsubscribe without a user.
	sc.writeJSON(protocol.DocUnsubscribe{Type: "doc_unsubscribe", DocID: p.DocID})
	return nil
}

func (sc *serverConn) handleDocRecord(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.DocRecord
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_record")
	}
	coord, err := sc.s.doc(p.DocID)
	if err != nil {
		return err
	}
	op, err := protocol.DecodeOp(p.Op)
	if err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_record op")
	}
	rec := jupiter.Record{Author: uid, Op: op, SV: jupiter.StateVector{LocalCount: p.SVLocal, RemoteCount: p.SVRemote}}
	if err := coord.HandleIncomingRecord(uid, rec); err != nil {
		return protocol.Wrap(protocol.KindInvariantViolation, err, "doc_record")
	}
	return nil
}

func (sc *serverConn) handleDocRename(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.DocRename
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_rename")
	}
	coord, err := sc.s.doc(p.DocID)
	if err != nil {
		return err
	}
	if err := coord.Rename(p.NewTitle, func(title string, exceptID uint32) uint32 {
		return doc.FindFreeSuffix(sc.s.snapshotDocInfos(), title, exceptID)
	}, uid); err != nil {
		return protocol.Wrap(protocol.KindAuthDenied, err, "doc_rename")
	}
	return nil
}

func (sc *serverConn) handleMessage(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.Message
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode message")
	}
	sc.s.broadcastExcept(uid, protocol.Message{Type: "message", Writer: &protocol.UserRef{ID: uint32(uid)}, Text: p.Text})
	return nil
}

func (sc *serverConn) handleUserColour(raw json.RawMessage) error {
	uid, err := sc.requireLogin()
	if err != nil {
		return err
	}
	var p protocol.UserColour
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode user_colour")
	}
	color := session.Color{R: p.R, G: p.G, B: p.B}
	if sc.s.registry.ColorInUse(color, uid) {
		sc.writeJSON(protocol.UserColourFailed{Type: "user_colour_failed"})
		return nil
	}
	if err := sc.s.registry.SetColor(uid, color); err != nil {
		return protocol.Wrap(protocol.KindInvariantViolation, err, "user_colour")
	}
	sc.s.broadcastAll(protocol.UserColour{Type: "user_colour", User: protocol.UserRef{ID: uint32(uid)}, Color: protocol.Color{R: p.R, G: p.G, B: p.B}})
	return nil
}

// --- Server helpers shared across connections ---

func (s *Server) doc(id uint32) (*doc.Coordinator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.docs[id]
	if !ok {
		return nil, protocol.Newf(protocol.KindProtocolViolation, "unknown document %d", id)
	}
	return c, nil
}

// snapshotDocInfos returns every document's (id, title, suffix) as of now,
// for the suffix finder (doc.FindFreeSuffix), which needs a point-in-time
// view rather than a live-locked table.
func (s *Server) snapshotDocInfos() []doc.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]doc.Info, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Info())
	}
	return out
}

func (s *Server) sendTo(id content.UserID, v interface{}) {
	s.mu.Lock()
	sc, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	sc.writeJSON(v)
}

func (s *Server) broadcastExcept(skip content.UserID, v interface{}) {
	s.mu.Lock()
	targets := make([]*serverConn, 0, len(s.conns))
	for id, sc := range s.conns {
		if id == skip {
			continue
		}
		targets = append(targets, sc)
	}
	s.mu.Unlock()
	for _, sc := range targets {
		sc.writeJSON(v)
	}
}

func (s *Server) broadcastAll(v interface{}) {
	s.mu.Lock()
	targets := make([]*serverConn, 0, len(s.conns))
	for _, sc := range s.conns {
		targets = append(targets, sc)
	}
	s.mu.Unlock()
	for _, sc := range targets {
		sc.writeJSON(v)
	}
}

// hooksFor builds the doc.Hooks a server-role Coordinator uses to reach
// this Server's transport and event-broadcast machinery, replacing the
// teacher's inline hub.broadcast channel send with per-document,
// per-subscriber addressed delivery (§4.4's fan-out is now the
// coordinator's job; hooksFor is how it reaches the wire).
func (s *Server) hooksFor(docID uint32) doc.Hooks {
	return doc.Hooks{
		SendRecord: func(to content.UserID, rec jupiter.Record) {
			w, err := protocol.EncodeOp(rec.Op)
			if err != nil {
				s.log.Error("encode outbound op", zap.Error(err))
				return
			}
			s.sendTo(to, protocol.DocRecord{Type: "doc_record", DocID: docID, Author: uint32(rec.Author), SVLocal: rec.SV.LocalCount, SVRemote: rec.SV.RemoteCount, Op: w})
		},
		SendSyncInit: func(to content.UserID, chunkCount int) {
			s.sendTo(to, protocol.DocSyncInit{Type: "doc_sync_init", DocID: docID, ChunkCount: uint32(chunkCount)})
		},
		SendSyncChunk: func(to content.UserID, chunk content.Chunk) {
			var author *protocol.UserRef
			if chunk.Author != nil {
				author = &protocol.UserRef{ID: uint32(*chunk.Author)}
			}
			s.sendTo(to, protocol.DocSyncChunk{Type: "doc_sync_chunk", DocID: docID, Text: chunk.Text, Author: author})
		},
		SendSyncFinal: func(to content.UserID) {
			s.sendTo(to, protocol.DocSyncFinal{Type: "doc_sync_final", DocID: docID})
		},
		SendSubscribeNotice: func(to, subject content.UserID) {
			s.sendTo(to, protocol.DocSubscribe{Type: "doc_subscribe", DocID: docID, User: &protocol.UserRef{ID: uint32(subject)}})
		},
		SendUnsubscribeNotice: func(to, subject content.UserID) {
			s.sendTo(to, protocol.DocUnsubscribe{Type: "doc_unsubscribe", DocID: docID, User: &protocol.UserRef{ID: uint32(subject)}})
		},
		SendRename: func(to content.UserID, title string, suffix uint32) {
			s.sendTo(to, protocol.DocRename{Type: "doc_rename", DocID: docID, NewTitle: title, NewSuffix: suffix})
		},
		Changed: func(rec jupiter.Record) {
			if s.broker == nil {
				return
			}
			w, err := protocol.EncodeOp(rec.Op)
			if err != nil {
				return
			}
			buf, err := json.Marshal(protocol.DocRecord{Type: "doc_record", DocID: docID, Author: uint32(rec.Author), Op: w})
			if err != nil {
				return
			}
			if err := s.broker.Publish(context.Background(), presenceChannel(docID), buf); err != nil {
				s.log.Warn("broker publish failed", zap.Error(err))
			}
		},
	}
}

func presenceChannel(docID uint32) string {
	return "goatee:doc:" + itoa(docID)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
