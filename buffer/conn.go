package buffer

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/cryptoutil"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/protocol"
)

// defaultProtocolVersion is used when Config.ProtocolVersion is left zero.
const defaultProtocolVersion = 1

// serverConn is one attached transport's server-side state: its websocket,
// its send queue, and (once logged in) the user id it authenticates as.
// Modeled on the teacher's hub.stream, generalized past a single hard-coded
// document to the full command dispatch table.
type serverConn struct {
	s    *Server
	conn *websocket.Conn
	log  *zap.Logger
	send chan []byte

	dispatcher *protocol.Dispatcher
	keys       *cryptoutil.KeyPair
	token      string

	mu       sync.Mutex
	userID   content.UserID
	loggedIn bool
}

func newServerConn(s *Server, conn *websocket.Conn) *serverConn {
	sc := &serverConn{
		s:     s,
		conn:  conn,
		log:   s.log,
		send:  make(chan []byte, 64),
		token: newToken(),
	}
	sc.dispatcher = protocol.NewDispatcher()
	sc.registerHandlers()
	return sc
}

func (sc *serverConn) writeJSON(v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		sc.log.Error("marshal outbound packet", zap.Error(err))
		return
	}
	sc.enqueue(buf)
}

func (sc *serverConn) enqueue(buf []byte) {
	select {
	case sc.send <- buf:
	default:
		sc.log.Warn("dropping outbound packet: send queue full")
	}
}

// run drives one connection end to end: issue welcome, then loop reading
// and dispatching packets until the client disconnects, cleaning up
// registry/document state on exit.
func (sc *serverConn) run() {
	keys, err := cryptoutil.Keygen(1024)
	if err != nil {
		sc.log.Error("keygen for login handshake failed", zap.Error(err))
		sc.conn.Close()
		return
	}
	sc.keys = keys
	n, k := keys.PublicParams()
	sc.writeJSON(protocol.Welcome{Type: "welcome", ProtocolVersion: sc.s.protocolVersion, Token: sc.token, RSAModulus: n, RSAExponent: k})

	done := make(chan struct{})
	go sc.writeLoop(done)

	for {
		_, buf, err := sc.conn.ReadMessage()
		if err != nil {
			break
		}
		if derr := sc.dispatcher.Dispatch(buf); derr != nil {
			sc.log.Warn("dispatch failed", zap.Error(derr))
			if kind, ok := protocol.KindOf(derr); ok && (kind == protocol.KindProtocolViolation || kind == protocol.KindInvariantViolation) {
				// Fatal to the connection, never to the process (§7).
				break
			}
		}
	}
	close(done)
	sc.conn.Close()
	sc.onDisconnect()
}

func (sc *serverConn) writeLoop(done <-chan struct{}) {
	for {
		select {
		case msg := <-sc.send:
			if err := sc.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// onDisconnect applies §7's transport-failure policy: mark the user not
// CONNECTED (its row is retained), drop this connection from the server's
// live set, unsubscribe the user from every document (which drops its
// Jupiter sites there), and tell every other connected user this one has
// parted.
func (sc *serverConn) onDisconnect() {
	sc.mu.Lock()
	uid, loggedIn := sc.userID, sc.loggedIn
	sc.mu.Unlock()
	if !loggedIn {
		return
	}
	if err := sc.s.registry.Disconnect(uid); err != nil {
		sc.log.Warn("disconnect: unknown user", zap.Uint32("user", uint32(uid)))
	}
	sc.s.mu.Lock()
	delete(sc.s.conns, uid)
	docs := make([]*doc.Coordinator, 0, len(sc.s.docs))
	for _, d := range sc.s.docs {
		docs = append(docs, d)
	}
	sc.s.mu.Unlock()
	for _, d := range docs {
		// Documents the user was not subscribed to return ErrNotSubscribed.
		_ = d.Unsubscribe(uid)
	}
	sc.s.broadcastExcept(uid, protocol.UserPart{Type: "user_part", ID: uint32(uid)})
}
