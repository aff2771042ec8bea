package buffer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/cryptoutil"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/jupiter"
	"github.com/goatee-collab/goatee/protocol"
)

// ClientHooks are the observable events a client-role Buffer fires, the
// client-side half of doc.Hooks' Changed/Subscribed/Renamed feed plus
// session-level events with no per-document home.
type ClientHooks struct {
	LoggedIn       func(self content.UserID)
	LoginFailed    func(reason string)
	UserJoined     func(id content.UserID, name string, color protocol.Color)
	UserParted     func(id content.UserID)
	MessageArrived func(writer *content.UserID, text string)
	DocumentListed func(info doc.Info, owner *content.UserID)
	DocumentGone   func(id uint32)
}

// Client is the client-role counterpart to Server (C7, client role): it
// owns the websocket connection, the login handshake's client half, and
// one doc.Coordinator per document it knows about, keyed by doc id.
type Client struct {
	log   *zap.Logger
	conn  *websocket.Conn
	hooks ClientHooks

	dispatcher *protocol.Dispatcher
	sendMu     sync.Mutex

	mu       sync.Mutex
	self     content.UserID
	docs     map[uint32]*doc.Coordinator
	rsaN     string
	rsaK     string
	token    string
}

// Dial connects to a goateed server at url (e.g. "ws://host:port/") and
// returns a Client ready to Login.
func Dial(url string, log *zap.Logger, hooks ClientHooks) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("buffer: dial %s: %w", url, err)
	}
	c := &Client{
		log:   log,
		conn:  conn,
		hooks: hooks,
		docs:  make(map[uint32]*doc.Coordinator),
	}
	c.dispatcher = protocol.NewDispatcher()
	c.registerHandlers()
	go c.readLoop()
	return c, nil
}

func (c *Client) writeJSON(v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, buf)
}

func (c *Client) readLoop() {
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Info("connection closed", zap.Error(err))
			return
		}
		if err := c.dispatcher.Dispatch(buf); err != nil {
			c.log.Warn("dispatch failed", zap.Error(err))
		}
	}
}

// Login sends the login packet once welcome has been received (tracked
// internally via the welcome token being recorded), per §4.6 step 2. It
// waits up to five seconds for welcome and returns an error if none arrives.
func (c *Client) Login(name string, color protocol.Color, globalPassword, userPassword string) error {
	deadline := time.Now().Add(5 * time.Second)
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	for token == "" {
		if time.Now().After(deadline) {
			return fmt.Errorf("buffer: no welcome received before login")
		}
		time.Sleep(5 * time.Millisecond)
		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
	}
	return c.writeJSON(protocol.Login{
		Type:         "login",
		Name:         name,
		Color:        color,
		GlobalPwHash: cryptoutil.ChallengeHash(token, globalPassword),
		UserPwHash:   cryptoutil.ChallengeHash(token, userPassword),
	})
}

// ChangePassword encrypts newPassword under the server's RSA public key and
// ships it as a user_password packet (§4.6's encrypted password-change
// channel); the server stores the SHA1 of the decrypted password.
func (c *Client) ChangePassword(newPassword string) error {
	c.mu.Lock()
	n, k := c.rsaN, c.rsaK
	c.mu.Unlock()
	ct, err := cryptoutil.Encrypt(n, k, []byte(newPassword))
	if err != nil {
		return fmt.Errorf("buffer: encrypt user_password: %w", err)
	}
	return c.writeJSON(protocol.UserPassword{Type: "user_password", RSAEncrypted: string(ct)})
}

func (c *Client) CreateDocument(title, encoding, text string) error {
	return c.writeJSON(protocol.DocumentCreate{Type: "document_create", Title: title, Encoding: encoding, Content: text})
}

func (c *Client) RemoveDocument(id uint32) error {
	return c.writeJSON(protocol.DocumentRemove{Type: "document_remove", DocID: id})
}

func (c *Client) SendMessage(text string) error {
	return c.writeJSON(protocol.Message{Type: "message", Text: text})
}

func (c *Client) SetColour(color protocol.Color) error {
	return c.writeJSON(protocol.UserColour{Type: "user_colour", Color: color})
}

// Document returns the coordinator for a document this client has been
// told about (via sync_doclist_document or document_create), or nil.
func (c *Client) Document(id uint32) *doc.Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs[id]
}

// Self returns the user id the server assigned this client at login, valid
// once the LoggedIn hook has fired.
func (c *Client) Self() content.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Client) registerDocLocked(id uint32, title string, suffix uint32, encoding string) *doc.Coordinator {
	if existing, ok := c.docs[id]; ok {
		return existing
	}
	coord := doc.NewClient(id, title, suffix, encoding, doc.Hooks{
		SendRecord: func(to content.UserID, rec jupiter.Record) {
			w, err := protocol.EncodeOp(rec.Op)
			if err != nil {
				c.log.Error("encode op", zap.Error(err))
				return
			}
			if err := c.writeJSON(protocol.DocRecord{Type: "doc_record", DocID: id, Author: uint32(rec.Author), SVLocal: rec.SV.LocalCount, SVRemote: rec.SV.RemoteCount, Op: w}); err != nil {
				c.log.Warn("send doc_record", zap.Error(err))
			}
		},
		RequestSubscribe: func() {
			if err := c.writeJSON(protocol.DocSubscribe{Type: "doc_subscribe", DocID: id}); err != nil {
				c.log.Warn("send doc_subscribe", zap.Error(err))
			}
		},
		RequestUnsubscribe: func() {
			if err := c.writeJSON(protocol.DocUnsubscribe{Type: "doc_unsubscribe", DocID: id}); err != nil {
				c.log.Warn("send doc_unsubscribe", zap.Error(err))
			}
		},
		SendRename: func(_ content.UserID, title string, _ uint32) {
			if err := c.writeJSON(protocol.DocRename{Type: "doc_rename", DocID: id, NewTitle: title}); err != nil {
				c.log.Warn("send doc_rename", zap.Error(err))
			}
		},
	})
	c.docs[id] = coord
	return coord
}
