package buffer

import (
	"encoding/json"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/jupiter"
	"github.com/goatee-collab/goatee/protocol"
)

// registerHandlers wires the server->client commands named in §6 to this
// Client's state and its per-document coordinators. user_colour and
// user_colour_failed have no handler here; the dispatcher reports them as
// unexpected commands.
func (c *Client) registerHandlers() {
	c.dispatcher.Handle("welcome", c.handleWelcome)
	c.dispatcher.Handle("login_failed", c.handleLoginFailed)
	c.dispatcher.Handle("sync_init", c.handleSyncInit)
	c.dispatcher.Handle("sync_usertable_user", c.handleSyncUsertableUser)
	c.dispatcher.Handle("sync_doclist_document", c.handleSyncDoclistDocument)
	c.dispatcher.Handle("sync_final", c.handleSyncFinal)
	c.dispatcher.Handle("document_create", c.handleDocumentCreate)
	c.dispatcher.Handle("document_remove", c.handleDocumentRemove)
	c.dispatcher.Handle("message", c.handleMessage)
	c.dispatcher.Handle("user_join", c.handleUserJoin)
	c.dispatcher.Handle("user_part", c.handleUserPart)
	c.dispatcher.Handle("doc_record", c.handleDocRecord)
	c.dispatcher.Handle("doc_sync_init", c.handleDocSyncInit)
	c.dispatcher.Handle("doc_sync_chunk", c.handleDocSyncChunk)
	c.dispatcher.Handle("doc_sync_final", c.handleDocSyncFinal)
	c.dispatcher.Handle("doc_subscribe", c.handleDocSubscribeNotice)
	c.dispatcher.Handle("doc_unsubscribe", c.handleDocUnsubscribeNotice)
	c.dispatcher.Handle("doc_rename", c.handleDocRename)
}

func (c *Client) handleWelcome(raw json.RawMessage) error {
	var p protocol.Welcome
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode welcome")
	}
	// The wire format gives the client no channel to announce its own
	// version before welcome arrives, so the mismatch check runs here
	// instead of server-side: a client speaking a different protocol
	// version than the server just offered refuses to proceed to login.
	if p.ProtocolVersion != defaultProtocolVersion {
		if c.hooks.LoginFailed != nil {
			c.hooks.LoginFailed(protocol.ReasonProtocolVersionMismatch)
		}
		return nil
	}
	c.mu.Lock()
	c.token, c.rsaN, c.rsaK = p.Token, p.RSAModulus, p.RSAExponent
	c.mu.Unlock()
	return nil
}

func (c *Client) handleLoginFailed(raw json.RawMessage) error {
	var p protocol.LoginFailed
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode login_failed")
	}
	if c.hooks.LoginFailed != nil {
		c.hooks.LoginFailed(p.Reason)
	}
	return nil
}

func (c *Client) handleSyncInit(raw json.RawMessage) error {
	var p protocol.SyncInit
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode sync_init")
	}
	c.mu.Lock()
	c.self = content.UserID(p.SelfID)
	c.mu.Unlock()
	return nil
}

func (c *Client) handleSyncUsertableUser(raw json.RawMessage) error {
	var p protocol.SyncUsertableUser
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode sync_usertable_user")
	}
	return nil
}

func (c *Client) handleSyncDoclistDocument(raw json.RawMessage) error {
	var p protocol.SyncDoclistDocument
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode sync_doclist_document")
	}
	c.mu.Lock()
	c.registerDocLocked(p.ID, p.Title, p.Suffix, p.Encoding)
	c.mu.Unlock()
	if c.hooks.DocumentListed != nil {
		var owner *content.UserID
		if p.Owner != nil {
			u := content.UserID(p.Owner.ID)
			owner = &u
		}
		c.hooks.DocumentListed(doc.Info{ID: p.ID, Title: p.Title, Suffix: p.Suffix}, owner)
	}
	return nil
}

func (c *Client) handleSyncFinal(raw json.RawMessage) error {
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()
	if c.hooks.LoggedIn != nil {
		c.hooks.LoggedIn(self)
	}
	return nil
}

func (c *Client) handleDocumentCreate(raw json.RawMessage) error {
	var p protocol.DocumentCreate
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode document_create")
	}
	c.mu.Lock()
	c.registerDocLocked(p.ID, p.Title, p.Suffix, p.Encoding)
	c.mu.Unlock()
	if c.hooks.DocumentListed != nil {
		var owner *content.UserID
		if p.Owner != nil {
			u := content.UserID(p.Owner.ID)
			owner = &u
		}
		c.hooks.DocumentListed(doc.Info{ID: p.ID, Title: p.Title, Suffix: p.Suffix}, owner)
	}
	return nil
}

func (c *Client) handleDocumentRemove(raw json.RawMessage) error {
	var p protocol.DocumentRemove
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode document_remove")
	}
	c.mu.Lock()
	delete(c.docs, p.DocID)
	c.mu.Unlock()
	if c.hooks.DocumentGone != nil {
		c.hooks.DocumentGone(p.DocID)
	}
	return nil
}

func (c *Client) handleMessage(raw json.RawMessage) error {
	var p protocol.Message
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode message")
	}
	if c.hooks.MessageArrived != nil {
		var writer *content.UserID
		if p.Writer != nil {
			u := content.UserID(p.Writer.ID)
			writer = &u
		}
		c.hooks.MessageArrived(writer, p.Text)
	}
	return nil
}

func (c *Client) handleUserJoin(raw json.RawMessage) error {
	var p protocol.UserJoin
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode user_join")
	}
	if c.hooks.UserJoined != nil {
		c.hooks.UserJoined(content.UserID(p.ID), p.Name, protocol.Color{R: p.R, G: p.G, B: p.B})
	}
	return nil
}

func (c *Client) handleUserPart(raw json.RawMessage) error {
	var p protocol.UserPart
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode user_part")
	}
	if c.hooks.UserParted != nil {
		c.hooks.UserParted(content.UserID(p.ID))
	}
	return nil
}

func (c *Client) docFor(id uint32) (*doc.Coordinator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[id]
	if !ok {
		return nil, protocol.Newf(protocol.KindProtocolViolation, "record for unknown document %d", id)
	}
	return d, nil
}

func (c *Client) handleDocRecord(raw json.RawMessage) error {
	var p protocol.DocRecord
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_record")
	}
	d, err := c.docFor(p.DocID)
	if err != nil {
		return err
	}
	op, err := protocol.DecodeOp(p.Op)
	if err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_record op")
	}
	rec := jupiter.Record{Author: content.UserID(p.Author), Op: op, SV: jupiter.StateVector{LocalCount: p.SVLocal, RemoteCount: p.SVRemote}}
	if err := d.HandleServerRecord(rec); err != nil {
		return protocol.Wrap(protocol.KindInvariantViolation, err, "doc_record")
	}
	return nil
}

func (c *Client) handleDocSyncInit(raw json.RawMessage) error {
	var p protocol.DocSyncInit
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_sync_init")
	}
	d, err := c.docFor(p.DocID)
	if err != nil {
		return err
	}
	d.HandleSyncInit(int(p.ChunkCount))
	return nil
}

func (c *Client) handleDocSyncChunk(raw json.RawMessage) error {
	var p protocol.DocSyncChunk
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_sync_chunk")
	}
	d, err := c.docFor(p.DocID)
	if err != nil {
		return err
	}
	var author *content.UserID
	if p.Author != nil {
		u := content.UserID(p.Author.ID)
		author = &u
	}
	if err := d.HandleSyncChunk(p.Text, author); err != nil {
		return protocol.Wrap(protocol.KindInvariantViolation, err, "doc_sync_chunk")
	}
	return nil
}

func (c *Client) handleDocSyncFinal(raw json.RawMessage) error {
	var p protocol.DocSyncFinal
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_sync_final")
	}
	d, err := c.docFor(p.DocID)
	if err != nil {
		return err
	}
	if err := d.HandleSyncFinal(); err != nil {
		return protocol.Wrap(protocol.KindInvariantViolation, err, "doc_sync_final")
	}
	return nil
}

func (c *Client) handleDocSubscribeNotice(raw json.RawMessage) error {
	var p protocol.DocSubscribe
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_subscribe")
	}
	d, err := c.docFor(p.DocID)
	if err != nil {
		return err
	}
	if p.User != nil {
		d.HandlePeerSubscribed(content.UserID(p.User.ID))
	}
	return nil
}

func (c *Client) handleDocUnsubscribeNotice(raw json.RawMessage) error {
	var p protocol.DocUnsubscribe
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_unsubscribe")
	}
	d, err := c.docFor(p.DocID)
	if err != nil {
		return err
	}
	if p.User != nil {
		d.HandlePeerUnsubscribed(content.UserID(p.User.ID))
	} else {
		d.HandleUnsubscribeAck()
	}
	return nil
}

func (c *Client) handleDocRename(raw json.RawMessage) error {
	var p protocol.DocRename
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Wrap(protocol.KindProtocolViolation, err, "decode doc_rename")
	}
	d, err := c.docFor(p.DocID)
	if err != nil {
		return err
	}
	d.ApplyRenameFromServer(p.NewTitle, p.NewSuffix)
	return nil
}
