package doc

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/jupiter"
	"github.com/goatee-collab/goatee/ot"
	"github.com/goatee-collab/goatee/session"
)

// Subscribe drives the SUBSCRIBING transition. On the client it requests
// subscription from the server; on the server it is how the owner's
// implicit subscription (§4.5, "the owner of a newly-created document is
// implicitly subscribed") and any other direct subscription is recorded.
func (c *Coordinator) Subscribe(user content.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.role {
	case RoleClient:
		if c.selfState != Unsubscribed {
			return fmt.Errorf("%w", ErrAlreadySubscribed)
		}
		c.selfState = Subscribing
		if c.hooks.RequestSubscribe != nil {
			c.hooks.RequestSubscribe()
		}
		return nil
	default: // RoleServer
		return c.serverSubscribeLocked(user)
	}
}

func (c *Coordinator) serverSubscribeLocked(user content.UserID) error {
	if c.subscribers.Contains(user) {
		return fmt.Errorf("%w", ErrAlreadySubscribed)
	}
	if err := c.checkPriv(user, session.PrivSubscribe); err != nil {
		return err
	}

	c.subState[user] = Subscribing
	c.subscribers.Add(user)
	c.perSite[user] = jupiter.New(c.content, ot.Left, func(r jupiter.Record) {
		if c.hooks.SendRecord != nil {
			c.hooks.SendRecord(user, r)
		}
	})
	c.subState[user] = Subscribed

	chunks := c.content.Chunks()
	if c.hooks.SendSyncInit != nil {
		c.hooks.SendSyncInit(user, len(chunks))
	}
	for _, ch := range chunks {
		if c.hooks.SendSyncChunk != nil {
			c.hooks.SendSyncChunk(user, ch)
		}
	}
	if c.hooks.SendSyncFinal != nil {
		c.hooks.SendSyncFinal(user)
	}

	for other := range c.subscribers.Iter() {
		if other == user {
			continue
		}
		if c.hooks.SendSubscribeNotice != nil {
			c.hooks.SendSubscribeNotice(other, user)
		}
	}
	if c.hooks.Subscribed != nil {
		c.hooks.Subscribed(user)
	}
	return nil
}

// Unsubscribe is the symmetric teardown, dropping the user's Jupiter site
// (server) or discarding local content (client). No content transfer
// occurs, unlike Subscribe.
func (c *Coordinator) Unsubscribe(user content.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.role {
	case RoleClient:
		if c.selfState != Subscribed {
			return fmt.Errorf("%w", ErrNotSubscribed)
		}
		c.selfState = Unsubscribing
		if c.hooks.RequestUnsubscribe != nil {
			c.hooks.RequestUnsubscribe()
		}
		return nil
	default:
		if !c.subscribers.Contains(user) {
			return fmt.Errorf("%w", ErrNotSubscribed)
		}
		c.subState[user] = Unsubscribing
		c.subscribers.Remove(user)
		delete(c.perSite, user)
		c.subState[user] = Unsubscribed
		for other := range c.subscribers.Iter() {
			if c.hooks.SendUnsubscribeNotice != nil {
				c.hooks.SendUnsubscribeNotice(other, user)
			}
		}
		if c.hooks.Unsubscribed != nil {
			c.hooks.Unsubscribed(user)
		}
		return nil
	}
}

// HandleSyncInit is the client-role callback for the server's sync_init
// packet: it allocates empty content and starts buffering chunks.
func (c *Coordinator) HandleSyncInit(chunkCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = content.New("", nil)
	c.pendingCnt = chunkCount
}

// HandleSyncChunk appends one streamed chunk.
func (c *Coordinator) HandleSyncChunk(text string, author *content.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.content == nil {
		return fmt.Errorf("doc: sync_chunk received before sync_init")
	}
	pos := c.content.Length()
	if err := c.content.InsertAt(pos, text, author); err != nil {
		return err
	}
	if c.pendingCnt > 0 {
		c.pendingCnt--
	}
	return nil
}

// HandleSyncFinal completes the SUBSCRIBING -> SUBSCRIBED transition and
// instantiates the client's Jupiter site against the server.
func (c *Coordinator) HandleSyncFinal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.content == nil {
		return fmt.Errorf("doc: sync_final received before sync_init")
	}
	c.selfState = Subscribed
	c.clientSite = jupiter.New(c.content, ot.Right, func(r jupiter.Record) {
		if c.hooks.SendRecord != nil {
			c.hooks.SendRecord(content.ServerUserID, r)
		}
	})
	return nil
}

// HandlePeerSubscribed/HandlePeerUnsubscribed are the client-role callbacks
// for the server's subscribe(user)/unsubscribe(user) broadcasts.
func (c *Coordinator) HandlePeerSubscribed(user content.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribers == nil {
		c.subscribers = mapset.NewSet[content.UserID]()
	}
	c.subscribers.Add(user)
	if c.hooks.Subscribed != nil {
		c.hooks.Subscribed(user)
	}
}

func (c *Coordinator) HandlePeerUnsubscribed(user content.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribers != nil {
		c.subscribers.Remove(user)
	}
	if c.hooks.Unsubscribed != nil {
		c.hooks.Unsubscribed(user)
	}
}

// HandleUnsubscribeAck completes the client's UNSUBSCRIBING -> UNSUBSCRIBED
// transition once the server acknowledges.
func (c *Coordinator) HandleUnsubscribeAck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfState = Unsubscribed
	c.content = nil
	c.clientSite = nil
}

// State returns the client's own subscription state (client role only).
func (c *Coordinator) State() SubState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfState
}

// SubStateOf returns a subscriber's state (server role only).
func (c *Coordinator) SubStateOf(user content.UserID) SubState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.subState[user]; ok {
		return st
	}
	return Unsubscribed
}
