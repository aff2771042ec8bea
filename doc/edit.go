package doc

import (
	"fmt"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/jupiter"
	"github.com/goatee-collab/goatee/ot"
	"github.com/goatee-collab/goatee/session"
)

// Insert performs a local insertion by author, routing it through the
// appropriate Jupiter site (§4.4). On the client this is the local user's
// own edit; on the server it is used for server-authored edits (author
// content.ServerUserID) such as programmatic seeding.
func (c *Coordinator) Insert(pos int, text string, author content.UserID) error {
	return c.localOp(&ot.Insert{Pos: pos, Text: text}, author)
}

// Erase performs a local deletion.
func (c *Coordinator) Erase(pos, length int, author content.UserID) error {
	return c.localOp(&ot.Delete{Pos: pos, Len: length}, author)
}

func (c *Coordinator) localOp(op ot.Op, author content.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.role {
	case RoleClient:
		if c.selfState != Subscribed || c.clientSite == nil {
			return fmt.Errorf("%w", ErrNotSubscribed)
		}
		rec, err := c.clientSite.LocalOp(op, author)
		if err != nil {
			return err
		}
		if c.hooks.Changed != nil {
			c.hooks.Changed(rec)
		}
		return nil
	default: // RoleServer
		if author == content.ServerUserID {
			// Server-authored edits (programmatic seeding, imports) have no
			// Jupiter twin of their own: apply directly to the canonical
			// content and fan the op out, untransformed, to every subscriber.
			if err := op.Apply(c.content, &author); err != nil {
				return err
			}
			if c.hooks.Changed != nil {
				c.hooks.Changed(jupiter.Record{Author: author, Op: op})
			}
			return c.fanOutLocked(content.ServerUserID, op, author)
		}
		if err := c.checkPriv(author, session.PrivModify); err != nil {
			return err
		}
		site, ok := c.perSite[author]
		if !ok {
			return fmt.Errorf("%w", ErrNoSite)
		}
		rec, err := site.LocalOp(op, author)
		if err != nil {
			return err
		}
		if c.hooks.Changed != nil {
			c.hooks.Changed(rec)
		}
		return c.fanOutLocked(author, op, author)
	}
}

// HandleIncomingRecord processes a record received from a client (server
// role): it transforms and applies the op via that client's Jupiter twin,
// then forwards the transformed op to every other subscriber's twin so the
// star topology converges (§4.4).
func (c *Coordinator) HandleIncomingRecord(from content.UserID, rec jupiter.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != RoleServer {
		panic("doc: HandleIncomingRecord called on a client coordinator")
	}
	if !c.subscribers.Contains(from) || c.subState[from] != Subscribed {
		return fmt.Errorf("%w: user %d", ErrNotSubscribed, from)
	}
	if err := c.checkPriv(from, session.PrivModify); err != nil {
		return err
	}
	site, ok := c.perSite[from]
	if !ok {
		return fmt.Errorf("%w", ErrNoSite)
	}
	transformed, err := site.RemoteOp(rec)
	if err != nil {
		return err
	}
	if c.hooks.Changed != nil {
		c.hooks.Changed(jupiter.Record{Author: rec.Author, Op: transformed, SV: rec.SV})
	}
	return c.fanOutLocked(from, transformed, rec.Author)
}

// fanOutLocked forwards op (already applied to the server's canonical
// content) to every subscriber besides skip, through their own Jupiter
// twins. Must be called with c.mu held.
func (c *Coordinator) fanOutLocked(skip content.UserID, op ot.Op, author content.UserID) error {
	for id, site := range c.perSite {
		if id == skip {
			continue
		}
		if _, err := site.LocalOp(op, author); err != nil {
			return fmt.Errorf("doc: fan-out to user %d: %w", id, err)
		}
	}
	return nil
}

// HandleServerRecord applies a record broadcast by the server (client
// role).
func (c *Coordinator) HandleServerRecord(rec jupiter.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != RoleClient {
		panic("doc: HandleServerRecord called on a server coordinator")
	}
	if c.selfState != Subscribed || c.clientSite == nil {
		return fmt.Errorf("%w", ErrNotSubscribed)
	}
	transformed, err := c.clientSite.RemoteOp(rec)
	if err != nil {
		return err
	}
	if c.hooks.Changed != nil {
		c.hooks.Changed(jupiter.Record{Author: rec.Author, Op: transformed, SV: rec.SV})
	}
	return nil
}

// Rename requests (client) or performs (server) a title change. On the
// server, findFreeSuffix picks the smallest suffix not already used by
// another document sharing the new title.
func (c *Coordinator) Rename(newTitle string, findFreeSuffix func(title string, exceptID uint32) uint32, requester content.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.role {
	case RoleClient:
		if c.hooks.SendRename != nil {
			c.hooks.SendRename(content.ServerUserID, newTitle, 0)
		}
		return nil
	default:
		if err := c.checkPriv(requester, session.PrivRename); err != nil {
			return err
		}
		suffix := findFreeSuffix(newTitle, c.id)
		c.title = newTitle
		c.suffix = suffix
		if c.hooks.Renamed != nil {
			c.hooks.Renamed(newTitle, suffix)
		}
		for other := range c.subscribers.Iter() {
			if c.hooks.SendRename != nil {
				c.hooks.SendRename(other, newTitle, suffix)
			}
		}
		return nil
	}
}

// ApplyRenameFromServer applies a rename pushed by the server (client
// role).
func (c *Coordinator) ApplyRenameFromServer(newTitle string, newSuffix uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = newTitle
	c.suffix = newSuffix
	if c.hooks.Renamed != nil {
		c.hooks.Renamed(newTitle, newSuffix)
	}
}
