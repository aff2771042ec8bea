// Package doc implements the document coordinator (C4): per-document
// subscriber/title/owner/privilege state, the subscription state machine
// (§4.5), and the routing of local and incoming edits through the right
// Jupiter site (§4.4).
package doc

import (
	"errors"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/jupiter"
	"github.com/goatee-collab/goatee/session"
)

// Role distinguishes the two collapsed template variants from the original
// C++ source (client_document / server_document); a host process composes
// one Coordinator of each role rather than needing a third code path.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// SubState is one state in the per-(document,user) subscription machine.
type SubState int

const (
	Unsubscribed SubState = iota
	Subscribing
	Subscribed
	Unsubscribing
)

var (
	// ErrNotSubscribed is returned when a record arrives from, or an edit is
	// attempted by, a user not currently SUBSCRIBED.
	ErrNotSubscribed = errors.New("doc: not subscribed")
	// ErrPrivilegeDenied is returned when a user lacks a required bit.
	ErrPrivilegeDenied = errors.New("doc: privilege denied")
	// ErrAlreadySubscribed guards double-subscription.
	ErrAlreadySubscribed = errors.New("doc: already subscribed")
	// ErrNoSite is an invariant violation: routing found no Jupiter site for
	// a user believed to be subscribed.
	ErrNoSite = errors.New("doc: missing jupiter site")
)

// Hooks are the explicit event sinks a Coordinator emits through, replacing
// the original signal/observer-list pattern (design notes §9). All fields
// are optional; nil hooks are simply not invoked.
type Hooks struct {
	// SendRecord ships a record to the peer. On the server it is called once
	// per target subscriber (fan-out is the coordinator's job); on the
	// client, to is always content.ServerUserID and means "send to server".
	SendRecord func(to content.UserID, rec jupiter.Record)

	// SendSyncInit/SendSyncChunk/SendSyncFinal stream a new subscriber's
	// initial content (server only).
	SendSyncInit  func(to content.UserID, chunkCount int)
	SendSyncChunk func(to content.UserID, chunk content.Chunk)
	SendSyncFinal func(to content.UserID)

	// SendSubscribeNotice/SendUnsubscribeNotice broadcast presence changes
	// to a document's other subscribers (server only).
	SendSubscribeNotice   func(to, subject content.UserID)
	SendUnsubscribeNotice func(to, subject content.UserID)

	// SendRename broadcasts a rename to every subscriber (server only) or
	// requests one from the server (client only, ignores 'to').
	SendRename func(to content.UserID, title string, suffix uint32)

	// RequestSubscribe/RequestUnsubscribe ask the server to change this
	// client's own subscription (client only).
	RequestSubscribe   func()
	RequestUnsubscribe func()

	// Renamed/Subscribed/Unsubscribed/Changed are the document's local
	// observable event feed (§4.4), fired on both roles.
	Renamed      func(title string, suffix uint32)
	Subscribed   func(user content.UserID)
	Unsubscribed func(user content.UserID)
	Changed      func(rec jupiter.Record)
}

// Coordinator is one document's state, in either server or client role.
type Coordinator struct {
	mu sync.Mutex

	role     Role
	id       uint32
	owner    *content.UserID
	title    string
	suffix   uint32
	encoding string
	hooks    Hooks

	// Server-side fields. subscribers is also filled on the client, from
	// peer subscribe notices.
	subscribers mapset.Set[content.UserID]
	subState    map[content.UserID]SubState
	perSite     map[content.UserID]*jupiter.Site
	privileges  func(content.UserID) session.Priv

	// Both roles use content once subscribed; server always has it.
	content *content.Content

	// Client-only fields.
	selfState  SubState
	clientSite *jupiter.Site
	pendingCnt int // chunks remaining before sync_final while receiving
}

// NewServer constructs a server-role coordinator that owns doc content from
// the start (content is never absent on the server, per §3).
func NewServer(id uint32, owner *content.UserID, title string, suffix uint32, encoding string, initial *content.Content, privileges func(content.UserID) session.Priv, hooks Hooks) *Coordinator {
	if initial == nil {
		initial = content.New("", nil)
	}
	return &Coordinator{
		role:        RoleServer,
		id:          id,
		owner:       owner,
		title:       title,
		suffix:      suffix,
		encoding:    encoding,
		hooks:       hooks,
		subscribers: mapset.NewSet[content.UserID](),
		subState:    make(map[content.UserID]SubState),
		perSite:     make(map[content.UserID]*jupiter.Site),
		privileges:  privileges,
		content:     initial,
	}
}

// NewClient constructs a client-role coordinator, unsubscribed until
// Subscribe is called and the server's sync stream completes.
func NewClient(id uint32, title string, suffix uint32, encoding string, hooks Hooks) *Coordinator {
	return &Coordinator{
		role:      RoleClient,
		id:        id,
		title:     title,
		suffix:    suffix,
		encoding:  encoding,
		hooks:     hooks,
		selfState: Unsubscribed,
	}
}

// ID, Info (id, title, suffix), Owner and Encoding report the coordinator's
// identity.
func (c *Coordinator) ID() uint32 { return c.id }
func (c *Coordinator) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{ID: c.id, Title: c.title, Suffix: c.suffix}
}
func (c *Coordinator) Owner() *content.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}
func (c *Coordinator) Encoding() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoding
}

// Text returns the current content text, or "" if not subscribed (client
// role, before sync_final).
func (c *Coordinator) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.content == nil {
		return ""
	}
	return c.content.Text()
}

// Chunks returns the current chunk sequence, for sync streaming and tests.
func (c *Coordinator) Chunks() []content.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.content == nil {
		return nil
	}
	return c.content.Chunks()
}

// Subscribers returns the current subscriber set (on the client, the peers
// reported by subscribe notices).
func (c *Coordinator) Subscribers() []content.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribers == nil {
		return nil
	}
	return c.subscribers.ToSlice()
}

// checkPriv reports whether user has want, consulting the injected registry
// lookup (server only; client-side calls always succeed since the server is
// the enforcement point for the client's own requests).
func (c *Coordinator) checkPriv(user content.UserID, want session.Priv) error {
	if c.privileges == nil {
		return nil
	}
	if !c.privileges(user).Has(want) {
		return fmt.Errorf("%w: user %d wants %v", ErrPrivilegeDenied, user, want)
	}
	return nil
}
